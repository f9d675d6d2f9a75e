package main

import (
	"context"
	"errors"

	"github.com/HuyNguyen260398/s3-sync-compress/pipeline"
)

var errAborted = errors.New("aborted by signal")

// exitStatus maps the outcome of a run to the process exit status.
func exitStatus(ctx context.Context, err error) syncStatus {
	if err == nil {
		return syncStatusOk
	}
	if errors.Is(context.Cause(ctx), errAborted) {
		return syncStatusAborted
	}

	var confErr *pipeline.ConfigurationError
	var stepConfErr *pipeline.StepConfigurationError
	if errors.As(err, &confErr) || errors.As(err, &stepConfErr) {
		return syncStatusConfError
	}
	return syncStatusFailed
}

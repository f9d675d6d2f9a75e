package main

import (
	"context"
	"time"

	"github.com/HuyNguyen260398/s3-sync-compress/api"
)

// watchTrigger performs one run each time the request marker shows up, until ctx is done.
// Runs never overlap: the marker is only polled between runs.
func watchTrigger(ctx context.Context, trigger string, interval time.Duration, runFn func(context.Context) syncStatus) syncStatus {
	log.Infof("Watching %s every %s", trigger, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		found, err := api.Consume(trigger)
		if err != nil {
			log.Errorf("Failed to check request marker %s: %s", trigger, err)
		} else if found {
			log.Infof("Sync requested, starting run")
			if st := runFn(ctx); st == syncStatusAborted {
				return st
			}
		}

		select {
		case <-ctx.Done():
			log.Infof("Watch stopped")
			return syncStatusOk
		case <-ticker.C:
		}
	}
}

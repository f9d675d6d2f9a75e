package pipeline

import (
	"errors"
	"fmt"
)

// StepError wraps a fatal error returned by a pipeline step.
type StepError struct {
	StepName string
	StepNum  int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline step: %d (%s) failed with error: %s", e.StepNum, e.StepName, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepConfigurationError is returned when a step receives a Config of unexpected type.
type StepConfigurationError struct {
	StepName string
	StepNum  int
}

func (e *StepConfigurationError) Error() string {
	return fmt.Sprintf("pipeline step: %d (%s) invalid configuration passed", e.StepNum, e.StepName)
}

// ConfigurationError means a required setting is absent.
type ConfigurationError struct {
	Setting string
	Msg     string
}

func (e *ConfigurationError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s not configured", e.Setting)
	}
	return fmt.Sprintf("%s not configured (%s)", e.Setting, e.Msg)
}

// CredentialVerificationError means the identity check against the provider failed.
type CredentialVerificationError struct {
	Err error
}

func (e *CredentialVerificationError) Error() string {
	return fmt.Sprintf("AWS connection failed: %s", e.Err)
}

func (e *CredentialVerificationError) Unwrap() error {
	return e.Err
}

// TransferError is a failed download or upload of a single object.
type TransferError struct {
	Key string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %s failed: %s", e.Key, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ArchiveError means the archive could not be created or written.
type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("Failed to create zip file: %s", e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// PublishError means the upload or the retrieval URL generation failed.
type PublishError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("Failed to upload zip to s3://%s/%s: %s", e.Bucket, e.Key, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// NoWorkError ends a run early as completed, it is not a failure.
type NoWorkError struct {
	Reason string
}

func (e *NoWorkError) Error() string {
	return e.Reason
}

// terminalMessage is the text shown in the error record: the innermost step error.
func terminalMessage(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Err.Error()
	}
	return err.Error()
}

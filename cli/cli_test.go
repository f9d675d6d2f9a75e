package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HuyNguyen260398/s3-sync-compress/pipeline"
	"github.com/HuyNguyen260398/s3-sync-compress/status"
	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

func init() {
	log.SetOutput(io.Discard)
}

// unsetEnv clears keys for the test, restoring them afterwards.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestGetCliArgsDefaults(t *testing.T) {
	unsetEnv(t, "S3_BUCKET", "S3_OUTPUT_PREFIX", "AWS_REGION", "OUTPUT_DIR", "STATUS_FILE", "STORAGE_TYPE")
	parsed, err := GetCliArgs(nil)
	if err != nil {
		t.Fatalf("GetCliArgs: %v", err)
	}
	if parsed.Command != cmdRun {
		t.Errorf("command = %d, want run", parsed.Command)
	}
	if parsed.SourceBucket != "test-bucket" || parsed.TargetPrefix != "synced-files" || parsed.Region != "us-east-1" {
		t.Errorf("defaults = %+v", parsed.args)
	}
	if parsed.StatusFile != filepath.Join("/app/output", "status.json") {
		t.Errorf("status file = %q", parsed.StatusFile)
	}
	if parsed.StorageType != storage.TypeS3 || parsed.FSFilePerm != 0644 || parsed.FSDirPerm != 0755 {
		t.Errorf("parsed = %+v", parsed)
	}
	if parsed.VerifyTimeout != pipeline.DefaultVerifyTimeout {
		t.Errorf("verify timeout = %s", parsed.VerifyTimeout)
	}
}

func TestGetCliArgsEnvAndSubcommands(t *testing.T) {
	t.Setenv("S3_BUCKET", "from-env")
	t.Setenv("S3_OUTPUT_BUCKET", "out-env")
	t.Setenv("OUTPUT_DIR", "/tmp/out")

	parsed, err := GetCliArgs([]string{"--storage-type", "fs", "watch", "--interval", "2s"})
	if err != nil {
		t.Fatalf("GetCliArgs: %v", err)
	}
	if parsed.Command != cmdWatch || parsed.Watch.Interval != 2*time.Second {
		t.Errorf("watch = %+v", parsed.Watch)
	}
	if parsed.SourceBucket != "from-env" || parsed.TargetBucket != "out-env" {
		t.Errorf("buckets = %q, %q", parsed.SourceBucket, parsed.TargetBucket)
	}
	if parsed.StorageType != storage.TypeFS {
		t.Errorf("storage type = %d", parsed.StorageType)
	}
	if parsed.StatusFile != filepath.Join("/tmp/out", "status.json") {
		t.Errorf("status file = %q", parsed.StatusFile)
	}

	parsed, err = GetCliArgs([]string{"api-server"})
	if err != nil {
		t.Fatalf("GetCliArgs: %v", err)
	}
	if parsed.Command != cmdAPIServer || parsed.APIServer.Addr != "127.0.0.1:8001" {
		t.Errorf("api-server = %+v", parsed.APIServer)
	}
}

func TestGetCliArgsInvalid(t *testing.T) {
	for _, argv := range [][]string{
		{"--storage-type", "azure"},
		{"--fs-file-perm", "rw"},
	} {
		if _, err := GetCliArgs(argv); err == nil {
			t.Errorf("GetCliArgs(%v) succeeded", argv)
		}
	}
}

func TestExitStatus(t *testing.T) {
	ctx := context.Background()
	aborted, cancel := context.WithCancelCause(ctx)
	cancel(errAborted)

	cases := []struct {
		name string
		ctx  context.Context
		err  error
		want syncStatus
	}{
		{"ok", ctx, nil, syncStatusOk},
		{"failed", ctx, &pipeline.StepError{Err: errors.New("boom")}, syncStatusFailed},
		{"configuration", ctx, &pipeline.ConfigurationError{Setting: "destination bucket"}, syncStatusConfError},
		{"step configuration", ctx, &pipeline.StepError{Err: &pipeline.StepConfigurationError{}}, syncStatusConfError},
		{"aborted", aborted, &pipeline.StepError{Err: errAborted}, syncStatusAborted},
	}
	for _, tc := range cases {
		if got := exitStatus(tc.ctx, tc.err); got != tc.want {
			t.Errorf("%s: exitStatus = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestWatchTrigger(t *testing.T) {
	trigger := filepath.Join(t.TempDir(), "trigger_sync")
	if err := os.WriteFile(trigger, nil, 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	st := watchTrigger(ctx, trigger, 10*time.Millisecond, func(context.Context) syncStatus {
		runs++
		cancel()
		return syncStatusOk
	})

	if st != syncStatusOk {
		t.Errorf("status = %d", st)
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
	if _, err := os.Stat(trigger); !os.IsNotExist(err) {
		t.Errorf("marker must be consumed, stat err = %v", err)
	}
}

func TestRunOnceFS(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "buckets", "src", "in")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	parsed, err := GetCliArgs([]string{
		"--storage-type", "fs",
		"--fs-root", filepath.Join(root, "buckets"),
		"--source-bucket", "src",
		"--source-prefix", "in/",
		"--target-bucket", "out",
		"--data-dir", filepath.Join(root, "data"),
		"--output-dir", filepath.Join(root, "output"),
	})
	if err != nil {
		t.Fatalf("GetCliArgs: %v", err)
	}
	cli = parsed

	if st := runOnce(context.Background()); st != syncStatusOk {
		t.Fatalf("runOnce = %d", st)
	}
	final, err := status.Load(cli.StatusFile)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != status.StateCompleted || final.FilesSynced != 1 || final.ZipInfo == nil {
		t.Errorf("final = %+v", final)
	}
	if _, err := os.Stat(filepath.Join(root, "buckets", "out", "synced-files", final.ZipInfo.Filename)); err != nil {
		t.Errorf("published archive missing: %v", err)
	}
}

func TestRunOnceMissingTargetBucket(t *testing.T) {
	unsetEnv(t, "S3_OUTPUT_BUCKET")
	root := t.TempDir()
	parsed, err := GetCliArgs([]string{"--storage-type", "fs", "--fs-root", root, "--output-dir", root, "--data-dir", filepath.Join(root, "data")})
	if err != nil {
		t.Fatal(err)
	}
	cli = parsed

	if st := runOnce(context.Background()); st != syncStatusConfError {
		t.Errorf("runOnce = %d, want configuration error", st)
	}
	final, err := status.Load(cli.StatusFile)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != status.StateError {
		t.Errorf("final = %+v", final)
	}
}

package collection

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HuyNguyen260398/s3-sync-compress/pipeline"
	"github.com/HuyNguyen260398/s3-sync-compress/status"
	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

// URLExpiry is the validity window of the retrieval URL.
const URLExpiry = 24 * time.Hour

// PublishConfig is the Config of the PublishArchive step.
type PublishConfig struct {
	Bucket string
	Prefix string
	// KeepTotals reports the real counters in the uploading record instead of zeroes.
	KeepTotals bool
}

// PublishArchive uploads group.Archive to Bucket under Prefix and presigns a 24h retrieval URL.
// A missing archive fails before any network call.
var PublishArchive pipeline.StepFn = func(group *pipeline.Group, stepNum int) error {
	info := group.GetStepInfo(stepNum)
	cfg, ok := info.Config.(PublishConfig)
	if !ok {
		return &pipeline.StepConfigurationError{StepName: info.Name, StepNum: stepNum}
	}
	log := group.Log()
	group.CountInput(stepNum)

	archive := group.Archive
	if archive == "" {
		group.CountError(stepNum)
		return &pipeline.PublishError{Bucket: cfg.Bucket, Err: fmt.Errorf("no zip file was built")}
	}
	filename := filepath.Base(archive)
	key := storage.JoinKey(cfg.Prefix, filename)

	st, err := os.Stat(archive)
	if err != nil {
		group.CountError(stepNum)
		log.Errorf("Zip file not found: %s", archive)
		return &pipeline.PublishError{Bucket: cfg.Bucket, Key: key, Err: fmt.Errorf("zip file not found: %w", err)}
	}

	synced, compressed := 0, 0
	if cfg.KeepTotals {
		synced, compressed = len(group.Files), 1
	}
	dst := location(group.Target, cfg.Bucket, key)
	log.Infof("Uploading zip to %s", dst)
	group.Report(status.RunStatus{
		Status:          status.StateUploading,
		FilesSynced:     synced,
		FilesCompressed: compressed,
		Message:         fmt.Sprintf("Uploading zip file to %s", location(group.Target, cfg.Bucket, "")),
	})

	if err := group.Target.PutObject(archive, cfg.Bucket, key); err != nil {
		group.CountError(stepNum)
		return &pipeline.PublishError{Bucket: cfg.Bucket, Key: key, Err: err}
	}

	url, err := group.Target.PresignGetObject(cfg.Bucket, key, URLExpiry)
	if err != nil {
		group.CountError(stepNum)
		return &pipeline.PublishError{Bucket: cfg.Bucket, Key: key, Err: fmt.Errorf("presign: %w", err)}
	}

	group.Result = &pipeline.PublishResult{
		Bucket:   cfg.Bucket,
		Key:      key,
		URL:      url,
		Filename: filename,
		Size:     st.Size(),
	}
	group.CountOutput(stepNum)
	log.Infof("Zip file uploaded successfully")
	log.Infof("Download URL: %s", url)
	return nil
}

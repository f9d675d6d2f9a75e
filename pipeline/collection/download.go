package collection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/HuyNguyen260398/s3-sync-compress/pipeline"
	"github.com/HuyNguyen260398/s3-sync-compress/status"
	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

// FetchConfig is the Config of the FetchObjects step.
type FetchConfig struct {
	Bucket    string
	Prefix    string
	MirrorDir string
}

// FetchObjects lists Bucket/Prefix page by page and downloads every object into MirrorDir,
// at a path mirroring its key. Directory markers are skipped.
//
// A failed download is logged and skipped. A listing failure keeps what was fetched so far,
// and is fatal only if nothing was. Zero fetched files end the run as completed.
var FetchObjects pipeline.StepFn = func(group *pipeline.Group, stepNum int) error {
	info := group.GetStepInfo(stepNum)
	cfg, ok := info.Config.(FetchConfig)
	if !ok {
		return &pipeline.StepConfigurationError{StepName: info.Name, StepNum: stepNum}
	}
	log := group.Log()
	src := location(group.Source, cfg.Bucket, cfg.Prefix)

	log.Infof("Starting sync from %s", src)
	group.Report(status.RunStatus{Status: status.StateSyncing, Message: fmt.Sprintf("Downloading from %s", src)})

	if err := os.MkdirAll(cfg.MirrorDir, 0755); err != nil {
		return fmt.Errorf("S3 sync failed: %w", err)
	}

	files := make([]pipeline.LocalFile, 0)
	fetched := map[string]string{} // local path -> key
	failed := 0
	pager := group.Source.List(cfg.Bucket, cfg.Prefix)
	var listErr error

Pages:
	for pager.More() {
		page, err := pager.NextPage()
		if err != nil {
			listErr = err
			break
		}
		for _, obj := range page {
			if group.Ctx.Err() != nil {
				break Pages
			}
			if obj.IsDirMarker() {
				continue
			}
			group.CountInput(stepNum)

			lf, err := fetchObject(group, cfg.MirrorDir, obj, fetched)
			if err != nil {
				if storage.IsAwsContextCanceled(err) && group.Ctx.Err() != nil {
					break Pages
				}
				failed++
				group.CountError(stepNum)
				switch {
				case storage.IsErrNotExist(err):
					log.Warnf("Skip missing object: %s", obj.Key)
				case storage.IsErrPermission(err):
					log.Warnf("Skip permission denied object: %s", obj.Key)
				default:
					log.Errorf("Failed to download %s: %s", obj.Key, err)
				}
				continue
			}
			fetched[lf.RelPath] = obj.Key
			files = append(files, lf)
			group.CountOutput(stepNum)

			if len(files)%ProgressInterval == 0 {
				group.Report(status.RunStatus{
					Status:      status.StateSyncing,
					FilesSynced: len(files),
					Message:     fmt.Sprintf("Downloaded %d files...", len(files)),
				})
			}
		}
	}
	group.Files = files

	if err := group.Ctx.Err(); err != nil {
		return err
	}
	if listErr != nil {
		if len(files) == 0 {
			return fmt.Errorf("S3 sync failed: listing %s: %w", src, listErr)
		}
		log.Warnf("Listing %s failed after %d files: %s, continuing with fetched files", src, len(files), listErr)
	}

	if len(files) == 0 {
		if failed > 0 {
			return &pipeline.NoWorkError{Reason: fmt.Sprintf("No files downloaded from %s, %d failed", src, failed)}
		}
		return &pipeline.NoWorkError{Reason: fmt.Sprintf("No files found in %s", src)}
	}

	if len(files)%ProgressInterval != 0 {
		group.Report(status.RunStatus{
			Status:      status.StateSyncing,
			FilesSynced: len(files),
			Message:     fmt.Sprintf("Downloaded %d files", len(files)),
		})
	}
	log.Infof("Successfully downloaded %d files, %d failed", len(files), failed)
	return nil
}

// fetchObject downloads obj into mirrorDir. Keys that map to a local path
// already in fetched are rejected, the first one wins.
func fetchObject(group *pipeline.Group, mirrorDir string, obj *storage.Object, fetched map[string]string) (pipeline.LocalFile, error) {
	rel, err := mirrorRelPath(obj.Key)
	if err != nil {
		return pipeline.LocalFile{}, &pipeline.TransferError{Key: obj.Key, Err: err}
	}
	if prev, ok := fetched[rel]; ok {
		return pipeline.LocalFile{}, &pipeline.TransferError{Key: obj.Key, Err: fmt.Errorf("key resolves to %s, already fetched from %q", rel, prev)}
	}
	dest := filepath.Join(mirrorDir, rel)

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return pipeline.LocalFile{}, &pipeline.TransferError{Key: obj.Key, Err: err}
	}

	group.Log().Infof("Downloading: %s (%d bytes)", obj.Key, obj.Size)
	if err := group.Source.GetObject(obj, dest); err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			group.Log().Warnf("Failed to remove partial file %s: %s", dest, rmErr)
		}
		return pipeline.LocalFile{}, &pipeline.TransferError{Key: obj.Key, Err: err}
	}
	if !obj.Mtime.IsZero() {
		if err := os.Chtimes(dest, obj.Mtime, obj.Mtime); err != nil {
			group.Log().Warnf("Failed to set mtime of %s: %s", dest, err)
		}
	}
	group.Log().Debugf("Fetched %s (etag %q, modified %s)", obj.Key, obj.ETag, obj.Mtime)

	return pipeline.LocalFile{Path: dest, RelPath: rel}, nil
}

// mirrorRelPath maps key to a path relative to the mirror root.
// Keys that would land outside the root are rejected.
func mirrorRelPath(key string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(rel) || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q resolves outside the mirror root", key)
	}
	return rel, nil
}

package collection

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/HuyNguyen260398/s3-sync-compress/pipeline"
	"github.com/HuyNguyen260398/s3-sync-compress/status"
)

// ArchiveConfig is the Config of the BuildArchive step.
type ArchiveConfig struct {
	OutputDir string
	// Now is the clock used for the archive name, time.Now when nil.
	Now func() time.Time
}

// ArchiveName returns the archive file name for t, at second resolution.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("s3_sync_%s.zip", t.Format("20060102_150405"))
}

// BuildArchive packs group.Files into one zip in OutputDir, each entry named by
// its path relative to the mirror root.
//
// Unreadable files are logged and skipped. Failing to create or finalize the
// archive, or adding no entry at all, is an *pipeline.ArchiveError.
var BuildArchive pipeline.StepFn = func(group *pipeline.Group, stepNum int) error {
	info := group.GetStepInfo(stepNum)
	cfg, ok := info.Config.(ArchiveConfig)
	if !ok {
		return &pipeline.StepConfigurationError{StepName: info.Name, StepNum: stepNum}
	}
	log := group.Log()

	files := group.Files
	total := len(files)
	if total == 0 {
		return &pipeline.NoWorkError{Reason: "No files to compress"}
	}

	log.Infof("Starting compression of %d files into single zip", total)
	group.Report(status.RunStatus{
		Status:      status.StateCompressing,
		FilesSynced: total,
		Message:     fmt.Sprintf("Downloaded %d files, starting compression", total),
	})

	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return &pipeline.ArchiveError{Path: cfg.OutputDir, Err: err}
	}
	path := filepath.Join(cfg.OutputDir, ArchiveName(now()))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &pipeline.ArchiveError{Path: path, Err: err}
	}
	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	discard := func(err error) error {
		zw.Close()
		f.Close()
		os.Remove(path)
		return err
	}

	sp, err := newSpool(cfg.OutputDir)
	if err != nil {
		return discard(&pipeline.ArchiveError{Path: path, Err: err})
	}
	defer sp.Close()

	added, reported := 0, 0
	progress := func() {
		reported = added
		group.Report(status.RunStatus{
			Status:          status.StateCompressing,
			FilesSynced:     total,
			FilesCompressed: added,
			Message:         fmt.Sprintf("Compressing files %d/%d into zip", added, total),
		})
	}

	for _, lf := range files {
		if group.Ctx.Err() != nil {
			break
		}
		group.CountInput(stepNum)
		log.Infof("Adding to zip: %s", lf.RelPath)
		hdr, size, err := stageFile(sp, lf)
		if err != nil {
			group.CountError(stepNum)
			log.Errorf("Failed to add %s to zip: %s", lf.Path, err)
			continue
		}
		if err := sp.writeEntry(zw, hdr, size); err != nil {
			return discard(&pipeline.ArchiveError{Path: path, Err: fmt.Errorf("writing entry %s: %w", hdr.Name, err)})
		}
		added++
		group.CountOutput(stepNum)
		if added%ProgressInterval == 0 {
			progress()
		}
	}
	if added != reported {
		progress()
	}

	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return &pipeline.ArchiveError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return &pipeline.ArchiveError{Path: path, Err: err}
	}
	if err := group.Ctx.Err(); err != nil {
		os.Remove(path)
		return err
	}
	if added == 0 {
		os.Remove(path)
		return &pipeline.ArchiveError{Path: path, Err: errors.New("none of the files could be added")}
	}

	group.Archive = path
	if st, err := os.Stat(path); err == nil {
		log.Infof("Zip file created successfully: %s (%d bytes, %d/%d files)", path, st.Size(), added, total)
	}
	return nil
}

// stageFile copies one regular file into sp and returns its entry header,
// named by the relative path. Nothing reaches the archive when reading fails.
func stageFile(sp *spool, lf pipeline.LocalFile) (*zip.FileHeader, int64, error) {
	f, err := os.Open(lf.Path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("%s is not a regular file", lf.Path)
	}

	size, err := sp.stage(f)
	if err != nil {
		return nil, 0, err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return nil, 0, err
	}
	hdr.Name = filepath.ToSlash(lf.RelPath)
	hdr.Method = zip.Deflate
	return hdr, size, nil
}

// spool holds the content of the entry being added.
type spool struct {
	f *os.File
}

func newSpool(dir string) (*spool, error) {
	f, err := os.CreateTemp(dir, ".zip-entry-*")
	if err != nil {
		return nil, err
	}
	return &spool{f: f}, nil
}

// stage replaces the spool content with src.
func (sp *spool) stage(src io.Reader) (int64, error) {
	if err := sp.f.Truncate(0); err != nil {
		return 0, err
	}
	if _, err := sp.f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return io.Copy(sp.f, src)
}

// writeEntry adds the staged content to zw under hdr.
// A failure here leaves a broken entry, so the archive must be dropped.
func (sp *spool) writeEntry(zw *zip.Writer, hdr *zip.FileHeader, size int64) error {
	if _, err := sp.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.CopyN(w, sp.f, size)
	return err
}

func (sp *spool) Close() error {
	name := sp.f.Name()
	sp.f.Close()
	return os.Remove(name)
}

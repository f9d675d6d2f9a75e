// Package status keeps the single persisted progress record of a sync run.
//
// The record is a JSON object overwritten in place at a well-known path.
// Pipeline stages write it through a Reporter; the control surface only reads it.
package status

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Log implement Logrus logger for status persistence errors.
var Log = logrus.New()

// TimestampFormat is the ISO-8601 layout of RunStatus.Timestamp.
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

// State of a run.
type State string

// Run states.
const (
	StateIdle        State = "idle"
	StateSyncing     State = "syncing"
	StateCompressing State = "compressing"
	StateUploading   State = "uploading"
	StateCompleted   State = "completed"
	StateError       State = "error"
)

var transitions = map[State][]State{
	StateIdle:        {StateSyncing, StateCompleted, StateError},
	StateSyncing:     {StateSyncing, StateCompressing, StateCompleted, StateError},
	StateCompressing: {StateCompressing, StateUploading, StateError},
	StateUploading:   {StateCompleted, StateError},
}

// IsTerminal reports whether the state ends a run.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateSyncing, StateCompressing, StateUploading, StateCompleted, StateError:
		return true
	}
	return false
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for a disallowed state change.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("disallowed status transition: %s -> %s", e.From, e.To)
}

// ZipInfo describes the published archive in the final record.
type ZipInfo struct {
	Filename    string `json:"filename"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

// RunStatus is the persisted progress record.
type RunStatus struct {
	Status          State    `json:"status"`
	FilesSynced     int      `json:"files_synced"`
	FilesCompressed int      `json:"files_compressed"`
	Timestamp       string   `json:"timestamp"`
	Message         string   `json:"message"`
	DownloadURL     string   `json:"download_url"`
	ZipInfo         *ZipInfo `json:"zip_info,omitempty"`
}

// Reporter receives status updates. Timestamp is filled in by the Reporter.
type Reporter interface {
	Report(st RunStatus) error
	Current() RunStatus
}

// FileReporter persists every accepted update to path.
// It is not safe for concurrent use, a run is single-threaded.
type FileReporter struct {
	path    string
	current RunStatus
	now     func() time.Time
}

// NewFileReporter returns a Reporter writing to path, starting in idle state.
func NewFileReporter(path string) *FileReporter {
	return &FileReporter{
		path:    path,
		current: RunStatus{Status: StateIdle},
		now:     time.Now,
	}
}

// Path of the status file.
func (r *FileReporter) Path() string {
	return r.path
}

// Current returns the last accepted record.
func (r *FileReporter) Current() RunStatus {
	return r.current
}

// Report validates the transition and overwrites the status file.
// A disallowed transition is rejected with *TransitionError and nothing is written.
// Write failures are logged only.
func (r *FileReporter) Report(st RunStatus) error {
	if !CanTransition(r.current.Status, st.Status) {
		return &TransitionError{From: r.current.Status, To: st.Status}
	}
	st.Timestamp = r.now().Format(TimestampFormat)
	r.current = st

	if err := r.flush(); err != nil {
		Log.Errorf("Failed to update status file %s: %s", r.path, err)
		return nil
	}
	Log.Infof("Status updated: %s - %s", st.Status, st.Message)
	return nil
}

func (r *FileReporter) flush() error {
	data, err := json.MarshalIndent(r.current, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(r.path, append(data, '\n'), 0644)
}

// Load reads the status file at path.
// A missing file yields an idle record and no error.
func Load(path string) (RunStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RunStatus{Status: StateIdle}, nil
		}
		return RunStatus{}, err
	}

	var st RunStatus
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&st); err != nil {
		return RunStatus{}, fmt.Errorf("decode status file: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return RunStatus{}, errors.New("decode status file: trailing data after record")
	}
	if !st.Status.Valid() {
		return RunStatus{}, fmt.Errorf("decode status file: unknown status %q", st.Status)
	}
	return st, nil
}

// writeFileAtomic replaces path via a temp file and rename so readers never see a partial record.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// Package pipeline runs the sync-compress-upload steps in order and owns the run status.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/HuyNguyen260398/s3-sync-compress/status"
	"github.com/HuyNguyen260398/s3-sync-compress/storage"
)

// Log implement Logrus logger for pipeline logging.
var Log = logrus.New()

func init() {
	storage.Log = Log
}

// Group is a single pipeline run: storages, reporter, ordered steps and the data passed between them.
// Steps run one after another in the calling goroutine.
type Group struct {
	Source       storage.Storage
	Target       storage.Storage
	Ctx          context.Context
	Reporter     status.Reporter
	TargetBucket string
	RunID        string
	StartTime    time.Time

	// Files fetched into the mirror root, in listing order.
	Files []LocalFile
	// Archive is the path of the built archive.
	Archive string
	// Result of the publish step.
	Result *PublishResult

	gate  *Gate
	steps []Step
}

// NewGroup returns an empty run reporting through reporter.
func NewGroup(reporter status.Reporter) Group {
	return Group{
		Ctx:       context.Background(),
		Reporter:  reporter,
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
		steps:     make([]Step, 0),
	}
}

func (group *Group) WithContext(ctx context.Context) {
	group.Ctx = ctx
}

func (group *Group) SetSource(st storage.Storage) {
	group.Source = st
}

func (group *Group) SetTarget(st storage.Storage) {
	group.Target = st
}

// SetGate installs the credential check performed before the first step.
func (group *Group) SetGate(g *Gate) {
	group.gate = g
}

func (group *Group) AddPipeStep(step Step) {
	group.steps = append(group.steps, step)
}

// Log returns the logger tagged with the run id.
func (group *Group) Log() *logrus.Entry {
	return Log.WithField("run", group.RunID)
}

// GetStepInfo return information about step with given number.
func (group *Group) GetStepInfo(stepNum int) StepInfo {
	step := &group.steps[stepNum]
	return StepInfo{
		Stats: StepStats{
			Input:  atomic.LoadUint64(&step.stats.Input),
			Output: atomic.LoadUint64(&step.stats.Output),
			Error:  atomic.LoadUint64(&step.stats.Error),
		},
		Name:   step.Name,
		Num:    stepNum,
		Config: step.Config,
	}
}

// GetStepsInfo return information about all steps.
func (group *Group) GetStepsInfo() []StepInfo {
	res := make([]StepInfo, 0, len(group.steps))
	for i := range group.steps {
		res = append(res, group.GetStepInfo(i))
	}
	return res
}

// CountInput, CountOutput and CountError update step statistics. Safe for concurrent readers.
func (group *Group) CountInput(stepNum int) {
	atomic.AddUint64(&group.steps[stepNum].stats.Input, 1)
}

func (group *Group) CountOutput(stepNum int) {
	atomic.AddUint64(&group.steps[stepNum].stats.Output, 1)
}

func (group *Group) CountError(stepNum int) {
	atomic.AddUint64(&group.steps[stepNum].stats.Error, 1)
}

// Report sends an intermediate update. Rejected transitions are logged, never returned.
func (group *Group) Report(st status.RunStatus) {
	if err := group.Reporter.Report(st); err != nil {
		group.Log().Errorf("Status update rejected: %s", err)
	}
}

// Run executes the steps and returns the final status record.
//
// Every return path leaves a terminal record behind. A panic inside a step
// writes an error record first and is then re-raised.
func (group *Group) Run() (final status.RunStatus, err error) {
	log := group.Log()

	defer func() {
		if r := recover(); r != nil {
			group.finish(status.RunStatus{Status: status.StateError, Message: fmt.Sprintf("Critical error: %v", r)})
			panic(r)
		}
	}()

	if group.TargetBucket == "" {
		err = &ConfigurationError{Setting: "destination bucket", Msg: "S3_OUTPUT_BUCKET environment variable not set"}
		log.Errorf("%s", err)
		return group.Fail(err), err
	}

	if group.gate != nil {
		if err = group.gate.Check(group.Ctx); err != nil {
			log.Errorf("Credential check failed: %s", err)
			return group.Fail(err), err
		}
	}

	for i := range group.steps {
		step := &group.steps[i]
		log.Debugf("Pipeline step: %s started", step.Name)

		stepErr := step.Fn(group, i)
		if group.Ctx.Err() != nil {
			stepErr = context.Cause(group.Ctx)
		}
		if stepErr == nil {
			log.Debugf("Pipeline step: %s finished", step.Name)
			continue
		}

		var noWork *NoWorkError
		if errors.As(stepErr, &noWork) {
			log.Warnf("%s", noWork.Reason)
			return group.finish(status.RunStatus{Status: status.StateCompleted, Message: noWork.Reason})
		}

		err = &StepError{StepName: step.Name, StepNum: i, Err: stepErr}
		log.Errorf("%s", err)
		return group.Fail(err), err
	}

	final = status.RunStatus{
		Status:          status.StateCompleted,
		FilesSynced:     len(group.Files),
		FilesCompressed: group.archives(),
		Message:         fmt.Sprintf("Successfully processed %d files, created and uploaded zip file", len(group.Files)),
	}
	if group.Result != nil {
		final.DownloadURL = group.Result.URL
		final.ZipInfo = group.Result.ZipInfo()
	}
	return group.finish(final)
}

func (group *Group) archives() int {
	if group.Archive != "" {
		return 1
	}
	return 0
}

// Fail writes the error record for err, used for failures outside of Run as well.
func (group *Group) Fail(err error) status.RunStatus {
	final, _ := group.finish(status.RunStatus{
		Status:          status.StateError,
		FilesSynced:     len(group.Files),
		FilesCompressed: group.archives(),
		Message:         terminalMessage(err),
	})
	return final
}

// finish writes the terminal record unless one was already written.
// A rejected completed record is replaced by an error record, so the run never
// stays in a non-terminal state. The rejection is returned.
func (group *Group) finish(st status.RunStatus) (status.RunStatus, error) {
	if group.Reporter.Current().Status.IsTerminal() {
		return group.Reporter.Current(), nil
	}
	err := group.Reporter.Report(st)
	if err != nil {
		group.Log().Errorf("Final status update rejected: %s", err)
		if st.Status != status.StateError {
			fallback := status.RunStatus{
				Status:          status.StateError,
				FilesSynced:     st.FilesSynced,
				FilesCompressed: st.FilesCompressed,
				Message:         fmt.Sprintf("Run ended in %s state: %s", group.Reporter.Current().Status, st.Message),
			}
			if ferr := group.Reporter.Report(fallback); ferr != nil {
				group.Log().Errorf("Fallback status update rejected: %s", ferr)
			}
		}
	}
	return group.Reporter.Current(), err
}

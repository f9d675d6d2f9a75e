package pipeline

import (
	"github.com/HuyNguyen260398/s3-sync-compress/status"
)

// StepFn implement the type of pipeline Step function.
// A step reads its input from and stores its output on the Group.
// Returning *NoWorkError short-circuits the run as completed, any other error fails it.
type StepFn func(group *Group, stepNum int) error

// Step contain configuration of pipeline step and it's internal statistic.
// Be careful with Config interface! Check of its type should implemented in StepFn.
// If typing fails, you get a StepConfigurationError in runtime.
type Step struct {
	Name   string
	Fn     StepFn
	Config interface{}
	stats  StepStats
}

// StepStats to keep basic step statistics.
type StepStats struct {
	Input  uint64
	Output uint64
	Error  uint64
}

// StepInfo is used to represent step information, statistic and the step configuration interface.
type StepInfo struct {
	Stats  StepStats
	Name   string
	Num    int
	Config interface{}
}

// LocalFile is a fetched object inside the mirror root.
type LocalFile struct {
	Path    string
	RelPath string
}

// PublishResult describes the uploaded archive.
type PublishResult struct {
	Bucket   string
	Key      string
	URL      string
	Filename string
	Size     int64
}

// ZipInfo converts the result to its status record form.
func (r *PublishResult) ZipInfo() *status.ZipInfo {
	if r == nil {
		return nil
	}
	return &status.ZipInfo{
		Filename:    r.Filename,
		Bucket:      r.Bucket,
		Key:         r.Key,
		Size:        r.Size,
		DownloadURL: r.URL,
	}
}

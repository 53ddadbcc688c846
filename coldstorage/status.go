package coldstorage

import (
	"fmt"
	"strings"
)

// ExportStatus is the state of an RDS export task.
type ExportStatus int

const (
	StatusUnknown ExportStatus = iota
	StatusStarting
	StatusInProgress
	StatusComplete
	StatusFailed
	StatusCanceling
	StatusCanceled
)

// AllExportStatuses lists every status, StatusUnknown included.
var AllExportStatuses = []ExportStatus{
	StatusUnknown, StatusStarting, StatusInProgress, StatusComplete, StatusFailed, StatusCanceling, StatusCanceled,
}

var exportStatusNames = map[string]ExportStatus{
	"STARTING":    StatusStarting,
	"IN_PROGRESS": StatusInProgress,
	"COMPLETE":    StatusComplete,
	"FAILED":      StatusFailed,
	"CANCELING":   StatusCanceling,
	"CANCELED":    StatusCanceled,
}

// ParseExportStatus maps the string RDS reports. Anything unrecognised is StatusUnknown.
func ParseExportStatus(s string) ExportStatus {
	if status, ok := exportStatusNames[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return status
	}
	return StatusUnknown
}

func (s ExportStatus) String() string {
	for name, status := range exportStatusNames {
		if status == s {
			return name
		}
	}
	return "UNKNOWN"
}

// Bucket groups statuses by what the Task-Checker does with them.
type Bucket int

const (
	BucketUnknown Bucket = iota
	BucketInProgress
	BucketCompleted
	BucketFailed
	BucketCanceled
)

// Bucket panics on a status missing from the switch, so a new constant cannot be added without
// deciding where it goes.
func (s ExportStatus) Bucket() Bucket {
	switch s {
	case StatusStarting, StatusInProgress:
		return BucketInProgress
	case StatusComplete:
		return BucketCompleted
	case StatusFailed:
		return BucketFailed
	case StatusCanceling, StatusCanceled:
		return BucketCanceled
	case StatusUnknown:
		return BucketUnknown
	}
	panic(fmt.Sprintf("coldstorage: export status %d has no bucket", int(s)))
}

// Classification is the outcome of looking at every tracked task once.
type Classification struct {
	InProgress []ExportTask
	Completed  []ExportTask
	Failed     []ExportTask
	Canceled   []ExportTask
	Unexpected []ExportTask
}

// Add files a task under its bucket.
func (c *Classification) Add(task ExportTask) {
	switch task.Status.Bucket() {
	case BucketInProgress:
		c.InProgress = append(c.InProgress, task)
	case BucketCompleted:
		c.Completed = append(c.Completed, task)
	case BucketFailed:
		c.Failed = append(c.Failed, task)
	case BucketCanceled:
		c.Canceled = append(c.Canceled, task)
	case BucketUnknown:
		c.Unexpected = append(c.Unexpected, task)
	}
}

func taskIDs(tasks []ExportTask) []string {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

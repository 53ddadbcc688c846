package coldstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
)

// ErrMissingSnapshotTimestamp means RDS returned a snapshot without SnapshotCreateTime.
var ErrMissingSnapshotTimestamp = errors.New("snapshot is missing its creation timestamp")

const exportDateLayout = "1-2-2006"

// SnapshotRecord is a snapshot candidate for export.
type SnapshotRecord struct {
	DBInstanceIdentifier string
	SnapshotArn          string
	CreatedAt            time.Time
}

// ExportTaskRecord is one row of the tracking table.
type ExportTaskRecord struct {
	ExportTaskID string `dynamodbav:"ExportTaskId"`
	SourceArn    string `dynamodbav:"SourceArn"`
}

// ExportDestination is where export tasks write and with which credentials.
type ExportDestination struct {
	BucketName string
	IamRoleArn string
	KmsKeyID   string
}

// Snapshots wraps the RDS snapshot and export task APIs.
type Snapshots struct {
	client RDSAPI
}

func NewSnapshots(client RDSAPI) *Snapshots {
	return &Snapshots{client: client}
}

// Eligible reports whether a snapshot created at createdAt is old enough for the frequency.
// Weekly wants at least seven days; monthly wants anything before the 1st of the current month (UTC).
func Eligible(frequency Frequency, createdAt, now time.Time) bool {
	switch frequency {
	case Weekly:
		return !createdAt.After(now.AddDate(0, 0, -7))
	case Monthly:
		now = now.UTC()
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return createdAt.Before(firstOfMonth)
	default:
		return false
	}
}

// ListEligible pages through DescribeDBSnapshots, filtered by snapshot type and engine, and keeps
// the snapshots the frequency policy accepts.
func (s *Snapshots) ListEligible(ctx context.Context, frequency Frequency, snapshotType string, engines []string, now time.Time) ([]SnapshotRecord, error) {
	input := &rds.DescribeDBSnapshotsInput{
		SnapshotType: aws.String(snapshotType),
	}
	if len(engines) > 0 {
		input.Filters = []types.Filter{{Name: aws.String("engine"), Values: engines}}
	}

	var records []SnapshotRecord
	paginator := rds.NewDescribeDBSnapshotsPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe db snapshots: %w", err)
		}

		for _, snapshot := range page.DBSnapshots {
			if snapshot.SnapshotCreateTime == nil {
				return nil, fmt.Errorf("%w: %s", ErrMissingSnapshotTimestamp, aws.ToString(snapshot.DBSnapshotArn))
			}
			if !Eligible(frequency, *snapshot.SnapshotCreateTime, now) {
				continue
			}
			records = append(records, SnapshotRecord{
				DBInstanceIdentifier: aws.ToString(snapshot.DBInstanceIdentifier),
				SnapshotArn:          aws.ToString(snapshot.DBSnapshotArn),
				CreatedAt:            *snapshot.SnapshotCreateTime,
			})
		}
	}

	return records, nil
}

// ExportTaskName is the deterministic identifier of the export for a database on a given day.
func ExportTaskName(dbInstanceIdentifier string, day time.Time) string {
	return fmt.Sprintf("%s-backup-export-%s", dbInstanceIdentifier, day.Format(exportDateLayout))
}

// ExportPrefix is the S3 prefix exports of a given day land under.
func ExportPrefix(day time.Time) string {
	return day.Format(exportDateLayout) + "/rds-backups"
}

// StartExports starts one export task per snapshot, in order. It stops at the first failure and
// returns the tasks started so far along with the error.
func (s *Snapshots) StartExports(ctx context.Context, snapshots []SnapshotRecord, dest ExportDestination, now time.Time) ([]ExportTaskRecord, error) {
	tasks := make([]ExportTaskRecord, 0, len(snapshots))
	for _, snapshot := range snapshots {
		out, err := s.client.StartExportTask(ctx, &rds.StartExportTaskInput{
			ExportTaskIdentifier: aws.String(ExportTaskName(snapshot.DBInstanceIdentifier, now)),
			SourceArn:            aws.String(snapshot.SnapshotArn),
			S3BucketName:         aws.String(dest.BucketName),
			S3Prefix:             aws.String(ExportPrefix(now)),
			IamRoleArn:           aws.String(dest.IamRoleArn),
			KmsKeyId:             aws.String(dest.KmsKeyID),
		})
		if err != nil {
			return tasks, fmt.Errorf("failed to start export task for %s: %w", snapshot.SnapshotArn, err)
		}

		tasks = append(tasks, ExportTaskRecord{
			ExportTaskID: aws.ToString(out.ExportTaskIdentifier),
			SourceArn:    aws.ToString(out.SourceArn),
		})
	}

	return tasks, nil
}

// ExportTask is the part of an RDS export task the Task-Checker looks at.
type ExportTask struct {
	ID             string
	Status         ExportStatus
	RawStatus      string
	S3Bucket       string
	S3Prefix       string
	WarningMessage string
	FailureCause   string
}

// DescribeExportTask fetches one export task. A task RDS no longer reports comes back with
// StatusUnknown so the caller leaves its tracking record alone.
func (s *Snapshots) DescribeExportTask(ctx context.Context, id string) (ExportTask, error) {
	out, err := s.client.DescribeExportTasks(ctx, &rds.DescribeExportTasksInput{
		ExportTaskIdentifier: aws.String(id),
	})
	if err != nil {
		return ExportTask{}, fmt.Errorf("failed to describe export task %s: %w", id, err)
	}

	if len(out.ExportTasks) == 0 {
		return ExportTask{ID: id, Status: StatusUnknown}, nil
	}

	task := out.ExportTasks[0]
	raw := aws.ToString(task.Status)
	return ExportTask{
		ID:             id,
		Status:         ParseExportStatus(raw),
		RawStatus:      raw,
		S3Bucket:       aws.ToString(task.S3Bucket),
		S3Prefix:       aws.ToString(task.S3Prefix),
		WarningMessage: aws.ToString(task.WarningMessage),
		FailureCause:   aws.ToString(task.FailureCause),
	}, nil
}

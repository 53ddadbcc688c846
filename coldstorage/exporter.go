package coldstorage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const (
	MsgExportsStarted   = "Cold storage jobs for RDS Backup snapshots have been started successfully"
	MsgNoSnapshots      = "No snapshots found"
	MsgSchedulerRemoved = "Removed hourly rds task checker lambda scheduler"
)

// Response is what both Lambdas return on success.
type Response struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

type ResponseBody struct {
	Message []string `json:"message"`
}

func newResponse(messages ...string) Response {
	return Response{StatusCode: 200, Body: ResponseBody{Message: messages}}
}

// Clients groups the AWS APIs the workflow calls. Each Lambda only fills in what it uses; the
// Exporter needs all four.
type Clients struct {
	RDS       RDSAPI
	DynamoDB  DynamoDBAPI
	Scheduler SchedulerAPI
	S3        S3API
}

// Exporter finds snapshots old enough for cold storage and starts exporting them to S3.
type Exporter struct {
	cfg       *ExporterConfig
	snapshots *Snapshots
	store     *TrackingStore
	trigger   *Trigger
	s3        S3API
	notifier  Notifier
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewExporter(cfg *ExporterConfig, clients Clients, notifier Notifier, log *zap.SugaredLogger) *Exporter {
	return &Exporter{
		cfg:       cfg,
		snapshots: NewSnapshots(clients.RDS),
		store:     NewTrackingStore(clients.DynamoDB, cfg.TableName),
		trigger:   NewTrigger(clients.Scheduler, cfg.SchedulerName),
		s3:        clients.S3,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// Run performs one export run. On failure a notification is attempted before the error is returned.
func (e *Exporter) Run(ctx context.Context) (Response, error) {
	resp, err := e.run(ctx)
	if err != nil {
		e.log.Errorw("rds cold storage export failed", "error", err)
		title := fmt.Sprintf("%s RDS Cold Storage Backup Failed", e.cfg.Frequency.Title())
		if notifyErr := e.notifier.Notify(ctx, title, []string{err.Error()}); notifyErr != nil {
			e.log.Errorw("failed to send failure notification", "error", notifyErr)
		}
		return Response{}, err
	}

	e.log.Infow("rds cold storage export finished", "message", resp.Body.Message)
	return resp, nil
}

func (e *Exporter) run(ctx context.Context) (Response, error) {
	now := e.now()

	if err := e.checkDestination(ctx); err != nil {
		return Response{}, err
	}

	snapshots, err := e.snapshots.ListEligible(ctx, e.cfg.Frequency, e.cfg.SnapshotType, e.cfg.Engines, now)
	if err != nil {
		return Response{}, err
	}
	if len(snapshots) == 0 {
		e.log.Infow("no snapshots eligible for export", "frequency", e.cfg.Frequency)
		return newResponse(MsgNoSnapshots), nil
	}
	e.log.Infow("found snapshots eligible for export", "count", len(snapshots), "frequency", e.cfg.Frequency)

	tasks, startErr := e.snapshots.StartExports(ctx, snapshots, ExportDestination{
		BucketName: e.cfg.BucketName,
		IamRoleArn: e.cfg.IamRoleArn,
		KmsKeyID:   e.cfg.KmsKeyID,
	}, now)
	for _, task := range tasks {
		e.log.Infow("started export task", "exportTaskId", task.ExportTaskID, "sourceArn", task.SourceArn)
	}

	// Tasks that did start are tracked even when a later one failed, so the checker still sees them.
	if err := e.persistTracking(ctx, tasks); err != nil {
		return Response{}, errors.Join(startErr, err)
	}
	if err := e.armTriggerIfNeeded(ctx, len(tasks) > 0); err != nil {
		return Response{}, errors.Join(startErr, err)
	}
	if startErr != nil {
		return Response{}, startErr
	}

	return newResponse(MsgExportsStarted), nil
}

func (e *Exporter) checkDestination(ctx context.Context) error {
	_, err := e.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(e.cfg.BucketName)})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return fmt.Errorf("cold storage bucket %s does not exist: %w", e.cfg.BucketName, err)
	}
	return fmt.Errorf("failed to access cold storage bucket %s: %w", e.cfg.BucketName, err)
}

func (e *Exporter) persistTracking(ctx context.Context, tasks []ExportTaskRecord) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := e.store.Put(ctx, tasks); err != nil {
		ids := make([]string, 0, len(tasks))
		for _, task := range tasks {
			ids = append(ids, task.ExportTaskID)
		}
		return fmt.Errorf("export tasks %s are running but untracked: %w", strings.Join(ids, ", "), err)
	}
	return nil
}

func (e *Exporter) armTriggerIfNeeded(ctx context.Context, started bool) error {
	if !started {
		return nil
	}

	created, err := e.trigger.Arm(ctx, e.cfg.TaskCheckerLambdaArn, e.cfg.TaskCheckerRoleArn)
	if err != nil {
		return err
	}
	if !created {
		e.log.Infow("task checker schedule already exists", "schedule", e.cfg.SchedulerName)
		return nil
	}

	e.log.Infow("created task checker schedule", "schedule", e.cfg.SchedulerName)
	return nil
}

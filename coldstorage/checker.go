package coldstorage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Checker polls tracked export tasks, prunes the finished ones and removes the hourly schedule
// once nothing is left to watch.
type Checker struct {
	cfg       *CheckerConfig
	snapshots *Snapshots
	store     *TrackingStore
	trigger   *Trigger
	notifier  Notifier
	log       *zap.SugaredLogger
}

func NewChecker(cfg *CheckerConfig, clients Clients, notifier Notifier, log *zap.SugaredLogger) *Checker {
	return &Checker{
		cfg:       cfg,
		snapshots: NewSnapshots(clients.RDS),
		store:     NewTrackingStore(clients.DynamoDB, cfg.TableName),
		trigger:   NewTrigger(clients.Scheduler, cfg.SchedulerName),
		notifier:  notifier,
		log:       log,
	}
}

// Run performs one check. On failure a notification is attempted before the error is returned.
func (c *Checker) Run(ctx context.Context) (Response, error) {
	resp, err := c.run(ctx)
	if err != nil {
		c.log.Errorw("rds cold storage task check failed", "error", err)
		title := fmt.Sprintf("%s RDS Cold Storage Task Checker Failed", c.cfg.Frequency.Title())
		if notifyErr := c.notifier.Notify(ctx, title, []string{err.Error()}); notifyErr != nil {
			c.log.Errorw("failed to send failure notification", "error", notifyErr)
		}
		return Response{}, err
	}

	c.log.Infow("rds cold storage task check finished", "message", resp.Body.Message)
	return resp, nil
}

func (c *Checker) run(ctx context.Context) (Response, error) {
	records, err := c.store.Scan(ctx)
	if err != nil {
		return Response{}, err
	}

	var messages []string
	drained := len(records) == 0
	if drained {
		messages = append(messages, "No export tasks are being tracked")
	} else {
		classification, err := c.Classify(ctx, records)
		if err != nil {
			return Response{}, err
		}
		if err := c.Prune(ctx, classification); err != nil {
			return Response{}, err
		}
		messages = append(messages, summarize(classification)...)

		remaining, err := c.store.Scan(ctx)
		if err != nil {
			return Response{}, err
		}
		drained = len(remaining) == 0
	}

	if drained {
		removed, err := c.trigger.Disarm(ctx)
		if err != nil {
			return Response{}, err
		}
		if removed {
			c.log.Infow("deleted task checker schedule", "schedule", c.cfg.SchedulerName)
			messages = append(messages, MsgSchedulerRemoved)
		} else {
			c.log.Infow("task checker schedule already deleted", "schedule", c.cfg.SchedulerName)
			messages = append(messages, "Hourly rds task checker lambda scheduler was already removed")
		}
	}

	return newResponse(messages...), nil
}

// Classify looks up every tracked task once, in order.
func (c *Checker) Classify(ctx context.Context, records []ExportTaskRecord) (Classification, error) {
	var classification Classification
	for _, record := range records {
		task, err := c.snapshots.DescribeExportTask(ctx, record.ExportTaskID)
		if err != nil {
			return Classification{}, err
		}
		if task.Status.Bucket() == BucketUnknown {
			c.log.Warnw("unexpected export task status", "exportTaskId", task.ID, "status", task.RawStatus)
		}
		classification.Add(task)
	}
	return classification, nil
}

// Prune deletes terminal tasks from the tracking table, one batch per bucket. Failed tasks are
// reported in a single notification before they are deleted; if that notification fails they stay
// tracked and are reported again on the next run.
func (c *Checker) Prune(ctx context.Context, classification Classification) error {
	if ids := taskIDs(classification.Completed); len(ids) > 0 {
		if err := c.store.Delete(ctx, ids); err != nil {
			return err
		}
		c.log.Infow("removed completed export tasks", "exportTaskIds", ids)
	}

	if ids := taskIDs(classification.Canceled); len(ids) > 0 {
		if err := c.store.Delete(ctx, ids); err != nil {
			return err
		}
		c.log.Infow("removed canceled export tasks", "exportTaskIds", ids)
	}

	if len(classification.Failed) == 0 {
		return nil
	}

	messages := make([]string, 0, len(classification.Failed))
	for _, task := range classification.Failed {
		messages = append(messages, FailureMessage(task))
	}
	title := fmt.Sprintf("%s RDS Cold Storage Export Task Failed", c.cfg.Frequency.Title())
	if err := c.notifier.Notify(ctx, title, messages); err != nil {
		return fmt.Errorf("failed to report failed export tasks: %w", err)
	}

	ids := taskIDs(classification.Failed)
	if err := c.store.Delete(ctx, ids); err != nil {
		return err
	}
	c.log.Infow("removed failed export tasks", "exportTaskIds", ids)

	return nil
}

// FailureMessage describes a failed export task for the notification.
func FailureMessage(task ExportTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Export task %s to %s/%s failed", task.ID, task.S3Bucket, task.S3Prefix)
	if task.WarningMessage != "" {
		fmt.Fprintf(&b, ". Warning: %s", task.WarningMessage)
	}
	if task.FailureCause != "" {
		fmt.Fprintf(&b, ". Failure cause: %s", task.FailureCause)
	}
	return b.String()
}

func summarize(classification Classification) []string {
	messages := []string{
		fmt.Sprintf("Export tasks in progress: %d", len(classification.InProgress)),
		fmt.Sprintf("Completed export tasks removed: %d", len(classification.Completed)),
		fmt.Sprintf("Failed export tasks removed: %d", len(classification.Failed)),
		fmt.Sprintf("Canceled export tasks removed: %d", len(classification.Canceled)),
	}
	if n := len(classification.Unexpected); n > 0 {
		messages = append(messages, fmt.Sprintf("Export tasks with unexpected status: %d", n))
	}
	return messages
}

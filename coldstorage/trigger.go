package coldstorage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/scheduler/types"
)

const hourlyExpression = "rate(1 hour)"

// Trigger manages the hourly EventBridge Scheduler schedule that runs the Task-Checker.
type Trigger struct {
	client SchedulerAPI
	name   string
}

func NewTrigger(client SchedulerAPI, name string) *Trigger {
	return &Trigger{client: client, name: name}
}

// Arm creates the schedule. It reports false when a schedule with the same name already exists.
func (t *Trigger) Arm(ctx context.Context, targetArn, roleArn string) (bool, error) {
	_, err := t.client.CreateSchedule(ctx, &scheduler.CreateScheduleInput{
		Name:               aws.String(t.name),
		Description:        aws.String("Hourly check of RDS cold storage export tasks"),
		ScheduleExpression: aws.String(hourlyExpression),
		State:              types.ScheduleStateEnabled,
		FlexibleTimeWindow: &types.FlexibleTimeWindow{Mode: types.FlexibleTimeWindowModeOff},
		Target: &types.Target{
			Arn:     aws.String(targetArn),
			RoleArn: aws.String(roleArn),
		},
	})

	var conflict *types.ConflictException
	if errors.As(err, &conflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create schedule %s: %w", t.name, err)
	}

	return true, nil
}

// Disarm deletes the schedule. It reports false when the schedule was already gone.
func (t *Trigger) Disarm(ctx context.Context) (bool, error) {
	_, err := t.client.DeleteSchedule(ctx, &scheduler.DeleteScheduleInput{
		Name: aws.String(t.name),
	})

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete schedule %s: %w", t.name, err)
	}

	return true, nil
}

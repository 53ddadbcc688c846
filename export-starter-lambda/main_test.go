package main

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/stretchr/testify/require"

	"rds-cold-storage/coldstorage"
)

var exporterEnv = map[string]string{
	coldstorage.EnvSnapshotTableName:    "rds-snapshot-export-tasks",
	coldstorage.EnvBackupFrequency:      "weekly",
	coldstorage.EnvColdStorageBucket:    "cold-storage-bucket",
	coldstorage.EnvRdsIamRole:           "arn:aws:iam::123456789012:role/rds-export",
	coldstorage.EnvRdsKmsKeyID:          "arn:aws:kms:us-east-1:123456789012:key/abc",
	coldstorage.EnvSchedulerName:        "rds-task-checker",
	coldstorage.EnvTaskCheckerLambdaArn: "arn:aws:lambda:us-east-1:123456789012:function:task-checker",
	coldstorage.EnvTaskCheckerRoleArn:   "arn:aws:iam::123456789012:role/scheduler",
	coldstorage.EnvWebhookURL:           "https://example.webhook.office.com/hook",
	coldstorage.EnvAccountName:          "prod-db",
}

func setEnv(t *testing.T, overrides map[string]string) {
	for name, value := range exporterEnv {
		t.Setenv(name, value)
	}
	for name, value := range overrides {
		t.Setenv(name, value)
	}
}

func TestHandlerMissingVariable(t *testing.T) {
	setEnv(t, map[string]string{coldstorage.EnvSnapshotTableName: ""})

	_, err := lambda.NewHandler(handleRequest).Invoke(context.Background(), []byte(`{}`))
	require.EqualError(t, err, "rdsSnapshotIdTableName is undefined")
}

func TestHandlerRejectsUnknownFrequency(t *testing.T) {
	setEnv(t, map[string]string{coldstorage.EnvBackupFrequency: "daily"})

	_, err := lambda.NewHandler(handleRequest).Invoke(context.Background(), []byte(`{}`))
	require.ErrorContains(t, err, `backupFrequency "daily" is not one of weekly, monthly`)
}

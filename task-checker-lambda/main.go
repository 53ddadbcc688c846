package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ses"

	"rds-cold-storage/coldstorage"
	"rds-cold-storage/logger"
)

// handleRequest ignores its payload; the hourly schedule sends an empty object.
func handleRequest(ctx context.Context, _ json.RawMessage) (coldstorage.Response, error) {
	cfg, err := coldstorage.LoadCheckerConfig()
	if err != nil {
		log.Printf("invalid configuration: %v", err)
		return coldstorage.Response{}, err
	}

	logs := logger.New(cfg.LogLevel)
	defer func() { _ = logs.Sync() }()

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return coldstorage.Response{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Notification.Resolve(ctx, secretsmanager.NewFromConfig(awsCfg), awsCfg.Region); err != nil {
		logs.Errorw("failed to resolve webhook url", "error", err)
		return coldstorage.Response{}, err
	}

	notifier := coldstorage.NewNotifier(cfg.Notification, ses.NewFromConfig(awsCfg), nil, logs)
	checker := coldstorage.NewChecker(cfg, coldstorage.Clients{
		RDS:       rds.NewFromConfig(awsCfg),
		DynamoDB:  dynamodb.NewFromConfig(awsCfg),
		Scheduler: scheduler.NewFromConfig(awsCfg),
	}, notifier, logs)

	return checker.Run(ctx)
}

func main() {
	lambda.Start(handleRequest)
}

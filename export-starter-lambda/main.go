package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ses"

	"rds-cold-storage/coldstorage"
	"rds-cold-storage/logger"
)

func handleRequest(ctx context.Context, event events.CloudWatchEvent) (coldstorage.Response, error) {
	cfg, err := coldstorage.LoadExporterConfig()
	if err != nil {
		log.Printf("invalid configuration: %v", err)
		return coldstorage.Response{}, err
	}

	logs := logger.New(cfg.LogLevel)
	defer func() { _ = logs.Sync() }()
	logs.Infow("export run triggered", "frequency", cfg.Frequency, "source", event.Source, "rule", event.Resources)

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return coldstorage.Response{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Notification.Resolve(ctx, secretsmanager.NewFromConfig(awsCfg), awsCfg.Region); err != nil {
		logs.Errorw("failed to resolve webhook url", "error", err)
		return coldstorage.Response{}, err
	}

	notifier := coldstorage.NewNotifier(cfg.Notification, ses.NewFromConfig(awsCfg), nil, logs)
	exporter := coldstorage.NewExporter(cfg, coldstorage.Clients{
		RDS:       rds.NewFromConfig(awsCfg),
		DynamoDB:  dynamodb.NewFromConfig(awsCfg),
		Scheduler: scheduler.NewFromConfig(awsCfg),
		S3:        s3.NewFromConfig(awsCfg),
	}, notifier, logs)

	return exporter.Run(ctx)
}

func main() {
	lambda.Start(handleRequest)
}

package main

import (
	"fmt"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awskms"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/aws-cdk-go/awscdklambdagoalpha/v2"

	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"rds-cold-storage/coldstorage"
	"rds-cold-storage/config"
)

type RdsColdStorageStackProps struct {
	awscdk.StackProps
}

type coldStorage struct {
	key         awskms.Key
	bucket      awss3.Bucket
	table       awsdynamodb.Table
	exportRole  awsiam.Role
	webhook     *string
	webhookRead func(awsiam.IGrantable)
}

func NewRdsColdStorageStack(scope constructs.Construct, id string, props *RdsColdStorageStackProps) awscdk.Stack {
	var sprops awscdk.StackProps
	if props != nil {
		sprops = props.StackProps
	}
	stack := awscdk.NewStack(scope, &id, &sprops)

	frequency, err := coldstorage.ParseFrequency(config.BackupFrequency(stack))
	if err != nil {
		panic(err)
	}
	schedulerName := fmt.Sprintf("%s-rds-task-checker", id)

	storage := createColdStorage(stack)

	checker := createTaskChecker(stack, storage, frequency, schedulerName)

	// EventBridge Scheduler assumes this role to invoke the Task-Checker
	schedulerRole := awsiam.NewRole(stack, jsii.String("TaskCheckerSchedulerRole"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewServicePrincipal(jsii.String("scheduler.amazonaws.com"), nil),
	})
	checker.GrantInvoke(schedulerRole)

	exporter := createExporter(stack, storage, frequency, schedulerName, checker, schedulerRole)

	// Run the Exporter on the backup cadence
	rule := awsevents.NewRule(stack, jsii.String("ExportStarterRule"), &awsevents.RuleProps{
		Schedule: exportSchedule(frequency),
	})
	rule.AddTarget(awseventstargets.NewLambdaFunction(exporter, nil))

	return stack
}

func createColdStorage(stack awscdk.Stack) *coldStorage {
	key := awskms.NewKey(stack, jsii.String("ColdStorageKey"), &awskms.KeyProps{
		EnableKeyRotation: jsii.Bool(true),
		Description:       jsii.String("Encrypts RDS snapshot exports"),
	})

	bucket := awss3.NewBucket(stack, jsii.String("ColdStorageBucket"), &awss3.BucketProps{
		Encryption:        awss3.BucketEncryption_KMS,
		EncryptionKey:     key,
		BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
		EnforceSSL:        jsii.Bool(true),
		Versioned:         jsii.Bool(false),
		LifecycleRules: &[]*awss3.LifecycleRule{
			{
				Id: jsii.String("deep-archive"),
				Transitions: &[]*awss3.Transition{
					{
						StorageClass:    awss3.StorageClass_DEEP_ARCHIVE(),
						TransitionAfter: awscdk.Duration_Days(jsii.Number(1)),
					},
				},
			},
		},
		RemovalPolicy: awscdk.RemovalPolicy_RETAIN,
	})

	table := awsdynamodb.NewTable(stack, jsii.String("ExportTaskTable"), &awsdynamodb.TableProps{
		PartitionKey: &awsdynamodb.Attribute{
			Name: jsii.String("ExportTaskId"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		BillingMode:   awsdynamodb.BillingMode_PAY_PER_REQUEST,
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})

	// RDS assumes this role to write the export into the bucket
	exportRole := awsiam.NewRole(stack, jsii.String("RdsExportRole"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewServicePrincipal(jsii.String("export.rds.amazonaws.com"), nil),
	})
	bucket.GrantReadWrite(exportRole, nil)
	key.GrantEncryptDecrypt(exportRole)

	storage := &coldStorage{
		key:         key,
		bucket:      bucket,
		table:       table,
		exportRole:  exportRole,
		webhook:     jsii.String(config.WebhookSecretArn(stack)),
		webhookRead: func(awsiam.IGrantable) {},
	}

	if webhook := config.WebhookSecretArn(stack); coldstorage.IsSecretArn(webhook) {
		secret := awssecretsmanager.Secret_FromSecretCompleteArn(stack, jsii.String("WebhookSecret"), jsii.String(webhook))
		storage.webhookRead = func(grantee awsiam.IGrantable) {
			secret.GrantRead(grantee, nil)
		}
	}

	return storage
}

func notificationEnvironment(stack awscdk.Stack, storage *coldStorage, frequency coldstorage.Frequency) map[string]*string {
	environment := map[string]*string{
		coldstorage.EnvBackupFrequency: jsii.String(string(frequency)),
		coldstorage.EnvWebhookURL:      storage.webhook,
		coldstorage.EnvAccountName:     jsii.String(config.AccountName(stack)),
		coldstorage.EnvLogLevel:        jsii.String(config.LogLevel(stack)),
	}
	if sender := config.NotificationSender(stack); sender != "" {
		environment[coldstorage.EnvNotificationSender] = jsii.String(sender)
		environment[coldstorage.EnvNotificationRecipients] = jsii.String(strings.Join(config.NotificationRecipients(stack), ","))
	}
	return environment
}

func grantNotifications(stack awscdk.Stack, storage *coldStorage, fn awslambda.IFunction) {
	storage.webhookRead(fn)
	if config.NotificationSender(stack) == "" {
		return
	}
	fn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   jsii.Strings("ses:SendEmail"),
		Resources: jsii.Strings("*"),
	}))
}

func scheduleArn(stack awscdk.Stack, schedulerName string) *string {
	return stack.FormatArn(&awscdk.ArnComponents{
		Service:      jsii.String("scheduler"),
		Resource:     jsii.String("schedule"),
		ResourceName: jsii.String("default/" + schedulerName),
	})
}

func newGoFunction(stack awscdk.Stack, id, entry string, environment map[string]*string) awscdklambdagoalpha.GoFunction {
	logGroup := awslogs.NewLogGroup(stack, jsii.String(id+"Logs"), &awslogs.LogGroupProps{
		Retention:     awslogs.RetentionDays_ONE_MONTH,
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})

	return awscdklambdagoalpha.NewGoFunction(stack, jsii.String(id), &awscdklambdagoalpha.GoFunctionProps{
		Entry:        jsii.String(entry),
		ModuleDir:    jsii.String("."),
		Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
		Architecture: awslambda.Architecture_ARM_64(),
		Timeout:      awscdk.Duration_Minutes(jsii.Number(5)),
		Environment:  &environment,
		LogGroup:     logGroup,
	})
}

func createTaskChecker(stack awscdk.Stack, storage *coldStorage, frequency coldstorage.Frequency, schedulerName string) awscdklambdagoalpha.GoFunction {
	environment := notificationEnvironment(stack, storage, frequency)
	environment[coldstorage.EnvCheckerTableName] = storage.table.TableName()
	environment[coldstorage.EnvSchedulerName] = jsii.String(schedulerName)

	checker := newGoFunction(stack, "TaskCheckerLambda", "task-checker-lambda", environment)

	storage.table.GrantReadWriteData(checker)
	checker.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   jsii.Strings("rds:DescribeExportTasks"),
		Resources: jsii.Strings("*"),
	}))
	checker.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   jsii.Strings("scheduler:DeleteSchedule"),
		Resources: &[]*string{scheduleArn(stack, schedulerName)},
	}))
	grantNotifications(stack, storage, checker)

	return checker
}

func createExporter(stack awscdk.Stack, storage *coldStorage, frequency coldstorage.Frequency, schedulerName string,
	checker awslambda.IFunction, schedulerRole awsiam.Role) awscdklambdagoalpha.GoFunction {
	environment := notificationEnvironment(stack, storage, frequency)
	environment[coldstorage.EnvSnapshotTableName] = storage.table.TableName()
	environment[coldstorage.EnvColdStorageBucket] = storage.bucket.BucketName()
	environment[coldstorage.EnvRdsIamRole] = storage.exportRole.RoleArn()
	environment[coldstorage.EnvRdsKmsKeyID] = storage.key.KeyArn()
	environment[coldstorage.EnvSchedulerName] = jsii.String(schedulerName)
	environment[coldstorage.EnvTaskCheckerLambdaArn] = checker.FunctionArn()
	environment[coldstorage.EnvTaskCheckerRoleArn] = schedulerRole.RoleArn()

	exporter := newGoFunction(stack, "ExportStarterLambda", "export-starter-lambda", environment)

	storage.table.GrantReadWriteData(exporter)
	storage.bucket.GrantRead(exporter, nil)
	exporter.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   jsii.Strings("rds:DescribeDBSnapshots", "rds:StartExportTask", "rds:DescribeExportTasks"),
		Resources: jsii.Strings("*"),
	}))
	// StartExportTask hands the key to RDS through a grant
	storage.key.Grant(exporter, jsii.String("kms:CreateGrant"), jsii.String("kms:DescribeKey"))
	storage.exportRole.GrantPassRole(exporter.GrantPrincipal())

	exporter.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   jsii.Strings("scheduler:CreateSchedule"),
		Resources: &[]*string{scheduleArn(stack, schedulerName)},
	}))
	schedulerRole.GrantPassRole(exporter.GrantPrincipal())
	grantNotifications(stack, storage, exporter)

	return exporter
}

// exportSchedule runs weekly exports every Sunday and monthly exports on the 1st, both at 06:00 UTC.
func exportSchedule(frequency coldstorage.Frequency) awsevents.Schedule {
	if frequency == coldstorage.Monthly {
		return awsevents.Schedule_Cron(&awsevents.CronOptions{
			Minute: jsii.String("0"),
			Hour:   jsii.String("6"),
			Day:    jsii.String("1"),
		})
	}
	return awsevents.Schedule_Cron(&awsevents.CronOptions{
		Minute:  jsii.String("0"),
		Hour:    jsii.String("6"),
		WeekDay: jsii.String("SUN"),
	})
}

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)

	NewRdsColdStorageStack(app, config.StackName(app), &RdsColdStorageStackProps{
		awscdk.StackProps{
			Env: env(app),
		},
	})

	app.Synth(nil)
}

// env determines the AWS environment (account+region) in which our stack is to
// be deployed. For more information see: https://docs.aws.amazon.com/cdk/latest/guide/environments.html
func env(scope constructs.Construct) *awscdk.Environment {
	// Without an account the stack stays environment-agnostic.
	account := config.DefaultAccount(scope)
	if account == "" {
		return nil
	}

	return &awscdk.Environment{
		Account: jsii.String(account),
		Region:  jsii.String(config.DefaultRegion(scope)),
	}
}

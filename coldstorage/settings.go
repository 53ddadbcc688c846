package coldstorage

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Frequency is how often the Exporter runs and decides which snapshots are old enough.
type Frequency string

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ParseFrequency accepts "weekly" or "monthly", case insensitive.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Weekly, Monthly:
		return f, nil
	default:
		return "", &ConfigError{Name: EnvBackupFrequency, Msg: fmt.Sprintf("backupFrequency %q is not one of weekly, monthly", s)}
	}
}

// Title is the capitalised form used in notification titles.
func (f Frequency) Title() string {
	if f == "" {
		return ""
	}
	return strings.ToUpper(string(f[:1])) + string(f[1:])
}

// ConfigError reports a missing or malformed environment variable.
type ConfigError struct {
	Name string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("%s is undefined", e.Name)
}

// Environment variables the Lambdas read. The stack sets them under the same names.
const (
	EnvSnapshotTableName      = "rdsSnapshotIdTableName"
	EnvCheckerTableName       = "snapshotIdTableName"
	EnvBackupFrequency        = "backupFrequency"
	EnvColdStorageBucket      = "coldStorageBucketName"
	EnvRdsIamRole             = "rdsIamRole"
	EnvRdsKmsKeyID            = "rdsKmsKeyId"
	EnvSchedulerName          = "taskCheckerSchedulerName"
	EnvTaskCheckerLambdaArn   = "taskCheckerLambdaArn"
	EnvTaskCheckerRoleArn     = "taskCheckerRoleArn"
	EnvWebhookURL             = "webhookUrl"
	EnvAccountName            = "accountName"
	EnvSnapshotType           = "snapshotType"
	EnvSnapshotEngines        = "snapshotEngines"
	EnvNotificationSender     = "notificationSender"
	EnvNotificationRecipients = "notificationRecipients"
	EnvLogLevel               = "logLevel"
	EnvRegion                 = "AWS_REGION"
)

// NotificationConfig is shared by both Lambdas.
type NotificationConfig struct {
	WebhookURL  string
	AccountName string
	Region      string
	// Sender and Recipients enable the SES copy when both are set.
	Sender     string
	Recipients []string
}

// ExporterConfig is everything the Exporter needs for one invocation.
type ExporterConfig struct {
	TableName            string
	Frequency            Frequency
	BucketName           string
	IamRoleArn           string
	KmsKeyID             string
	SchedulerName        string
	TaskCheckerLambdaArn string
	TaskCheckerRoleArn   string
	SnapshotType         string
	Engines              []string
	LogLevel             string
	Notification         NotificationConfig
}

// CheckerConfig is everything the Task-Checker needs for one invocation.
type CheckerConfig struct {
	TableName     string
	Frequency     Frequency
	SchedulerName string
	LogLevel      string
	Notification  NotificationConfig
}

// env binds every variable name verbatim; viper would otherwise upper-case them.
func env(names ...string) *viper.Viper {
	v := viper.New()
	for _, name := range names {
		_ = v.BindEnv(name, name)
	}
	v.SetDefault(EnvSnapshotType, "automated")
	v.SetDefault(EnvSnapshotEngines, "postgres,oracle-ee,oracle-se2")
	v.SetDefault(EnvLogLevel, "info")
	return v
}

func requireEnv(v *viper.Viper, names ...string) error {
	for _, name := range names {
		if v.GetString(name) == "" {
			return &ConfigError{Name: name}
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func notificationConfig(v *viper.Viper) NotificationConfig {
	return NotificationConfig{
		WebhookURL:  v.GetString(EnvWebhookURL),
		AccountName: v.GetString(EnvAccountName),
		Region:      v.GetString(EnvRegion),
		Sender:      v.GetString(EnvNotificationSender),
		Recipients:  splitList(v.GetString(EnvNotificationRecipients)),
	}
}

// LoadExporterConfig reads the Exporter environment.
func LoadExporterConfig() (*ExporterConfig, error) {
	required := []string{
		EnvSnapshotTableName, EnvBackupFrequency, EnvColdStorageBucket, EnvRdsIamRole, EnvRdsKmsKeyID,
		EnvSchedulerName, EnvTaskCheckerLambdaArn, EnvTaskCheckerRoleArn, EnvWebhookURL, EnvAccountName,
	}
	v := env(append(required,
		EnvSnapshotType, EnvSnapshotEngines, EnvNotificationSender, EnvNotificationRecipients, EnvLogLevel, EnvRegion)...)

	if err := requireEnv(v, required...); err != nil {
		return nil, err
	}

	frequency, err := ParseFrequency(v.GetString(EnvBackupFrequency))
	if err != nil {
		return nil, err
	}

	return &ExporterConfig{
		TableName:            v.GetString(EnvSnapshotTableName),
		Frequency:            frequency,
		BucketName:           v.GetString(EnvColdStorageBucket),
		IamRoleArn:           v.GetString(EnvRdsIamRole),
		KmsKeyID:             v.GetString(EnvRdsKmsKeyID),
		SchedulerName:        v.GetString(EnvSchedulerName),
		TaskCheckerLambdaArn: v.GetString(EnvTaskCheckerLambdaArn),
		TaskCheckerRoleArn:   v.GetString(EnvTaskCheckerRoleArn),
		SnapshotType:         v.GetString(EnvSnapshotType),
		Engines:              splitList(v.GetString(EnvSnapshotEngines)),
		LogLevel:             v.GetString(EnvLogLevel),
		Notification:         notificationConfig(v),
	}, nil
}

// LoadCheckerConfig reads the Task-Checker environment.
func LoadCheckerConfig() (*CheckerConfig, error) {
	required := []string{EnvCheckerTableName, EnvBackupFrequency, EnvWebhookURL, EnvAccountName, EnvSchedulerName}
	v := env(append(required, EnvNotificationSender, EnvNotificationRecipients, EnvLogLevel, EnvRegion)...)

	if err := requireEnv(v, required...); err != nil {
		return nil, err
	}

	frequency, err := ParseFrequency(v.GetString(EnvBackupFrequency))
	if err != nil {
		return nil, err
	}

	return &CheckerConfig{
		TableName:     v.GetString(EnvCheckerTableName),
		Frequency:     frequency,
		SchedulerName: v.GetString(EnvSchedulerName),
		LogLevel:      v.GetString(EnvLogLevel),
		Notification:  notificationConfig(v),
	}, nil
}

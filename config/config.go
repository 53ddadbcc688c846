package config

import (
	"strings"

	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

func contextString(scope constructs.Construct, key, fallback string) string {
	ctxValue := scope.Node().TryGetContext(jsii.String(key))
	if v, ok := ctxValue.(string); ok && v != "" {
		return v
	}
	return fallback
}

// StackName change stack name by 'cdk.json/context/stackName'.
func StackName(scope constructs.Construct) string {
	return contextString(scope, "stackName", "RdsColdStorageStack")
}

// DefaultAccount change account id by 'cdk.json/context/defaultAccount'.
func DefaultAccount(scope constructs.Construct) string {
	return contextString(scope, "defaultAccount", "")
}

// DefaultRegion change region by 'cdk.json/context/defaultRegion'.
func DefaultRegion(scope constructs.Construct) string {
	return contextString(scope, "defaultRegion", "us-east-1")
}

// BackupFrequency set export cadence by 'cdk.json/context/backupFrequency' (weekly or monthly).
func BackupFrequency(scope constructs.Construct) string {
	return contextString(scope, "backupFrequency", "weekly")
}

// AccountName set the account label shown in notifications by 'cdk.json/context/accountName'.
// Defaults to the stack name.
func AccountName(scope constructs.Construct) string {
	return contextString(scope, "accountName", StackName(scope))
}

// WebhookSecretArn set the Teams webhook by 'cdk.json/context/webhookSecretArn'. A plain URL is
// accepted too.
func WebhookSecretArn(scope constructs.Construct) string {
	return contextString(scope, "webhookSecretArn", "")
}

// NotificationSender set the SES sender by 'cdk.json/context/notificationSender'.
func NotificationSender(scope constructs.Construct) string {
	return contextString(scope, "notificationSender", "")
}

// NotificationRecipients set SES recipients by 'cdk.json/context/notificationRecipients', either a
// list or a comma separated string.
func NotificationRecipients(scope constructs.Construct) []string {
	var recipients []string
	switch v := scope.Node().TryGetContext(jsii.String("notificationRecipients")).(type) {
	case string:
		recipients = strings.Split(v, ",")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				recipients = append(recipients, s)
			}
		}
	}

	out := recipients[:0]
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// LogLevel set the Lambda log level by 'cdk.json/context/logLevel'.
func LogLevel(scope constructs.Construct) string {
	return contextString(scope, "logLevel", "info")
}

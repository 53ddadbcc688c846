package coldstorage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// IsSecretArn reports whether value is a Secrets Manager ARN in any partition.
func IsSecretArn(value string) bool {
	if !arn.IsARN(value) {
		return false
	}
	parsed, err := arn.Parse(value)
	return err == nil && parsed.Service == "secretsmanager"
}

// ResolveWebhookURL returns value unchanged unless it is a Secrets Manager ARN, in which case the
// secret is fetched. The secret may hold the URL itself or a JSON object with a "webhookUrl" key.
func ResolveWebhookURL(ctx context.Context, client SecretsAPI, value string) (string, error) {
	if !IsSecretArn(value) {
		return value, nil
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(value)})
	if err != nil {
		return "", fmt.Errorf("failed to get webhook secret: %w", err)
	}

	secret := strings.TrimSpace(aws.ToString(out.SecretString))
	if !strings.HasPrefix(secret, "{") {
		return secret, nil
	}

	var params map[string]string
	if err := json.Unmarshal([]byte(secret), &params); err != nil {
		return "", fmt.Errorf("failed to parse webhook secret: %w", err)
	}
	url, ok := params["webhookUrl"]
	if !ok || url == "" {
		return "", fmt.Errorf("webhook secret %s has no webhookUrl", value)
	}

	return url, nil
}

// Resolve fills in the region when the environment left it empty and swaps a webhook secret ARN for
// the URL it holds.
func (c *NotificationConfig) Resolve(ctx context.Context, client SecretsAPI, region string) error {
	if c.Region == "" {
		c.Region = region
	}

	url, err := ResolveWebhookURL(ctx, client, c.WebhookURL)
	if err != nil {
		return err
	}
	c.WebhookURL = url
	return nil
}

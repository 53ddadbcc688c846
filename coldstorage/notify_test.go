package coldstorage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rds-cold-storage/logger"
)

type webhook struct {
	server   *httptest.Server
	status   int
	payloads []map[string]any
}

func newWebhook(t *testing.T, status int) *webhook {
	t.Helper()
	w := &webhook{status: status}
	w.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any
		assert.NoError(t, json.Unmarshal(body, &payload))
		w.payloads = append(w.payloads, payload)

		rw.WriteHeader(w.status)
		_, _ = rw.Write([]byte("webhook says no"))
	}))
	t.Cleanup(w.server.Close)
	return w
}

func notificationConfigFor(url string) NotificationConfig {
	return NotificationConfig{WebhookURL: url, AccountName: "prod-db", Region: "us-east-1"}
}

func TestNumberedList(t *testing.T) {
	assert.Equal(t, "1. first\n2. second", NumberedList([]string{"first", "second"}))
	assert.Equal(t, "", NumberedList(nil))
}

func TestTeamsNotifierPostsCard(t *testing.T) {
	hook := newWebhook(t, http.StatusOK)
	n := NewTeamsNotifier(notificationConfigFor(hook.server.URL), hook.server.Client(), logger.Nop())

	require.NoError(t, n.Notify(context.Background(), "Weekly RDS Cold Storage Backup Failed", []string{"boom", "bang"}))
	require.Len(t, hook.payloads, 1)

	payload := hook.payloads[0]
	assert.Equal(t, "message", payload["type"])

	attachment := payload["attachments"].([]any)[0].(map[string]any)
	assert.Equal(t, "application/vnd.microsoft.card.adaptive", attachment["contentType"])

	content := attachment["content"].(map[string]any)
	assert.Equal(t, "AdaptiveCard", content["type"])

	body := content["body"].([]any)
	require.Len(t, body, 2)
	assert.Equal(t, "Weekly RDS Cold Storage Backup Failed", body[0].(map[string]any)["text"])

	columns := body[1].(map[string]any)["columns"].([]any)
	require.Len(t, columns, 2)
	values := columns[1].(map[string]any)["items"].([]any)
	assert.Equal(t, "prod-db", values[0].(map[string]any)["text"])
	assert.Equal(t, "us-east-1", values[1].(map[string]any)["text"])
	assert.Equal(t, "1. boom\n2. bang", values[2].(map[string]any)["text"])
}

func TestTeamsNotifierReportsHTTPFailure(t *testing.T) {
	hook := newWebhook(t, http.StatusBadRequest)
	n := NewTeamsNotifier(notificationConfigFor(hook.server.URL), hook.server.Client(), logger.Nop())

	err := n.Notify(context.Background(), "title", []string{"message"})
	require.ErrorContains(t, err, "teams webhook returned 400: webhook says no")
	assert.Len(t, hook.payloads, 1)
}

func TestEmailNotifier(t *testing.T) {
	client := &fakeSES{}
	cfg := notificationConfigFor("")
	cfg.Sender = "backups@example.com"
	cfg.Recipients = []string{"dba@example.com"}

	require.NoError(t, NewEmailNotifier(client, cfg, logger.Nop()).Notify(context.Background(), "subject", []string{"one"}))

	input := client.inputs[0]
	assert.Equal(t, "backups@example.com", aws.ToString(input.Source))
	assert.Equal(t, []string{"dba@example.com"}, input.Destination.ToAddresses)
	assert.Equal(t, "subject", aws.ToString(input.Message.Subject.Data))
	assert.Equal(t, "Account: prod-db\nRegion: us-east-1\n\n1. one\n", aws.ToString(input.Message.Body.Text.Data))
}

func TestNotifiersTriesEveryChannel(t *testing.T) {
	first := &recordingNotifier{err: errors.New("first down")}
	second := &recordingNotifier{}

	err := Notifiers{first, second}.Notify(context.Background(), "title", []string{"m"})
	require.ErrorContains(t, err, "first down")
	assert.Len(t, first.sent, 1)
	assert.Len(t, second.sent, 1)
}

func TestNewNotifierAddsEmailWhenConfigured(t *testing.T) {
	cfg := notificationConfigFor("https://example.com")
	assert.Len(t, NewNotifier(cfg, &fakeSES{}, nil, logger.Nop()), 1)

	cfg.Sender = "backups@example.com"
	cfg.Recipients = []string{"dba@example.com"}
	assert.Len(t, NewNotifier(cfg, &fakeSES{}, nil, logger.Nop()), 2)
}

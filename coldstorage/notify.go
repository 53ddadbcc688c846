package coldstorage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sesTypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// Notifier delivers a titled list of messages to whoever operates the workflow.
type Notifier interface {
	Notify(ctx context.Context, title string, messages []string) error
}

// NumberedList renders messages as "1. first\n2. second".
func NumberedList(messages []string) string {
	lines := make([]string, 0, len(messages))
	for i, message := range messages {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, message))
	}
	return strings.Join(lines, "\n")
}

// TeamsNotifier posts an Adaptive Card to a Microsoft Teams incoming webhook.
type TeamsNotifier struct {
	webhookURL  string
	accountName string
	region      string
	httpClient  *http.Client
	log         *zap.SugaredLogger
}

func NewTeamsNotifier(cfg NotificationConfig, httpClient *http.Client, log *zap.SugaredLogger) *TeamsNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TeamsNotifier{
		webhookURL:  cfg.WebhookURL,
		accountName: cfg.AccountName,
		region:      cfg.Region,
		httpClient:  httpClient,
		log:         log,
	}
}

type cardMessage struct {
	Type        string           `json:"type"`
	Attachments []cardAttachment `json:"attachments"`
}

type cardAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Schema  string        `json:"$schema"`
	Type    string        `json:"type"`
	Version string        `json:"version"`
	Body    []cardElement `json:"body"`
	MSTeams cardMSTeams   `json:"msteams"`
}

type cardMSTeams struct {
	Width string `json:"width"`
}

type cardElement struct {
	Type    string        `json:"type"`
	Text    string        `json:"text,omitempty"`
	Weight  string        `json:"weight,omitempty"`
	Size    string        `json:"size,omitempty"`
	Wrap    bool          `json:"wrap,omitempty"`
	Width   string        `json:"width,omitempty"`
	Columns []cardElement `json:"columns,omitempty"`
	Items   []cardElement `json:"items,omitempty"`
}

func textBlock(text string) cardElement {
	return cardElement{Type: "TextBlock", Text: text, Wrap: true}
}

func boldText(text string) cardElement {
	return cardElement{Type: "TextBlock", Text: text, Weight: "Bolder", Wrap: true}
}

// card builds the webhook payload.
func (n *TeamsNotifier) card(title string, messages []string) cardMessage {
	return cardMessage{
		Type: "message",
		Attachments: []cardAttachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: adaptiveCard{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.4",
				MSTeams: cardMSTeams{Width: "Full"},
				Body: []cardElement{
					{Type: "TextBlock", Text: title, Weight: "Bolder", Size: "Large", Wrap: true},
					{Type: "ColumnSet", Columns: []cardElement{
						{Type: "Column", Width: "auto", Items: []cardElement{
							boldText("Account"), boldText("Region"), boldText("Message"),
						}},
						{Type: "Column", Width: "stretch", Items: []cardElement{
							textBlock(n.accountName), textBlock(n.region), textBlock(NumberedList(messages)),
						}},
					}},
				},
			},
		}},
	}
}

func (n *TeamsNotifier) Notify(ctx context.Context, title string, messages []string) error {
	err := n.post(ctx, title, messages)
	if err != nil {
		n.log.Errorw("failed to send teams notification", "title", title, "error", err)
	}
	return err
}

func (n *TeamsNotifier) post(ctx context.Context, title string, messages []string) error {
	payload, err := json.Marshal(n.card(title, messages))
	if err != nil {
		return fmt.Errorf("failed to marshal teams card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post teams notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("teams webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

// EmailNotifier sends the same messages as a plain text email through SES.
type EmailNotifier struct {
	client      SESAPI
	sender      string
	recipients  []string
	accountName string
	region      string
	log         *zap.SugaredLogger
}

func NewEmailNotifier(client SESAPI, cfg NotificationConfig, log *zap.SugaredLogger) *EmailNotifier {
	return &EmailNotifier{
		client:      client,
		sender:      cfg.Sender,
		recipients:  cfg.Recipients,
		accountName: cfg.AccountName,
		region:      cfg.Region,
		log:         log,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, title string, messages []string) error {
	body := fmt.Sprintf("Account: %s\nRegion: %s\n\n%s\n", n.accountName, n.region, NumberedList(messages))

	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.sender),
		Destination: &sesTypes.Destination{ToAddresses: n.recipients},
		Message: &sesTypes.Message{
			Subject: &sesTypes.Content{Data: aws.String(title)},
			Body: &sesTypes.Body{
				Text: &sesTypes.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		err = fmt.Errorf("failed to send email: %w", err)
		n.log.Errorw("failed to send email notification", "title", title, "error", err)
	}
	return err
}

// Notifiers fans a notification out to every channel. All channels are tried; errors are joined.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, title string, messages []string) error {
	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, title, messages); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewNotifier returns the Teams notifier, plus SES when a sender and recipients are configured.
func NewNotifier(cfg NotificationConfig, sesClient SESAPI, httpClient *http.Client, log *zap.SugaredLogger) Notifier {
	notifiers := Notifiers{NewTeamsNotifier(cfg, httpClient, log)}
	if cfg.Sender != "" && len(cfg.Recipients) > 0 && sesClient != nil {
		notifiers = append(notifiers, NewEmailNotifier(sesClient, cfg, log))
	}
	return notifiers
}

package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
	templates "github.com/linesmerrill/chama-disputes-api/templates/html"
)

const (
	// DefaultExpoPushURL is the public Expo push endpoint
	DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"
	expoBatchLimit     = 100
)

// ExpoPushMessage represents a single push notification message for the Expo push API
type ExpoPushMessage struct {
	To        string                 `json:"to"`
	Title     string                 `json:"title,omitempty"`
	Body      string                 `json:"body,omitempty"`
	Sound     string                 `json:"sound,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Priority  string                 `json:"priority,omitempty"`
	ChannelID string                 `json:"channelId,omitempty"`
}

// PushChannel sends Expo push notifications to every registered device
type PushChannel struct {
	url    string
	client *http.Client
}

// NewPushChannel creates an Expo channel. An empty url uses the public
// Expo endpoint.
func NewPushChannel(url string) *PushChannel {
	if url == "" {
		url = DefaultExpoPushURL
	}
	return &PushChannel{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements Channel
func (p *PushChannel) Name() string { return "push" }

// Send pushes to every token of every contact. Tokens are batched in groups
// of 100 per the Expo API limit and a failed batch does not stop the rest.
func (p *PushChannel) Send(ctx context.Context, n disputes.Notification, contacts []models.UserContact) error {
	title, body := templates.DisputeMessage(n.Template, n.Payload)
	data := map[string]interface{}{"type": n.Template}
	for k, v := range n.Payload {
		data[k] = v
	}

	var messages []ExpoPushMessage
	for _, c := range contacts {
		for _, token := range c.PushTokens {
			if token == "" {
				continue
			}
			messages = append(messages, ExpoPushMessage{
				To:        token,
				Title:     title,
				Body:      body,
				Sound:     "default",
				Data:      data,
				Priority:  "high",
				ChannelID: "disputes",
			})
		}
	}

	var errs []error
	for i := 0; i < len(messages); i += expoBatchLimit {
		end := i + expoBatchLimit
		if end > len(messages) {
			end = len(messages)
		}
		if err := p.sendBatch(ctx, messages[i:end]); err != nil {
			errs = append(errs, fmt.Errorf("tokens %d-%d: %w", i, end-1, err))
		}
	}
	return errors.Join(errs...)
}

func (p *PushChannel) sendBatch(ctx context.Context, messages []ExpoPushMessage) error {
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expo push API returned status %d", resp.StatusCode)
	}

	zap.S().Debugw("sent push notifications via Expo", "count", len(messages))
	return nil
}

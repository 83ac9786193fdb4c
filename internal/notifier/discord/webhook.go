package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/notifier"
	"github.com/content-curator/pkg/logger"
	"github.com/content-curator/pkg/ratelimit"
)

// Webhook delivers messages to a Discord channel webhook
type Webhook struct {
	name       string
	url        string
	username   string
	avatarURL  string
	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter
	log        *logger.Logger
}

// payload is the webhook execute request body
type payload struct {
	Content   string         `json:"content,omitempty"`
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Embeds    []models.Embed `json:"embeds,omitempty"`
}

// New creates a webhook notifier
func New(hook config.WebhookConfig, cfg config.DiscordConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Webhook{
		name:      hook.Name,
		url:       hook.URL,
		username:  cfg.Username,
		avatarURL: cfg.AvatarURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
		log:     log.WithNotifier(hook.Name),
	}
}

// FromConfig creates one notifier per configured webhook
func FromConfig(cfg config.DiscordConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) []notifier.Notifier {
	out := make([]notifier.Notifier, 0, len(cfg.Webhooks))
	for _, hook := range cfg.Webhooks {
		out = append(out, New(hook, cfg, limiter, log))
	}
	return out
}

// Name returns the webhook reference name
func (w *Webhook) Name() string {
	return w.name
}

// Deliver posts the message. Discord acknowledges accepted messages with 204 No Content.
func (w *Webhook) Deliver(ctx context.Context, msg *models.Message) error {
	if err := w.limiter.Wait(ctx, ratelimit.LimiterDiscord); err != nil {
		return err
	}

	body, err := json.Marshal(payload{
		Content:   msg.Content,
		Username:  w.username,
		AvatarURL: w.avatarURL,
		Embeds:    msg.Embeds,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	w.log.Debug().Int("embeds", len(msg.Embeds)).Msg("Delivered webhook message")
	return nil
}

// Test sends a short message to verify the webhook works
func (w *Webhook) Test(ctx context.Context) error {
	return w.Deliver(ctx, &models.Message{
		Embeds: []models.Embed{{
			Title:       "Webhook Test",
			Description: "This is a test message from Content Curator.",
			Color:       0x7289DA,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Footer:      &models.EmbedFooter{Text: "Webhook: " + w.name},
		}},
	})
}

// StatusError is returned when Discord does not acknowledge with 204
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord webhook error (status %d): %s", e.StatusCode, e.Body)
}

// Ensure Webhook implements notifier.Notifier
var _ notifier.Notifier = (*Webhook)(nil)

package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/content-curator/internal/models"
)

// maxDetails bounds the item text sent with a summary request
const maxDetails = 1500

// Summarizer adds an AI written "summary" field to items
type Summarizer struct {
	client *Client
}

// NewSummarizer creates a summarizer on top of a Claude client
func NewSummarizer(client *Client) *Summarizer {
	return &Summarizer{client: client}
}

// Enrich sets item["summary"]. The item is left unchanged on error.
func (s *Summarizer) Enrich(ctx context.Context, platform models.Platform, item models.Item) error {
	details := ""
	for _, key := range []string{"description", "text", "content"} {
		if v := item.String(key); v != "" {
			details = v
			break
		}
	}
	if r := []rune(details); len(r) > maxDetails {
		details = string(r[:maxDetails])
	}

	prompt := fmt.Sprintf(SummaryUserPrompt, platform, item.Title(), item.Author(), item.URL(), details)

	summary, err := s.client.Complete(ctx, SummarySystemPrompt, prompt)
	if err != nil {
		return fmt.Errorf("failed to summarize item %s: %w", item.ID(), err)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Errorf("empty summary for item %s", item.ID())
	}

	item["summary"] = summary
	return nil
}

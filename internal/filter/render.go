package filter

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/content-curator/internal/models"
)

const maxDescription = 300

var platformColors = map[string]int{
	"youtube":   0xFF0000,
	"reddit":    0xFF4500,
	"twitter":   0x1DA1F2,
	"instagram": 0xE1306C,
}

const defaultColor = 0x7289DA

// Render builds the notification for an item: the templated content plus a rich embed
func (e *Engine) Render(platform models.Platform, item models.Item, now time.Time) *models.Message {
	return &models.Message{
		Content: FormatTemplate(item, e.Template(platform)),
		Embeds:  []models.Embed{BuildEmbed(platform, item, now)},
	}
}

// BuildEmbed creates the embed card for an item
func BuildEmbed(platform models.Platform, item models.Item, now time.Time) models.Embed {
	embed := models.Embed{
		Title:     item.Title(),
		URL:       item.URL(),
		Color:     Color(platform),
		Timestamp: now.UTC().Format(time.RFC3339),
	}

	if item.Has("author") || item.Has("channel") || item.Has("username") {
		name := item.Author()
		if name == "" {
			name = "Unknown"
		}
		embed.Author = &models.EmbedAuthor{Name: name}
	}

	if thumb := item.String("thumbnail"); thumb != "" {
		embed.Thumbnail = &models.EmbedMedia{URL: thumb}
	}
	if img := item.String("image"); img != "" {
		embed.Image = &models.EmbedMedia{URL: img}
	}

	for _, key := range []string{"description", "content", "text"} {
		if d := item.String(key); d != "" {
			embed.Description = truncate(d, maxDescription)
			break
		}
	}

	embed.Fields = metricFields(platform, item)
	return embed
}

// Color returns the embed color of a platform
func Color(platform models.Platform) int {
	if c, ok := platformColors[string(platform)]; ok {
		return c
	}
	return defaultColor
}

func metricFields(platform models.Platform, item models.Item) []models.EmbedField {
	var fields []models.EmbedField

	count := func(name, key string) {
		if item.Has(key) {
			fields = append(fields, models.EmbedField{Name: name, Value: humanize.Comma(item.Int(key)), Inline: true})
		}
	}

	switch platform {
	case models.PlatformYouTube:
		count("Views", "views")
		count("Likes", "likes")
		if d := item.String("duration"); d != "" {
			fields = append(fields, models.EmbedField{Name: "Duration", Value: d, Inline: true})
		}
	case models.PlatformReddit:
		count("Upvotes", "upvotes")
		count("Comments", "comments")
		if sr := item.String("subreddit"); sr != "" {
			fields = append(fields, models.EmbedField{Name: "Subreddit", Value: "r/" + sr, Inline: true})
		}
	case models.PlatformTwitter:
		count("Likes", "likes")
		count("Retweets", "retweets")
	}

	return fields
}

// truncate shortens s to n runes, ending with "..."
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

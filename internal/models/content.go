package models

import (
	"time"
)

// ContentItem is a previously seen piece of content. (Platform, ContentID) is unique.
type ContentItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Platform    Platform  `gorm:"size:32;not null;uniqueIndex:idx_content_dedup" json:"platform"`
	ContentID   string    `gorm:"size:255;not null;uniqueIndex:idx_content_dedup" json:"content_id"`
	Title       string    `gorm:"size:500" json:"title"`
	URL         string    `gorm:"size:1000" json:"url"`
	Author      string    `gorm:"size:255" json:"author"`
	PublishedAt string    `gorm:"size:64" json:"published_at"` // as reported by the source
	RawPayload  JSON      `gorm:"type:json" json:"raw_payload"`
	Posted      bool      `gorm:"index;not null" json:"posted"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName keeps the table name stable
func (ContentItem) TableName() string {
	return "content"
}

// NewContentItem builds the persisted row for an item delivered from a platform
func NewContentItem(platform Platform, item Item) *ContentItem {
	return &ContentItem{
		Platform:    platform,
		ContentID:   item.ID(),
		Title:       item.Title(),
		URL:         item.URL(),
		Author:      item.Author(),
		PublishedAt: item.Published(),
		RawPayload:  JSON(item.Clone()),
	}
}

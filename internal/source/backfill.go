package source

import (
	"github.com/content-curator/internal/models"
)

// Backfill fills a missing url or thumbnail from the item's native id.
// Items that already carry the fields, or platforms with no rule, are left as-is.
func Backfill(platform models.Platform, item models.Item) models.Item {
	id := item.ID()
	if id == "" {
		return item
	}

	switch platform {
	case models.PlatformYouTube:
		if item.URL() == "" {
			item["url"] = "https://www.youtube.com/watch?v=" + id
		}
		if item.String("thumbnail") == "" {
			item["thumbnail"] = "https://img.youtube.com/vi/" + id + "/hqdefault.jpg"
		}
	case models.PlatformReddit:
		if item.URL() == "" {
			item["url"] = "https://www.reddit.com/comments/" + id
		}
	}

	return item
}

// SelectionItems converts a static selection into backfilled pipeline items, in order
func SelectionItems(platform models.Platform, selection models.ContentSelection) []models.Item {
	items := make([]models.Item, 0, len(selection))
	for _, sc := range selection {
		items = append(items, Backfill(platform, sc.ToItem()))
	}
	return items
}

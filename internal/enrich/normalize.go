package enrich

import (
	"errors"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
)

// ErrSkip reports that neither payload was usable, so no record may be emitted.
var ErrSkip = errors.New("invalid API response")

// Display defaults applied when the view payload lacks a field.
const (
	DefaultTitle    = "Untitled"
	DefaultUsername = "Unknown"
)

// Normalized is the fully-defaulted merge of a view and a stat payload.
type Normalized struct {
	Stats       crawler.Stats
	Title       string
	Description string
	Thumbnail   string
	Tags        []string
	Author      crawler.Author
	Content     crawler.Content
}

// Normalize merges the two payloads. Stats overlay the stat payload first and
// the view payload last, so the view payload wins any key present in both.
// Display fields come from the view payload only. Both payloads nil yields ErrSkip.
func Normalize(view *crawler.ViewPayload, stat *crawler.StatPayload) (Normalized, error) {
	if view == nil && stat == nil {
		return Normalized{}, ErrSkip
	}

	var statRaw, viewRaw crawler.RawStats
	if stat != nil {
		statRaw = stat.Stats
	}
	if view == nil {
		view = &crawler.ViewPayload{}
	} else {
		viewRaw = view.Stats
	}

	out := Normalized{
		Stats:       Fill(Overlay(statRaw, viewRaw)),
		Title:       stringOr(view.Title, DefaultTitle),
		Description: stringOr(view.Description, ""),
		Thumbnail:   stringOr(view.ThumbnailURL, ""),
		Tags:        []string{},
		Content: crawler.Content{
			Duration:    intOr(view.DurationSeconds),
			PublishTime: intOr(view.PublishEpoch),
		},
		Author: crawler.Author{Username: DefaultUsername},
	}
	if name := stringOr(view.CategoryName, ""); name != "" {
		out.Tags = []string{name}
	}
	if view.Owner != nil {
		out.Author.UserID = intOr(view.Owner.UserID)
		out.Author.Username = stringOr(view.Owner.Username, DefaultUsername)
	}
	return out, nil
}

// Overlay returns base with every key present in top replacing base's value.
func Overlay(base, top crawler.RawStats) crawler.RawStats {
	return base.Overlay(top)
}

// Fill defaults every absent counter to zero.
func Fill(raw crawler.RawStats) crawler.Stats {
	return crawler.Stats{
		Views:     intOr(raw.Views),
		Likes:     intOr(raw.Likes),
		Coins:     intOr(raw.Coins),
		Favorites: intOr(raw.Favorites),
		Shares:    intOr(raw.Shares),
	}
}

// BuildRecord assembles the persisted record and computes its engagement rate
// from the normalized counters.
func BuildRecord(id crawler.VideoID, n Normalized) crawler.EnrichedRecord {
	return crawler.EnrichedRecord{
		VideoID:     id,
		URL:         id.URL(),
		Title:       n.Title,
		Description: n.Description,
		Thumbnail:   n.Thumbnail,
		Tags:        append([]string{}, n.Tags...),
		Author:      n.Author,
		Content:     n.Content,
		Engagement: crawler.Engagement{
			Views:          n.Stats.Views,
			Likes:          n.Stats.Likes,
			Coins:          n.Stats.Coins,
			Favorites:      n.Stats.Favorites,
			Shares:         n.Stats.Shares,
			EngagementRate: EngagementRate(n.Stats.Likes, n.Stats.Coins, n.Stats.Favorites, n.Stats.Views),
		},
	}
}

// stringOr treats an empty string like an absent one.
func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func intOr(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

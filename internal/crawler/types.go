package crawler

// VideoURLPrefix is the canonical watch-page prefix; a video URL is this prefix plus the id.
const VideoURLPrefix = "https://www.bilibili.com/video/"

// VideoID is the opaque platform token (e.g. "BV1xx411c7mD") that addresses a video.
type VideoID string

// URL returns the canonical watch-page URL for the video.
func (id VideoID) URL() string {
	return VideoURLPrefix + string(id)
}

// RawStats holds engagement counters as they appear in an API payload.
// A nil field means the key was absent, which is distinct from a reported zero.
type RawStats struct {
	Views     *int64 `json:"view,omitempty"`
	Likes     *int64 `json:"like,omitempty"`
	Coins     *int64 `json:"coin,omitempty"`
	Favorites *int64 `json:"favorite,omitempty"`
	Shares    *int64 `json:"share,omitempty"`
}

// Overlay returns s with every key present in top replacing s's value.
func (s RawStats) Overlay(top RawStats) RawStats {
	if top.Views != nil {
		s.Views = top.Views
	}
	if top.Likes != nil {
		s.Likes = top.Likes
	}
	if top.Coins != nil {
		s.Coins = top.Coins
	}
	if top.Favorites != nil {
		s.Favorites = top.Favorites
	}
	if top.Shares != nil {
		s.Shares = top.Shares
	}
	return s
}

// Owner identifies the uploader inside a view payload.
type Owner struct {
	UserID   *int64  `json:"mid,omitempty"`
	Username *string `json:"name,omitempty"`
}

// ViewPayload is the partial "video view" resource. Any field may be absent.
type ViewPayload struct {
	Title           *string  `json:"title,omitempty"`
	Description     *string  `json:"desc,omitempty"`
	ThumbnailURL    *string  `json:"pic,omitempty"`
	CategoryID      *int64   `json:"tid,omitempty"`
	CategoryName    *string  `json:"tname,omitempty"`
	DurationSeconds *int64   `json:"duration,omitempty"`
	PublishEpoch    *int64   `json:"pubdate,omitempty"`
	Owner           *Owner   `json:"owner,omitempty"`
	Stats           RawStats `json:"stat"`
}

// StatPayload is the partial "video statistics" resource.
type StatPayload struct {
	Stats RawStats
}

// Stats is the fully-defaulted result of merging both payloads' counters.
type Stats struct {
	Views     int64
	Likes     int64
	Coins     int64
	Favorites int64
	Shares    int64
}

// Author is the persisted uploader block.
type Author struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Content is the persisted content block.
type Content struct {
	Duration    int64 `json:"duration"`
	PublishTime int64 `json:"publish_time"`
}

// Engagement is the persisted statistics block including the derived rate.
type Engagement struct {
	Views          int64   `json:"views"`
	Likes          int64   `json:"likes"`
	Coins          int64   `json:"coins"`
	Favorites      int64   `json:"favorites"`
	Shares         int64   `json:"shares"`
	EngagementRate float64 `json:"engagement_rate"`
}

// EnrichedRecord is the one normalized record persisted per video.
type EnrichedRecord struct {
	VideoID     VideoID    `json:"video_id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Thumbnail   string     `json:"thumbnail"`
	Tags        []string   `json:"tags"`
	Author      Author     `json:"author"`
	Content     Content    `json:"content"`
	Engagement  Engagement `json:"engagement"`
}

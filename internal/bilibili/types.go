package bilibili

import "github.com/JakeFAU/video-trend-crawler/internal/crawler"

// envelope is the common response wrapper of the web-interface API.
type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

// statData accepts both the flat counters the archive/stat endpoint returns
// and a nested "stat" object; the nested one wins per key.
type statData struct {
	crawler.RawStats
	Stat *crawler.RawStats `json:"stat"`
}

func (d statData) payload() *crawler.StatPayload {
	stats := d.RawStats
	if d.Stat != nil {
		stats = stats.Overlay(*d.Stat)
	}
	return &crawler.StatPayload{Stats: stats}
}

// Package discovery turns search keywords into candidate video ids.
package discovery

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
)

var videoIDPattern = regexp.MustCompile(`BV[0-9A-Za-z]+`)

// SearchURL appends the url-escaped keyword to base as the "keyword" query
// parameter, keeping any query parameters already on base.
func SearchURL(base, keyword string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	q.Set("keyword", keyword)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExtractVideoIDs returns the first BV token of every anchor whose href
// contains "/video/", in document order. Duplicates are kept.
func ExtractVideoIDs(html []byte) ([]crawler.VideoID, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	var ids []crawler.VideoID
	doc.Find(`a[href*="/video/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if m := videoIDPattern.FindString(href); m != "" {
			ids = append(ids, crawler.VideoID(m))
		}
	})
	return ids, nil
}

// Dedupe keeps the first occurrence of each id and truncates the result to
// limit entries. A limit below 1 keeps everything.
func Dedupe(ids []crawler.VideoID, limit int) []crawler.VideoID {
	seen := make(map[crawler.VideoID]struct{}, len(ids))
	out := make([]crawler.VideoID, 0, len(ids))
	for _, id := range ids {
		if limit > 0 && len(out) == limit {
			break
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

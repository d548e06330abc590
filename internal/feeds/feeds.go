// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package feeds renders release and version feeds as RSS 2.0 and JSON Feed.
//
// A feed is a derived view, not an event log: it is regenerated every run
// from the full fetched collections, so it reflects total current state
// even when nothing changed.
package feeds

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/community-pulse/pulse/internal/api/github"
	"github.com/community-pulse/pulse/internal/api/npm"
	"github.com/community-pulse/pulse/internal/atomicio"
)

// maxItems caps how many items a rendered feed carries, newest first.
const maxItems = 50

// Item is a single feed entry.
type Item struct {
	Title       string
	Link        string
	Description string
	Author      string
	Date        time.Time
}

// Feed holds everything needed to render the update feeds.
type Feed struct {
	Title       string
	Description string
	Link        string
	Items       []Item
}

// ReleaseItems converts GitHub releases of repoKey to feed items.
func ReleaseItems(repoKey string, releases []github.Release) []Item {
	items := make([]Item, 0, len(releases))
	for _, r := range releases {
		desc := r.Body
		if desc == "" {
			desc = "New release: " + r.TagName
		}
		items = append(items, Item{
			Title:       repoKey + " " + r.TagName,
			Link:        r.HTMLURL,
			Description: desc,
			Author:      repoKey,
			Date:        r.PublishedAt,
		})
	}
	return items
}

// VersionItems converts npm versions of pkg to feed items.
func VersionItems(pkg string, versions []npm.Version) []Item {
	items := make([]Item, 0, len(versions))
	for _, v := range versions {
		desc := v.Description
		if desc == "" {
			desc = "New version: " + v.Version
		}
		items = append(items, Item{
			Title:       pkg + " v" + v.Version,
			Link:        "https://www.npmjs.com/package/" + pkg + "/v/" + v.Version,
			Description: desc,
			Author:      pkg,
			Date:        v.Date,
		})
	}
	return items
}

// Add appends items to the feed.
func (f *Feed) Add(items ...Item) { f.Items = append(f.Items, items...) }

// prepared returns the feed items sorted newest-first and capped at
// maxItems.
func (f *Feed) prepared() []Item {
	items := slices.Clone(f.Items)
	slices.SortStableFunc(items, func(a, b Item) int {
		return b.Date.Compare(a.Date)
	})
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	Author      string `xml:"author,omitempty"`
	PubDate     string `xml:"pubDate"`
}

// RSS renders the feed as RSS 2.0.
func (f *Feed) RSS() ([]byte, error) {
	ch := rssChannel{
		Title:         f.Title,
		Link:          f.Link,
		Description:   f.Description,
		Language:      "en",
		LastBuildDate: time.Now().Format(time.RFC1123Z),
	}
	for _, it := range f.prepared() {
		ch.Items = append(ch.Items, rssItem{
			Title:       it.Title,
			Link:        it.Link,
			GUID:        it.Link,
			Description: it.Description,
			Author:      it.Author,
			PubDate:     it.Date.Format(time.RFC1123Z),
		})
	}
	b, err := xml.MarshalIndent(rssFeed{Version: "2.0", Channel: ch}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), b...), nil
}

type jsonFeed struct {
	Version     string         `json:"version"`
	Title       string         `json:"title"`
	HomePageURL string         `json:"home_page_url"`
	Description string         `json:"description,omitempty"`
	Items       []jsonFeedItem `json:"items"`
}

type jsonFeedItem struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	ContentText   string `json:"content_text"`
	DatePublished string `json:"date_published"`
	Author        struct {
		Name string `json:"name"`
	} `json:"author"`
}

// JSON renders the feed as JSON Feed 1.1.
func (f *Feed) JSON() ([]byte, error) {
	jf := jsonFeed{
		Version:     "https://jsonfeed.org/version/1.1",
		Title:       f.Title,
		HomePageURL: f.Link,
		Description: f.Description,
		Items:       []jsonFeedItem{},
	}
	for _, it := range f.prepared() {
		ji := jsonFeedItem{
			ID:            it.Link,
			URL:           it.Link,
			Title:         it.Title,
			ContentText:   it.Description,
			DatePublished: it.Date.Format(time.RFC3339),
		}
		ji.Author.Name = it.Author
		jf.Items = append(jf.Items, ji)
	}
	return json.MarshalIndent(jf, "", "  ")
}

// WriteFiles renders the feed and writes releases.xml and releases.json to
// dir, atomically replacing previous versions. The directory is created if
// needed.
func (f *Feed) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rss, err := f.RSS()
	if err != nil {
		return fmt.Errorf("rendering RSS: %w", err)
	}
	if err := atomicio.WriteFile(filepath.Join(dir, "releases.xml"), rss, 0o644); err != nil {
		return err
	}
	jf, err := f.JSON()
	if err != nil {
		return fmt.Errorf("rendering JSON feed: %w", err)
	}
	return atomicio.WriteFile(filepath.Join(dir, "releases.json"), jf, 0o644)
}

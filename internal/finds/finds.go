// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package finds holds curated community finds and their durable records.
//
// A find starts out pending and moves to published only after the external
// write (an issue or a pull request) representing it succeeded. It never
// moves back.
package finds

import (
	"time"
)

// Type classifies what kind of content a find is.
type Type string

// Find types, in no particular order.
const (
	TypeLink       Type = "link"
	TypeTip        Type = "tip"
	TypeWorkaround Type = "workaround"
	TypeDiscussion Type = "discussion"
	TypeResource   Type = "resource"
)

// Status is the review status of a find.
type Status string

// Find statuses.
const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPublished Status = "published"
)

// Source records where a find came from.
type Source struct {
	MessageID string    `json:"messageId"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"roomId"`
}

// Find is a single curated item discovered in the community chat.
type Find struct {
	ID           string     `json:"id"`
	Type         Type       `json:"type"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	URL          string     `json:"url,omitempty"`
	Source       Source     `json:"source"`
	Category     string     `json:"category,omitempty"`
	Tags         []string   `json:"tags"`
	Status       Status     `json:"status"`
	DiscoveredAt time.Time  `json:"discoveredAt"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
	GitHubURL    string     `json:"githubUrl,omitempty"`
}

// Stats are derived counters over a snapshot's finds. They are recomputed
// from scratch on every save and never mutated independently.
type Stats struct {
	Total      int            `json:"total"`
	Pending    int            `json:"pending"`
	Approved   int            `json:"approved"`
	Published  int            `json:"published"`
	ByType     map[string]int `json:"byType"`
	ByCategory map[string]int `json:"byCategory"`
}

// Snapshot is the durable collection of all finds.
type Snapshot struct {
	LastUpdated time.Time `json:"lastUpdated"`
	Finds       []Find    `json:"finds"`
	Stats       Stats     `json:"stats"`
}

// RecomputeStats rebuilds Stats from Finds and stamps LastUpdated. Call it
// before every save.
func (s *Snapshot) RecomputeStats() {
	s.LastUpdated = time.Now()
	s.Stats = Stats{
		Total:      len(s.Finds),
		ByType:     make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, f := range s.Finds {
		switch f.Status {
		case StatusPending:
			s.Stats.Pending++
		case StatusApproved:
			s.Stats.Approved++
		case StatusPublished:
			s.Stats.Published++
		}
		s.Stats.ByType[string(f.Type)]++
		if f.Category != "" {
			s.Stats.ByCategory[f.Category]++
		}
	}
}

// Pending returns the indices of pending finds, in snapshot order.
func (s *Snapshot) Pending() []int {
	var idx []int
	for i, f := range s.Finds {
		if f.Status == StatusPending {
			idx = append(idx, i)
		}
	}
	return idx
}

// State is the durable cursor of the curator pipeline.
type State struct {
	LastProcessedTimestamp time.Time `json:"lastProcessedTimestamp"`
	LastProcessedEventID   string    `json:"lastProcessedEventId"`
	ProcessedCount         int       `json:"processedCount"`
	LastRun                time.Time `json:"lastRun"`
}

// Advance moves the cursor to the newest processed message. The timestamp
// never goes backwards.
func (s *State) Advance(ts time.Time, eventID string, processed int) {
	if ts.After(s.LastProcessedTimestamp) {
		s.LastProcessedTimestamp = ts
		s.LastProcessedEventID = eventID
	}
	s.ProcessedCount += processed
	s.LastRun = time.Now()
}

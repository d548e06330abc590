// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package finds

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/community-pulse/pulse/internal/api/github"
	"github.com/community-pulse/pulse/internal/state"
	"github.com/community-pulse/pulse/internal/testutil"
)

func TestRecomputeStats(t *testing.T) {
	t.Parallel()

	s := &Snapshot{
		Finds: []Find{
			{ID: "1", Type: TypeTip, Category: "tools", Status: StatusPending},
			{ID: "2", Type: TypeLink, Category: "tools", Status: StatusPublished},
			{ID: "3", Type: TypeTip, Status: StatusApproved},
			{ID: "4", Type: TypeResource, Category: "articles", Status: StatusRejected},
		},
	}
	s.RecomputeStats()

	testutil.AssertEqual(t, s.Stats.Total, 4)
	testutil.AssertEqual(t, s.Stats.Pending, 1)
	testutil.AssertEqual(t, s.Stats.Approved, 1)
	testutil.AssertEqual(t, s.Stats.Published, 1)
	testutil.AssertEqual(t, s.Stats.ByType, map[string]int{"tip": 2, "link": 1, "resource": 1})
	testutil.AssertEqual(t, s.Stats.ByCategory, map[string]int{"tools": 2, "articles": 1})

	if s.Stats.Pending+s.Stats.Approved+s.Stats.Published > s.Stats.Total {
		t.Fatalf("status counts exceed total: %+v", s.Stats)
	}
	if s.LastUpdated.IsZero() {
		t.Fatal("LastUpdated not stamped")
	}
}

func TestStateAdvanceMonotonic(t *testing.T) {
	t.Parallel()

	newer := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	var s State
	s.Advance(newer, "$newer", 10)
	testutil.AssertEqual(t, s.LastProcessedTimestamp, newer)
	testutil.AssertEqual(t, s.LastProcessedEventID, "$newer")
	testutil.AssertEqual(t, s.ProcessedCount, 10)

	// An older timestamp must not move the cursor backwards, but the
	// processed count still accumulates.
	s.Advance(older, "$older", 5)
	testutil.AssertEqual(t, s.LastProcessedTimestamp, newer)
	testutil.AssertEqual(t, s.LastProcessedEventID, "$newer")
	testutil.AssertEqual(t, s.ProcessedCount, 15)
}

func testPublisher(t *testing.T, mux *http.ServeMux, pending ...Find) *Publisher {
	t.Helper()

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	file, err := state.Open[Snapshot](filepath.Join(t.TempDir(), "finds.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := file.Write(func(s *Snapshot) error {
		s.Finds = pending
		s.RecomputeStats()
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	return &Publisher{
		GitHub: &github.Client{Token: "test", BaseURL: ts.URL},
		Owner:  "example",
		Repo:   "awesome",
		Finds:  file,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func pendingFind(id string) Find {
	return Find{
		ID:          id,
		Type:        TypeTip,
		Title:       "find " + id,
		Description: "description " + id,
		Status:      StatusPending,
		Tags:        []string{"desktop"},
	}
}

func TestPublishIssuesPerItemIsolation(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/example/awesome/issues", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(req.Title, "find 2") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"number":   1,
			"html_url": "https://github.com/example/awesome/issues/" + req.Title,
		})
	})

	p := testPublisher(t, mux, pendingFind("1"), pendingFind("2"), pendingFind("3"))

	n, err := p.Publish(context.Background(), ModeIssues)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, n, 2)

	p.Finds.Read(func(s *Snapshot) {
		testutil.AssertEqual(t, s.Finds[0].Status, StatusPublished)
		testutil.AssertEqual(t, s.Finds[1].Status, StatusPending)
		testutil.AssertEqual(t, s.Finds[2].Status, StatusPublished)
		// Issues mode gives every find its own URL.
		if s.Finds[0].GitHubURL == s.Finds[2].GitHubURL {
			t.Fatalf("expected distinct issue URLs, got %q twice", s.Finds[0].GitHubURL)
		}
		testutil.AssertEqual(t, s.Stats.Published, 2)
		testutil.AssertEqual(t, s.Stats.Pending, 1)
	})
}

func TestPublishIssuesAllFail(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/example/awesome/issues", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	p := testPublisher(t, mux, pendingFind("1"), pendingFind("2"))

	// A batch where every issue creation failed is an error, not an empty
	// batch: callers must be able to tell it apart from nothing pending.
	n, err := p.Publish(context.Background(), ModeIssues)
	if err == nil {
		t.Fatal("expected an error when every issue creation fails")
	}
	testutil.AssertEqual(t, n, 0)

	p.Finds.Read(func(s *Snapshot) {
		for _, f := range s.Finds {
			testutil.AssertEqual(t, f.Status, StatusPending)
		}
	})
}

func TestPublishPRAllOrNothing(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/example/awesome", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"default_branch": "main"})
	})
	mux.HandleFunc("GET /repos/example/awesome/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"object": map[string]string{"sha": "abc123"}})
	})
	mux.HandleFunc("POST /repos/example/awesome/git/refs", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "branch exists", http.StatusUnprocessableEntity)
	})

	p := testPublisher(t, mux, pendingFind("1"), pendingFind("2"), pendingFind("3"))

	if _, err := p.Publish(context.Background(), ModePR); err == nil {
		t.Fatal("expected an error from the failed branch creation")
	}

	// The failed PR must leave every find untouched.
	p.Finds.Read(func(s *Snapshot) {
		for _, f := range s.Finds {
			testutil.AssertEqual(t, f.Status, StatusPending)
			testutil.AssertEqual(t, f.GitHubURL, "")
		}
	})
}

func TestPublishPRSharedURL(t *testing.T) {
	t.Parallel()

	const prURL = "https://github.com/example/awesome/pull/7"

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/example/awesome", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"default_branch": "main"})
	})
	mux.HandleFunc("GET /repos/example/awesome/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"object": map[string]string{"sha": "abc123"}})
	})
	mux.HandleFunc("POST /repos/example/awesome/git/refs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /repos/example/awesome/contents/community-finds.md", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("PUT /repos/example/awesome/contents/community-finds.md", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /repos/example/awesome/pulls", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"number": 7, "html_url": prURL})
	})

	p := testPublisher(t, mux, pendingFind("1"), pendingFind("2"))

	n, err := p.Publish(context.Background(), ModePR)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, n, 2)

	p.Finds.Read(func(s *Snapshot) {
		for _, f := range s.Finds {
			testutil.AssertEqual(t, f.Status, StatusPublished)
			testutil.AssertEqual(t, f.GitHubURL, prURL)
			if f.PublishedAt == nil {
				t.Fatalf("find %s has no publish time", f.ID)
			}
		}
		testutil.AssertEqual(t, s.Stats.Published, 2)
	})
}

func TestPublishNothingPending(t *testing.T) {
	t.Parallel()

	// No pending finds means no API calls at all; an empty mux would fail
	// the test with a 404 if anything was requested.
	p := testPublisher(t, http.NewServeMux())
	n, err := p.Publish(context.Background(), ModePR)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, n, 0)
}

func TestFormatMarkdownGroupsByCategory(t *testing.T) {
	t.Parallel()

	list := []Find{
		{Title: "a tool", URL: "https://github.com/a/b", Category: "tools", Tags: []string{"desktop"}},
		{Title: "an article", URL: "https://dev.to/x", Category: "articles"},
		{Title: "another tool", URL: "https://github.com/c/d", Category: "tools"},
		{Title: "no category"},
	}

	md := FormatMarkdown(list)
	testutil.AssertStringContains(t, md, "## Tools")
	testutil.AssertStringContains(t, md, "## Articles")
	testutil.AssertStringContains(t, md, "## Other")
	testutil.AssertStringContains(t, md, "- [a tool](https://github.com/a/b) - desktop")

	// Both tools are under the same heading.
	tools := md[strings.Index(md, "## Tools"):strings.Index(md, "## Articles")]
	testutil.AssertStringContains(t, tools, "another tool")
}

func TestFormatMarkdownTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// Three-byte runes offset by one ASCII byte, so a byte-index cut at
	// 150 would land mid-rune. Long enough to truncate, short enough to
	// render.
	md := FormatMarkdown([]Find{{
		Title:       "multibyte",
		Description: "x" + strings.Repeat("月", 60),
		Category:    "tools",
	}})
	if !utf8.ValidString(md) {
		t.Fatalf("truncated description produced invalid UTF-8:\n%s", md)
	}
}

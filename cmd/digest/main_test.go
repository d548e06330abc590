// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/community-pulse/pulse/internal/api/gemini"
	"github.com/community-pulse/pulse/internal/api/github"
	"github.com/community-pulse/pulse/internal/cli"
	"github.com/community-pulse/pulse/internal/testutil"
)

var testNow = time.Date(2025, 8, 21, 12, 0, 0, 0, time.UTC)

func discussionNodes() []map[string]any {
	node := func(title string, reactions, comments int, age time.Duration) map[string]any {
		return map[string]any{
			"title":     title,
			"body":      "Some discussion body.",
			"url":       "https://github.com/beeper-community/awesome-beeper/discussions/" + title,
			"createdAt": testNow.Add(-age).Format(time.RFC3339),
			"author":    map[string]string{"login": "alice"},
			"comments":  map[string]int{"totalCount": comments},
			"reactions": map[string]int{"totalCount": reactions},
			"category":  map[string]string{"name": "General"},
		}
	}
	return []map[string]any{
		node("quiet", 0, 1, 24*time.Hour),
		node("busy", 5, 3, 48*time.Hour),
		node("commented", 0, 2, 72*time.Hour),
		node("stale", 9, 9, 10*24*time.Hour),
	}
}

// newTestEnv returns a digester pointed at a fake GitHub API serving
// discussionNodes.
func newTestEnv(t *testing.T, mux *http.ServeMux) *digester {
	t.Helper()

	mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"repository": map[string]any{
					"discussions": map[string]any{"nodes": discussionNodes()},
				},
			},
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &digester{
		owner:   "beeper-community",
		repo:    "awesome-beeper",
		ghToken: "test",
		gh:      &github.Client{Token: "test", BaseURL: ts.URL},
		now:     func() time.Time { return testNow },
	}
}

func run(t *testing.T, d *digester, getenv func(string) string, args ...string) (string, error) {
	t.Helper()

	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	var stdout, stderr bytes.Buffer
	env := &cli.Env{
		Args:   args,
		Getenv: getenv,
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: &stderr,
	}
	err := cli.Run(cli.WithEnv(context.Background(), env), d)
	return stdout.String(), err
}

func TestDigest(t *testing.T) {
	t.Parallel()

	d := newTestEnv(t, http.NewServeMux())
	out, err := run(t, d, nil)
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertStringContains(t, out, "# Weekly Community Digest")
	testutil.AssertStringContains(t, out, "> 2025-08-21")
	testutil.AssertStringContains(t, out, "- **Author:** @alice")
	testutil.AssertStringContains(t, out, "- **Engagement:** 5 reactions, 3 comments")
	testutil.AssertStringContains(t, out, "> Some discussion body.")

	// Below both engagement thresholds.
	testutil.AssertStringNotContains(t, out, "quiet")
	// Outside the one week window.
	testutil.AssertStringNotContains(t, out, "stale")

	// Sorted by total engagement: busy (8) before commented (2).
	if strings.Index(out, "busy") > strings.Index(out, "commented") {
		t.Fatalf("discussions not sorted by engagement:\n%s", out)
	}
}

func TestDigestIssue(t *testing.T) {
	t.Parallel()

	var issue struct {
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		Labels []string `json:"labels"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/beeper-community/awesome-beeper/issues", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&issue); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"number":   1,
			"html_url": "https://github.com/beeper-community/awesome-beeper/issues/1",
		})
	})

	d := newTestEnv(t, mux)
	out, err := run(t, d, nil, "-issue")
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, issue.Title, "Weekly Community Digest: 2025-08-21")
	testutil.AssertContains(t, issue.Labels, "needs-curation")
	testutil.AssertStringContains(t, issue.Body, "## Notable Discussions")
	testutil.AssertEqual(t, out, "")
}

func TestDigestSummary(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/gemini-1.5-flash:generateContent", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "A busy week."}}}},
			},
		})
	})

	d := newTestEnv(t, mux)
	d.model = &gemini.Client{APIKey: "key", Model: "gemini-1.5-flash", BaseURL: serverURL(t, d)}

	out, err := run(t, d, nil)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertStringContains(t, out, "## Summary\n\nA busy week.")
}

func TestDigestSummaryFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/gemini-1.5-flash:generateContent", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	d := newTestEnv(t, mux)
	d.model = &gemini.Client{APIKey: "key", Model: "gemini-1.5-flash", BaseURL: serverURL(t, d)}

	out, err := run(t, d, nil)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertStringNotContains(t, out, "## Summary")
	testutil.AssertStringContains(t, out, "## Notable Discussions")
}

func TestPreviewKeepsRuneBoundary(t *testing.T) {
	t.Parallel()

	// Three-byte runes offset by one ASCII byte: a byte-index cut at the
	// 200-byte preview cap would land mid-rune.
	mux := http.NewServeMux()
	mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"repository": map[string]any{
					"discussions": map[string]any{"nodes": []map[string]any{{
						"title":     "multibyte",
						"body":      "x" + strings.Repeat("月", 70),
						"url":       "https://github.com/beeper-community/awesome-beeper/discussions/multibyte",
						"createdAt": testNow.Add(-24 * time.Hour).Format(time.RFC3339),
						"author":    map[string]string{"login": "alice"},
						"comments":  map[string]int{"totalCount": 3},
						"reactions": map[string]int{"totalCount": 3},
						"category":  map[string]string{"name": "General"},
					}}},
				},
			},
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	d := &digester{
		owner:   "beeper-community",
		repo:    "awesome-beeper",
		ghToken: "test",
		gh:      &github.Client{Token: "test", BaseURL: ts.URL},
		now:     func() time.Time { return testNow },
	}
	out, err := run(t, d, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(out) {
		t.Fatalf("digest is not valid UTF-8:\n%s", out)
	}
	testutil.AssertStringContains(t, out, "月...")
}

func TestNoNotableDiscussions(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"repository": map[string]any{
					"discussions": map[string]any{"nodes": []any{}},
				},
			},
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	d := &digester{
		owner:   "beeper-community",
		repo:    "awesome-beeper",
		ghToken: "test",
		gh:      &github.Client{Token: "test", BaseURL: ts.URL},
		now:     func() time.Time { return testNow },
	}
	out, err := run(t, d, nil)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, out, "")
}

func TestMissingToken(t *testing.T) {
	t.Parallel()

	d := &digester{now: func() time.Time { return testNow }}
	if _, err := run(t, d, nil); !errors.Is(err, cli.ErrInvalidArgs) {
		t.Fatalf("got %v, want ErrInvalidArgs", err)
	}
}

// serverURL recovers the fake API base URL from the digester's GitHub
// client so the Gemini client can share the same test server.
func serverURL(t *testing.T, d *digester) string {
	t.Helper()
	if d.gh.BaseURL == "" {
		t.Fatal("digester has no test server")
	}
	return d.gh.BaseURL
}

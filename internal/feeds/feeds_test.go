// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package feeds

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/community-pulse/pulse/internal/api/github"
	"github.com/community-pulse/pulse/internal/api/npm"
	"github.com/community-pulse/pulse/internal/testutil"
)

func testFeed() *Feed {
	f := &Feed{
		Title:       "Updates",
		Description: "Latest ecosystem updates",
		Link:        "https://github.com/community-pulse/pulse",
	}
	f.Add(ReleaseItems("beeper/bridge-manager", []github.Release{
		{
			TagName:     "v0.12.0",
			Body:        "Bug fixes.",
			HTMLURL:     "https://github.com/beeper/bridge-manager/releases/tag/v0.12.0",
			PublishedAt: time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			TagName:     "v0.11.0",
			HTMLURL:     "https://github.com/beeper/bridge-manager/releases/tag/v0.11.0",
			PublishedAt: time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
		},
	})...)
	f.Add(VersionItems("@beeper/desktop-api", []npm.Version{
		{
			Version:     "2.3.0",
			Date:        time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC),
			Description: "Beeper Desktop API client",
		},
	})...)
	return f
}

func TestRSSParsesBack(t *testing.T) {
	t.Parallel()

	b, err := testFeed().RSS()
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(b))
	if err != nil {
		t.Fatalf("generated RSS does not parse: %v", err)
	}

	testutil.AssertEqual(t, parsed.Title, "Updates")
	testutil.AssertEqual(t, len(parsed.Items), 3)
	// Newest first across sources.
	testutil.AssertEqual(t, parsed.Items[0].Title, "@beeper/desktop-api v2.3.0")
	testutil.AssertEqual(t, parsed.Items[1].Title, "beeper/bridge-manager v0.12.0")
	testutil.AssertEqual(t, parsed.Items[1].Description, "Bug fixes.")
	// Empty release body falls back to a placeholder.
	testutil.AssertEqual(t, parsed.Items[2].Description, "New release: v0.11.0")
}

func TestJSONFeedParsesBack(t *testing.T) {
	t.Parallel()

	b, err := testFeed().JSON()
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(b))
	if err != nil {
		t.Fatalf("generated JSON feed does not parse: %v", err)
	}

	testutil.AssertEqual(t, parsed.Title, "Updates")
	testutil.AssertEqual(t, len(parsed.Items), 3)
	testutil.AssertEqual(t, parsed.Items[0].Link, "https://www.npmjs.com/package/@beeper/desktop-api/v/2.3.0")
}

func TestItemCap(t *testing.T) {
	t.Parallel()

	f := &Feed{Title: "Updates", Link: "https://example.com"}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 70 {
		f.Add(Item{
			Title: fmt.Sprintf("item %d", i),
			Link:  fmt.Sprintf("https://example.com/%d", i),
			Date:  base.Add(time.Duration(i) * time.Hour),
		})
	}

	b, err := f.JSON()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := gofeed.NewParser().ParseString(string(b))
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(parsed.Items), maxItems)
	// The newest item survived the cap.
	testutil.AssertEqual(t, parsed.Items[0].Title, "item 69")
}

func TestWriteFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := testFeed().WriteFiles(dir); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"releases.xml", "releases.json"} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := gofeed.NewParser().ParseString(string(b)); err != nil {
			t.Fatalf("%s does not parse: %v", name, err)
		}
	}
}

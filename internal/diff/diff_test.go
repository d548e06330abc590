// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package diff

import (
	"testing"

	"github.com/community-pulse/pulse/internal/api/github"
	"github.com/community-pulse/pulse/internal/api/npm"
	"github.com/community-pulse/pulse/internal/testutil"
)

func releases(tags ...string) []github.Release {
	rs := make([]github.Release, 0, len(tags))
	for _, tag := range tags {
		rs = append(rs, github.Release{TagName: tag})
	}
	return rs
}

func tags(rs []github.Release) []string {
	var ts []string
	for _, r := range rs {
		ts = append(ts, r.TagName)
	}
	return ts
}

func TestNewReleasesFirstRun(t *testing.T) {
	t.Parallel()

	snap := new(Snapshot)
	got := NewReleases("a/b", releases("v1.2.0", "v1.1.0", "v1.0.0"), snap)
	testutil.AssertEqual(t, tags(got), []string{"v1.2.0"})
}

func TestNewReleasesFirstRunEmptyFetch(t *testing.T) {
	t.Parallel()

	snap := new(Snapshot)
	got := NewReleases("a/b", nil, snap)
	testutil.AssertEqual(t, len(got), 0)
}

func TestNewReleasesSinceMark(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Releases: map[string]string{"a/b": "v1.0.0"}}
	got := NewReleases("a/b", releases("v1.2.0", "v1.1.0", "v1.0.0", "v0.9.0"), snap)
	testutil.AssertEqual(t, tags(got), []string{"v1.2.0", "v1.1.0"})
}

func TestNewReleasesUpToDate(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Releases: map[string]string{"a/b": "v1.2.0"}}
	got := NewReleases("a/b", releases("v1.2.0", "v1.1.0"), snap)
	testutil.AssertEqual(t, len(got), 0)
}

func TestNewReleasesMarkOutOfWindow(t *testing.T) {
	t.Parallel()

	// The recorded mark fell out of the fetch window: everything fetched
	// counts as new.
	snap := &Snapshot{Releases: map[string]string{"a/b": "v0.1.0"}}
	fetched := releases("v1.2.0", "v1.1.0", "v1.0.0")
	got := NewReleases("a/b", fetched, snap)
	testutil.AssertEqual(t, tags(got), tags(fetched))
}

func TestConvergence(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Releases: map[string]string{"a/b": "v1.0.0"}}
	fetched := releases("v1.2.0", "v1.1.0", "v1.0.0")

	first := NewReleases("a/b", fetched, snap)
	testutil.AssertEqual(t, len(first), 2)

	UpdateReleaseMark(snap, "a/b", fetched)
	testutil.AssertEqual(t, snap.Releases["a/b"], "v1.2.0")

	second := NewReleases("a/b", fetched, snap)
	testutil.AssertEqual(t, len(second), 0)
}

func TestMarkAdvancesWithEmptyDelta(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Releases: map[string]string{"a/b": "v1.2.0"}}
	fetched := releases("v1.2.0", "v1.1.0")

	testutil.AssertEqual(t, len(NewReleases("a/b", fetched, snap)), 0)

	UpdateReleaseMark(snap, "a/b", fetched)
	testutil.AssertEqual(t, snap.Releases["a/b"], "v1.2.0")
}

func TestMarkUnchangedOnEmptyFetch(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Releases: map[string]string{"a/b": "v1.0.0"}}
	UpdateReleaseMark(snap, "a/b", nil)
	testutil.AssertEqual(t, snap.Releases["a/b"], "v1.0.0")
}

func TestNewVersions(t *testing.T) {
	t.Parallel()

	versions := []npm.Version{
		{Version: "2.1.0"},
		{Version: "2.0.0"},
		{Version: "1.9.0"},
	}

	snap := new(Snapshot)
	got := NewVersions("@beeper/desktop-api", versions, snap)
	testutil.AssertEqual(t, len(got), 1)
	testutil.AssertEqual(t, got[0].Version, "2.1.0")

	UpdateVersionMark(snap, "@beeper/desktop-api", versions)
	testutil.AssertEqual(t, snap.NPM["@beeper/desktop-api"], "2.1.0")
	testutil.AssertEqual(t, len(NewVersions("@beeper/desktop-api", versions, snap)), 0)
}

func TestHasChanges(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		releases map[string][]github.Release
		versions map[string][]npm.Version
		want     bool
	}{
		"empty": {
			releases: map[string][]github.Release{"a/b": {}},
			versions: map[string][]npm.Version{"pkg": {}},
			want:     false,
		},
		"nil": {
			want: false,
		},
		"new release": {
			releases: map[string][]github.Release{"a/b": releases("v1.0.0")},
			want:     true,
		},
		"new version": {
			versions: map[string][]npm.Version{"pkg": {{Version: "1.0.0"}}},
			want:     true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			testutil.AssertEqual(t, HasChanges(tc.releases, tc.versions), tc.want)
		})
	}
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package diff computes what's new since the last observed state of a
// tracked source.
//
// The durable record is a high-water mark per source: the identity of the
// newest item seen on the previous run. Fetched lists arrive newest-first,
// so the delta is everything before the mark. Two policies matter:
//
//   - A source with no recorded mark is being tracked for the first time.
//     Only the single newest item is reported, so the first run doesn't
//     flood downstream consumers with the entire history.
//
//   - A mark that no longer appears in the fetched window (it fell out of
//     the fetch limit) makes the whole fetched list new. Over-notifying
//     beats silently losing items.
//
// Marks advance to the newest fetched item whenever the fetch returned
// anything, even when the delta was empty. This keeps the mark from going
// stale and referencing an identity that later falls out of the window.
package diff

import (
	"time"

	"github.com/community-pulse/pulse/internal/api/github"
	"github.com/community-pulse/pulse/internal/api/npm"
)

// Snapshot is the durable record of last-seen identities, one per tracked
// source. It is loaded at the start of a run, updated in memory, and written
// back in full at the end.
type Snapshot struct {
	LastUpdated time.Time         `json:"lastUpdated"`
	Releases    map[string]string `json:"releases"`
	NPM         map[string]string `json:"npm"`
}

// newSince returns the items before lastKnown in a newest-first list.
// An empty lastKnown means first-time tracking.
func newSince[T any](items []T, lastKnown string, identity func(T) string) []T {
	if lastKnown == "" {
		if len(items) == 0 {
			return nil
		}
		return items[:1]
	}
	for i, item := range items {
		if identity(item) == lastKnown {
			return items[:i:i]
		}
	}
	// The mark fell out of the fetch window; treat everything as new.
	return items
}

// NewReleases returns the releases of repoKey that are newer than the
// snapshot's recorded mark. releases must be sorted newest-first.
func NewReleases(repoKey string, releases []github.Release, snap *Snapshot) []github.Release {
	return newSince(releases, snap.Releases[repoKey], func(r github.Release) string { return r.TagName })
}

// NewVersions returns the versions of pkg that are newer than the snapshot's
// recorded mark. versions must be sorted newest-first.
func NewVersions(pkg string, versions []npm.Version, snap *Snapshot) []npm.Version {
	return newSince(versions, snap.NPM[pkg], func(v npm.Version) string { return v.Version })
}

// UpdateReleaseMark records the newest fetched release of repoKey as the
// snapshot's mark. It does nothing when releases is empty.
func UpdateReleaseMark(snap *Snapshot, repoKey string, releases []github.Release) {
	if len(releases) == 0 {
		return
	}
	if snap.Releases == nil {
		snap.Releases = make(map[string]string)
	}
	snap.Releases[repoKey] = releases[0].TagName
}

// UpdateVersionMark records the newest fetched version of pkg as the
// snapshot's mark. It does nothing when versions is empty.
func UpdateVersionMark(snap *Snapshot, pkg string, versions []npm.Version) {
	if len(versions) == 0 {
		return
	}
	if snap.NPM == nil {
		snap.NPM = make(map[string]string)
	}
	snap.NPM[pkg] = versions[0].Version
}

// HasChanges reports whether any tracked source has a non-empty delta. It
// gates notifications only; feeds regenerate every run regardless.
func HasChanges(releases map[string][]github.Release, versions map[string][]npm.Version) bool {
	for _, r := range releases {
		if len(r) > 0 {
			return true
		}
	}
	for _, v := range versions {
		if len(v) > 0 {
			return true
		}
	}
	return false
}

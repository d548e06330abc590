// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package changelog inserts formatted entries into Markdown changelog files.
//
// Unlike feeds, changelogs are delta-driven: one entry per new item, placed
// right after a fixed anchor comment. Entries within a batch are inserted
// oldest first, so after each run the file reads chronologically from top
// to bottom under the anchor.
package changelog

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/community-pulse/pulse/internal/api/github"
	"github.com/community-pulse/pulse/internal/api/npm"
	"github.com/community-pulse/pulse/internal/atomicio"
)

// Anchor marks where new entries are inserted. A file without it is skipped,
// never modified.
const Anchor = "<!-- pulse:insert -->"

// ErrNoAnchor is returned when a changelog file lacks the insertion anchor.
var ErrNoAnchor = errors.New("changelog: insertion anchor not found")

var (
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	topHeaders   = regexp.MustCompile(`(?m)^#{1,2} `)
)

// ReleaseEntry formats a changelog entry for a GitHub release.
func ReleaseEntry(r github.Release) string {
	tag := "`[official]`"
	if r.Prerelease {
		tag = "`[prerelease]`"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s - %s\n\n%s\n\n", r.TagName, r.PublishedAt.Format("2006-01-02"), tag)
	if r.Body != "" {
		// Strip HTML comments and demote top-level headers so release
		// notes nest under the entry header.
		body := htmlComments.ReplaceAllString(r.Body, "")
		body = topHeaders.ReplaceAllString(body, "### ")
		sb.WriteString(strings.TrimSpace(body) + "\n\n")
	}
	fmt.Fprintf(&sb, "→ [Release Notes](%s)\n\n---\n\n", r.HTMLURL)
	return sb.String()
}

// NpmEntry formats a changelog entry for an npm version. npmURL is the
// package page, for example "https://www.npmjs.com/package/@beeper/desktop-api".
func NpmEntry(v npm.Version, npmURL string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## v%s - %s\n\n`[official]`\n\n", v.Version, v.Date.Format("2006-01-02"))
	if v.Description != "" {
		sb.WriteString(v.Description + "\n\n")
	}
	fmt.Fprintf(&sb, "→ [npm](%s/v/%s)\n\n---\n\n", npmURL, v.Version)
	return sb.String()
}

// Insert places entries directly after the anchor line in content, in the
// given order. Callers pass the oldest entry of the batch first. It returns
// ErrNoAnchor when content has no anchor.
func Insert(content []byte, entries []string) ([]byte, error) {
	s := string(content)
	i := strings.Index(s, Anchor)
	if i < 0 {
		return nil, ErrNoAnchor
	}
	after := i + len(Anchor)
	// Skip the newline terminating the anchor line, if any.
	if after < len(s) && s[after] == '\n' {
		after++
	}

	var sb strings.Builder
	sb.WriteString(s[:after])
	sb.WriteString("\n")
	for _, e := range entries {
		sb.WriteString(e)
	}
	sb.WriteString(s[after:])
	return []byte(sb.String()), nil
}

// UpdateFile inserts entries into the changelog at path and atomically
// rewrites it. A missing anchor surfaces as ErrNoAnchor so callers can warn
// and move on without touching the file.
func UpdateFile(path string, entries []string) error {
	if len(entries) == 0 {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	updated, err := Insert(content, entries)
	if err != nil {
		return err
	}
	return atomicio.WriteFile(path, updated, 0o644)
}

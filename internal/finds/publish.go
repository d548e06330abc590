// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package finds

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/community-pulse/pulse/internal/api/github"
	"github.com/community-pulse/pulse/internal/state"
)

// Mode selects the publishing granularity.
type Mode string

// Publishing modes. Issues mode creates one issue per find with per-item
// failure isolation; PR mode commits all finds into a single pull request
// and either publishes the whole batch or none of it.
const (
	ModeIssues Mode = "issues"
	ModePR     Mode = "pr"
)

// Publisher pushes pending finds to GitHub and records the outcome.
//
// The finds snapshot is persisted after the external write succeeded and
// before Publish returns, so the only at-least-once window is a crash
// between those two points.
type Publisher struct {
	GitHub *github.Client
	Owner  string
	Repo   string
	Finds  *state.File[Snapshot]
	Log    *slog.Logger
}

// Publish pushes all pending finds in the given mode and returns how many
// were published. Per-item issue failures are logged, not returned, unless
// the whole batch failed; a PR failure is returned and leaves every find
// pending.
func (p *Publisher) Publish(ctx context.Context, mode Mode) (int, error) {
	var pending []Find
	p.Finds.Read(func(s *Snapshot) {
		for _, i := range s.Pending() {
			pending = append(pending, s.Finds[i])
		}
	})
	if len(pending) == 0 {
		return 0, nil
	}

	switch mode {
	case ModeIssues:
		return p.publishIssues(ctx, pending)
	case ModePR:
		return p.publishPR(ctx, pending)
	}
	return 0, fmt.Errorf("unknown publish mode %q", mode)
}

func (p *Publisher) publishIssues(ctx context.Context, pending []Find) (int, error) {
	urls := make(map[string]string) // find ID -> issue URL
	for _, f := range pending {
		labels := []string{"community-find", string(f.Type)}
		if f.Category != "" {
			labels = append(labels, "category:"+f.Category)
		}
		issue, err := p.GitHub.CreateIssue(ctx, p.Owner, p.Repo,
			fmt.Sprintf("[%s] %s", f.Type, f.Title), issueBody(f), labels)
		if err != nil {
			p.Log.Error("creating issue failed", "find", f.ID, "title", f.Title, "error", err)
			continue
		}
		p.Log.Info("created issue", "find", f.ID, "url", issue.HTMLURL)
		urls[f.ID] = issue.HTMLURL
	}
	if len(urls) == 0 {
		return 0, fmt.Errorf("creating issues failed for all %d pending finds", len(pending))
	}
	if err := p.markPublished(urls); err != nil {
		return 0, err
	}
	return len(urls), nil
}

func (p *Publisher) publishPR(ctx context.Context, pending []Find) (int, error) {
	base, err := p.GitHub.DefaultBranch(ctx, p.Owner, p.Repo)
	if err != nil {
		return 0, fmt.Errorf("getting default branch: %w", err)
	}
	sha, err := p.GitHub.BranchSHA(ctx, p.Owner, p.Repo, base)
	if err != nil {
		return 0, fmt.Errorf("getting %s head: %w", base, err)
	}

	branch := "curator/community-finds-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := p.GitHub.CreateBranch(ctx, p.Owner, p.Repo, branch, sha); err != nil {
		return 0, fmt.Errorf("creating branch %s: %w", branch, err)
	}

	const path = "community-finds.md"
	fileSHA, err := p.GitHub.FileSHA(ctx, p.Owner, p.Repo, path, branch)
	if err != nil {
		return 0, fmt.Errorf("checking %s: %w", path, err)
	}
	message := fmt.Sprintf("chore: update community finds (%d new)", len(pending))
	if err := p.GitHub.PutFile(ctx, p.Owner, p.Repo, path, branch, message, []byte(FormatMarkdown(pending)), fileSHA); err != nil {
		return 0, fmt.Errorf("updating %s: %w", path, err)
	}

	pr, err := p.GitHub.CreatePull(ctx, p.Owner, p.Repo,
		fmt.Sprintf("[Curator] %d new community finds", len(pending)), prBody(pending), branch, base)
	if err != nil {
		return 0, fmt.Errorf("creating pull request: %w", err)
	}
	p.Log.Info("created pull request", "url", pr.HTMLURL, "finds", len(pending))

	// The whole batch shares the PR URL.
	urls := make(map[string]string, len(pending))
	for _, f := range pending {
		urls[f.ID] = pr.HTMLURL
	}
	if err := p.markPublished(urls); err != nil {
		return 0, err
	}
	return len(pending), nil
}

func (p *Publisher) markPublished(urls map[string]string) error {
	now := time.Now()
	return p.Finds.Write(func(s *Snapshot) error {
		for i := range s.Finds {
			url, ok := urls[s.Finds[i].ID]
			if !ok {
				continue
			}
			s.Finds[i].Status = StatusPublished
			s.Finds[i].PublishedAt = &now
			s.Finds[i].GitHubURL = url
		}
		s.RecomputeStats()
		return nil
	})
}

func issueBody(f Find) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Community Find\n\n")
	fmt.Fprintf(&sb, "**Type:** %s\n", f.Type)
	category := f.Category
	if category == "" {
		category = "uncategorized"
	}
	fmt.Fprintf(&sb, "**Category:** %s\n", category)
	fmt.Fprintf(&sb, "**Discovered:** %s\n\n", f.DiscoveredAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "### Description\n\n%s\n\n", f.Description)
	if f.URL != "" {
		fmt.Fprintf(&sb, "### Link\n\n%s\n\n", f.URL)
	}
	fmt.Fprintf(&sb, "### Source\n\n")
	fmt.Fprintf(&sb, "- **Author:** %s\n", f.Source.Author)
	fmt.Fprintf(&sb, "- **Room:** %s\n", f.Source.RoomID)
	fmt.Fprintf(&sb, "- **Timestamp:** %s\n", f.Source.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- **Message ID:** %s\n\n", f.Source.MessageID)
	sb.WriteString("### Tags\n\n")
	if len(f.Tags) > 0 {
		quoted := make([]string, 0, len(f.Tags))
		for _, tag := range f.Tags {
			quoted = append(quoted, "`"+tag+"`")
		}
		sb.WriteString(strings.Join(quoted, ", "))
	} else {
		sb.WriteString("None")
	}
	sb.WriteString("\n\n---\n*This issue was automatically created by the pulse curator.*\n")
	return sb.String()
}

func prBody(pending []Find) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Community Finds\n\nThis PR was automatically generated by the pulse curator.\n\n")
	fmt.Fprintf(&sb, "### Summary\n\n")
	fmt.Fprintf(&sb, "- **%d** new finds discovered\n", len(pending))
	fmt.Fprintf(&sb, "- **Types:** %s\n", strings.Join(distinct(pending, func(f Find) string { return string(f.Type) }), ", "))
	fmt.Fprintf(&sb, "- **Categories:** %s\n\n", strings.Join(distinct(pending, func(f Find) string { return f.Category }), ", "))
	fmt.Fprintf(&sb, "### Finds\n\n")
	for _, f := range pending {
		fmt.Fprintf(&sb, "- [%s] %s", f.Type, f.Title)
		if f.URL != "" {
			fmt.Fprintf(&sb, " - %s", f.URL)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n---\n*Please review and merge if the finds are appropriate.*\n")
	return sb.String()
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// distinct returns the non-empty distinct values of key over finds, in
// first-seen order.
func distinct(finds []Find, key func(Find) string) []string {
	seen := make(map[string]bool)
	var vals []string
	for _, f := range finds {
		v := key(f)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		vals = append(vals, v)
	}
	return vals
}

// FormatMarkdown renders finds grouped by category for the reviewable file
// committed in PR mode. Categories appear in first-seen order.
func FormatMarkdown(list []Find) string {
	categories := distinct(list, func(f Find) string {
		if f.Category == "" {
			return "other"
		}
		return f.Category
	})
	byCategory := make(map[string][]Find)
	for _, f := range list {
		category := f.Category
		if category == "" {
			category = "other"
		}
		byCategory[category] = append(byCategory[category], f)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Community Finds\n\n*Last updated: %s*\n\n", time.Now().Format(time.RFC3339))
	sb.WriteString("These resources were discovered in the community chat and are pending review.\n\n")

	for _, category := range categories {
		fmt.Fprintf(&sb, "## %s\n\n", strings.ToUpper(category[:1])+category[1:])
		for _, f := range byCategory[category] {
			if f.URL != "" {
				fmt.Fprintf(&sb, "- [%s](%s)", f.Title, f.URL)
			} else {
				fmt.Fprintf(&sb, "- %s", f.Title)
			}
			if len(f.Tags) > 0 {
				fmt.Fprintf(&sb, " - %s", strings.Join(f.Tags, ", "))
			}
			sb.WriteString("\n")
			if f.Description != "" && f.Description != f.Title && len(f.Description) < 200 {
				desc := strings.ReplaceAll(f.Description, "\n", " ")
				desc = truncate(desc, 150)
				fmt.Fprintf(&sb, "  > %s...\n", desc)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

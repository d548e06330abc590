// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/community-pulse/pulse/internal/api/gemini"
	"github.com/community-pulse/pulse/internal/api/github"
	"github.com/community-pulse/pulse/internal/cli"
	"github.com/community-pulse/pulse/internal/logger"
	"github.com/community-pulse/pulse/internal/request"
)

// Engagement thresholds for a discussion to make the digest.
const (
	minReactions = 2
	minComments  = 2
)

// fetchLimit caps how many discussions one run considers.
const fetchLimit = 50

func main() { cli.Main(new(digester)) }

type digester struct {
	init sync.Once

	// configuration
	createIssue bool
	owner       string
	repo        string
	ghToken     string

	// initialized by doInit
	now   func() time.Time
	httpc *http.Client
	gh    *github.Client
	model *gemini.Client
	logf  logger.Logf
	slog  *slog.Logger
}

func (d *digester) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&d.createIssue, "issue", false, "File the digest as a GitHub issue instead of printing it.")
	fs.StringVar(&d.owner, "owner", "beeper-community", "Community repository `owner`.")
	fs.StringVar(&d.repo, "repo", "awesome-beeper", "Community repository `name`.")
}

func (d *digester) doInit(ctx context.Context) {
	env := cli.GetEnv(ctx)
	c := log.New(env.Stderr, "", 0)
	d.logf = c.Printf
	if d.now == nil {
		d.now = time.Now
	}
	if d.httpc == nil {
		d.httpc = request.DefaultClient
	}

	var scrubber *strings.Replacer
	if d.ghToken != "" {
		scrubber = strings.NewReplacer(d.ghToken, "[EXPUNGED]")
	}
	if d.gh == nil {
		d.gh = &github.Client{Token: d.ghToken, HTTPClient: d.httpc, Scrubber: scrubber}
	}
	if d.model == nil {
		if key := env.Getenv("GEMINI_API_KEY"); key != "" {
			d.model = &gemini.Client{
				APIKey:     key,
				Model:      cmp.Or(env.Getenv("GEMINI_MODEL"), "gemini-1.5-flash"),
				HTTPClient: d.httpc,
				Scrubber:   strings.NewReplacer(key, "[EXPUNGED]"),
			}
		}
	}

	d.slog = logger.Get(ctx).Logger
}

func (d *digester) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	d.ghToken = cmp.Or(d.ghToken, env.Getenv("GITHUB_TOKEN"))
	d.init.Do(func() { d.doInit(ctx) })

	if d.ghToken == "" {
		return fmt.Errorf("%w: GITHUB_TOKEN must be set", cli.ErrInvalidArgs)
	}

	since := d.now().AddDate(0, 0, -7)
	discussions, err := d.gh.ListDiscussions(ctx, d.owner, d.repo, since, fetchLimit)
	if err != nil {
		return fmt.Errorf("fetching discussions: %w", err)
	}
	d.slog.Info("fetched discussions", "repo", d.owner+"/"+d.repo, "total", len(discussions))

	notable := slices.DeleteFunc(slices.Clone(discussions), func(disc github.Discussion) bool {
		return disc.Reactions < minReactions && disc.Comments < minComments
	})
	if len(notable) == 0 {
		d.logf("No notable discussions this week.")
		return nil
	}
	slices.SortStableFunc(notable, func(a, b github.Discussion) int {
		return (b.Reactions + b.Comments) - (a.Reactions + a.Comments)
	})

	digest := d.render(ctx, notable)

	if !d.createIssue {
		fmt.Fprint(env.Stdout, digest)
		return nil
	}

	title := "Weekly Community Digest: " + d.now().Format("2006-01-02")
	issue, err := d.gh.CreateIssue(ctx, d.owner, d.repo, title, digest, []string{"needs-curation"})
	if err != nil {
		return fmt.Errorf("creating digest issue: %w", err)
	}
	d.logf("Created digest issue: %s", issue.HTMLURL)
	return nil
}

// render builds the digest markdown, with a model-written summary section
// when a Gemini key is configured. A failed summary is dropped, not fatal.
func (d *digester) render(ctx context.Context, notable []github.Discussion) string {
	var sb strings.Builder
	sb.WriteString("# Weekly Community Digest\n\n")
	sb.WriteString("> " + d.now().Format("2006-01-02") + "\n\n")

	if summary := d.summarize(ctx, notable); summary != "" {
		sb.WriteString("## Summary\n\n" + summary + "\n\n")
	}

	sb.WriteString("## Notable Discussions\n\n")
	for _, disc := range notable {
		fmt.Fprintf(&sb, "### [%s](%s)\n\n", disc.Title, disc.URL)
		fmt.Fprintf(&sb, "- **Author:** @%s\n", disc.Author)
		fmt.Fprintf(&sb, "- **Category:** %s\n", disc.Category)
		fmt.Fprintf(&sb, "- **Engagement:** %d reactions, %d comments\n", disc.Reactions, disc.Comments)
		if disc.Body != "" {
			preview := disc.Body
			var ellipsis string
			if len(preview) > 200 {
				preview, ellipsis = truncate(preview, 200), "..."
			}
			fmt.Fprintf(&sb, "\n> %s%s\n", strings.TrimSpace(preview), ellipsis)
		}
		sb.WriteString("\n---\n\n")
	}
	return sb.String()
}

func (d *digester) summarize(ctx context.Context, notable []github.Discussion) string {
	if d.model == nil {
		return ""
	}

	var sb strings.Builder
	for _, disc := range notable {
		fmt.Fprintf(&sb, "- %s (%d reactions, %d comments)\n", disc.Title, disc.Reactions, disc.Comments)
	}
	summary, err := d.model.GenerateText(ctx,
		"You summarize a week of community discussions in one short paragraph. Be factual and concise.",
		sb.String())
	if err != nil {
		d.slog.Warn("summarizing digest failed", "error", err)
		return ""
	}
	return strings.TrimSpace(summary)
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

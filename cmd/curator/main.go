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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/community-pulse/pulse/internal/api/github"
	"github.com/community-pulse/pulse/internal/api/matrix"
	"github.com/community-pulse/pulse/internal/cli"
	"github.com/community-pulse/pulse/internal/extract"
	"github.com/community-pulse/pulse/internal/finds"
	"github.com/community-pulse/pulse/internal/logger"
	"github.com/community-pulse/pulse/internal/request"
	"github.com/community-pulse/pulse/internal/state"
)

// fetchLimit caps how many room messages one fetch pulls in.
const fetchLimit = 200

func main() { cli.Main(new(curator)) }

type curator struct {
	init sync.Once

	// configuration
	dataDir string
	ghToken string
	owner   string
	repo    string

	// initialized by doInit
	now   func() time.Time
	httpc *http.Client
	gh    *github.Client
	room  *matrix.Client
	logf  logger.Logf
	slog  *slog.Logger
}

func (c *curator) Flags(fs *flag.FlagSet) {
	fs.StringVar(&c.dataDir, "data", "data", "Directory `path` where curator state and finds are stored.")
}

func (c *curator) doInit(ctx context.Context) {
	env := cli.GetEnv(ctx)
	c.logf = log.New(env.Stdout, "", 0).Printf
	if c.now == nil {
		c.now = time.Now
	}
	if c.httpc == nil {
		c.httpc = request.DefaultClient
	}

	var scrubber *strings.Replacer
	if c.ghToken != "" {
		scrubber = strings.NewReplacer(c.ghToken, "[EXPUNGED]")
	}
	if c.gh == nil {
		c.gh = &github.Client{Token: c.ghToken, HTTPClient: c.httpc, Scrubber: scrubber}
	}
	if c.room == nil {
		homeserver := env.Getenv("MATRIX_HOMESERVER_URL")
		token := env.Getenv("MATRIX_ACCESS_TOKEN")
		roomID := env.Getenv("MATRIX_ROOM_ID")
		if homeserver != "" && token != "" && roomID != "" {
			c.room = &matrix.Client{
				HomeserverURL: homeserver,
				AccessToken:   token,
				RoomID:        roomID,
				HTTPClient:    c.httpc,
				Scrubber:      strings.NewReplacer(token, "[EXPUNGED]"),
			}
		}
	}

	c.slog = logger.Get(ctx).Logger
}

func (c *curator) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	c.ghToken = cmp.Or(c.ghToken, env.Getenv("GITHUB_TOKEN"))
	c.owner = cmp.Or(c.owner, env.Getenv("CURATOR_GITHUB_OWNER"), "beeper-community")
	c.repo = cmp.Or(c.repo, env.Getenv("CURATOR_GITHUB_REPO"), "awesome-beeper")
	c.init.Do(func() { c.doInit(ctx) })

	if len(env.Args) == 0 {
		return fmt.Errorf("%w: missing command (fetch, process, publish, run or stats)", cli.ErrInvalidArgs)
	}

	switch cmd := env.Args[0]; cmd {
	case "fetch":
		return c.fetch(ctx)
	case "process":
		return c.process()
	case "publish":
		mode := finds.ModePR
		if len(env.Args) > 1 && env.Args[1] == "issues" {
			mode = finds.ModeIssues
		}
		return c.publish(ctx, mode)
	case "run":
		return c.run(ctx)
	case "stats":
		return c.stats()
	default:
		return fmt.Errorf("%w: unknown command %q", cli.ErrInvalidArgs, cmd)
	}
}

func (c *curator) openState() (*state.File[finds.State], error) {
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return nil, err
	}
	return state.Open[finds.State](filepath.Join(c.dataDir, "curator-state.json"))
}

func (c *curator) openFinds() (*state.File[finds.Snapshot], error) {
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return nil, err
	}
	return state.Open[finds.Snapshot](filepath.Join(c.dataDir, "community-finds.json"))
}

// fetch pulls new room messages since the cursor, records the interesting
// ones as pending finds and advances the cursor to the newest message seen.
func (c *curator) fetch(ctx context.Context) error {
	if c.room == nil {
		return fmt.Errorf("%w: MATRIX_HOMESERVER_URL, MATRIX_ACCESS_TOKEN and MATRIX_ROOM_ID must be set", cli.ErrInvalidArgs)
	}

	stateFile, err := c.openState()
	if err != nil {
		return err
	}
	var st finds.State
	stateFile.Read(func(s *finds.State) { st = *s })

	// A fresh cursor starts from a day ago, not from the beginning of the
	// room history.
	since := st.LastProcessedTimestamp
	if since.IsZero() {
		since = c.now().Add(-24 * time.Hour)
	}
	c.logf("Fetching new messages since %s.", since.Format(time.RFC3339))

	messages, err := c.room.Messages(ctx, since, fetchLimit)
	if err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}
	c.logf("Fetched %d new messages.", len(messages))
	if len(messages) == 0 {
		return stateFile.Write(func(s *finds.State) error {
			s.LastRun = c.now()
			return nil
		})
	}

	collected := extract.ProcessMessages(messages)
	for _, f := range collected {
		c.logf("  [%s] %s", f.Type, f.Title)
		if f.URL != "" {
			c.logf("    %s", f.URL)
		}
	}

	findsFile, err := c.openFinds()
	if err != nil {
		return err
	}
	var total int
	if err := findsFile.Write(func(s *finds.Snapshot) error {
		s.Finds = append(s.Finds, collected...)
		s.RecomputeStats()
		total = len(s.Finds)
		return nil
	}); err != nil {
		return fmt.Errorf("saving finds: %w", err)
	}

	latest := messages[len(messages)-1]
	if err := stateFile.Write(func(s *finds.State) error {
		s.Advance(latest.Timestamp, latest.EventID, len(messages))
		return nil
	}); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	c.logf("Added %d finds to snapshot (%d total).", len(collected), total)
	return nil
}

// process lists the pending finds without touching any state.
func (c *curator) process() error {
	findsFile, err := c.openFinds()
	if err != nil {
		return err
	}

	findsFile.Read(func(s *finds.Snapshot) {
		pending := s.Pending()
		c.logf("Total finds: %d", len(s.Finds))
		c.logf("Pending review: %d", len(pending))
		for _, i := range pending {
			f := s.Finds[i]
			c.logf("  [%s] %s", f.Type, f.Title)
			c.logf("    Category: %s", cmp.Or(f.Category, "none"))
			c.logf("    Tags: %s", cmp.Or(strings.Join(f.Tags, ", "), "none"))
			if f.URL != "" {
				c.logf("    URL: %s", f.URL)
			}
		}
	})
	return nil
}

func (c *curator) publish(ctx context.Context, mode finds.Mode) error {
	if c.ghToken == "" {
		return fmt.Errorf("%w: GITHUB_TOKEN must be set", cli.ErrInvalidArgs)
	}

	findsFile, err := c.openFinds()
	if err != nil {
		return err
	}

	p := &finds.Publisher{
		GitHub: c.gh,
		Owner:  c.owner,
		Repo:   c.repo,
		Finds:  findsFile,
		Log:    c.slog,
	}
	n, err := p.Publish(ctx, mode)
	if err != nil {
		return fmt.Errorf("publishing finds: %w", err)
	}
	if n == 0 {
		c.logf("No pending finds to publish.")
		return nil
	}
	c.logf("Published %d finds (mode: %s).", n, mode)
	return nil
}

// run is the full pipeline: fetch, then publish a PR if anything is pending.
func (c *curator) run(ctx context.Context) error {
	if err := c.fetch(ctx); err != nil {
		return err
	}

	findsFile, err := c.openFinds()
	if err != nil {
		return err
	}
	var pending int
	findsFile.Read(func(s *finds.Snapshot) { pending = len(s.Pending()) })
	if pending == 0 {
		c.logf("No new finds to publish.")
		return nil
	}
	return c.publish(ctx, finds.ModePR)
}

func (c *curator) stats() error {
	stateFile, err := c.openState()
	if err != nil {
		return err
	}
	findsFile, err := c.openFinds()
	if err != nil {
		return err
	}

	var st finds.State
	stateFile.Read(func(s *finds.State) { st = *s })

	c.logf("State:")
	c.logf("  Last run: %s", st.LastRun.Format(time.RFC3339))
	c.logf("  Last processed: %s", st.LastProcessedTimestamp.Format(time.RFC3339))
	c.logf("  Total processed: %d messages", st.ProcessedCount)

	findsFile.Read(func(s *finds.Snapshot) {
		c.logf("Finds:")
		c.logf("  Total: %d", s.Stats.Total)
		c.logf("  Pending: %d", s.Stats.Pending)
		c.logf("  Published: %d", s.Stats.Published)
		c.logf("By type:")
		for typ, count := range s.Stats.ByType {
			c.logf("  %s: %d", typ, count)
		}
		c.logf("By category:")
		for category, count := range s.Stats.ByCategory {
			c.logf("  %s: %d", category, count)
		}
	})
	return nil
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"errors"
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
	"github.com/community-pulse/pulse/internal/api/npm"
	"github.com/community-pulse/pulse/internal/changelog"
	"github.com/community-pulse/pulse/internal/cli"
	"github.com/community-pulse/pulse/internal/config"
	"github.com/community-pulse/pulse/internal/diff"
	"github.com/community-pulse/pulse/internal/feeds"
	"github.com/community-pulse/pulse/internal/logger"
	"github.com/community-pulse/pulse/internal/notify"
	"github.com/community-pulse/pulse/internal/request"
	"github.com/community-pulse/pulse/internal/state"
)

// fetchLimit caps how many releases or versions one fetch returns.
const fetchLimit = 30

func main() { cli.Main(new(updater)) }

type updater struct {
	init sync.Once

	// configuration
	dry           bool
	dataDir       string
	feedsDir      string
	changelogPath string
	configPath    string
	ghToken       string

	// initialized by doInit
	now       func() time.Time
	httpc     *http.Client
	gh        *github.Client
	registry  *npm.Client
	senders   []notify.Sender
	logf      logger.Logf
	slog      *slog.Logger
	slogLevel *slog.LevelVar
}

func (u *updater) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&u.dry, "dry", false, "Enable dry-run mode: log actions, but don't write files or send notifications.")
	fs.StringVar(&u.dataDir, "data", "data", "Directory `path` where the snapshot is stored.")
	fs.StringVar(&u.feedsDir, "feeds", "feeds", "Directory `path` where feeds are written.")
	fs.StringVar(&u.changelogPath, "changelog", "CHANGELOG.md", "Changelog file `path` to insert entries into.")
	fs.StringVar(&u.configPath, "config", "", "Config file `path`. Uses the embedded default config if empty.")
}

func (u *updater) doInit(ctx context.Context) {
	env := cli.GetEnv(ctx)
	u.logf = log.New(env.Stderr, "", 0).Printf
	if u.now == nil {
		u.now = time.Now
	}
	if u.httpc == nil {
		u.httpc = request.DefaultClient
	}

	var scrubber *strings.Replacer
	if u.ghToken != "" {
		scrubber = strings.NewReplacer(u.ghToken, "[EXPUNGED]")
	}
	if u.gh == nil {
		u.gh = &github.Client{Token: u.ghToken, HTTPClient: u.httpc, Scrubber: scrubber}
	}
	if u.registry == nil {
		u.registry = &npm.Client{HTTPClient: u.httpc}
	}
	if u.senders == nil {
		u.senders = notify.FromEnv(env.Getenv, matrixClientFromEnv(env.Getenv, u.httpc))
	}

	l := logger.Get(ctx)
	u.slog = l.Logger
	u.slogLevel = l.Level
}

// matrixClientFromEnv returns a room client when all Matrix credentials are
// set, or nil.
func matrixClientFromEnv(getenv func(string) string, httpc *http.Client) *matrix.Client {
	homeserver := getenv("MATRIX_HOMESERVER_URL")
	token := getenv("MATRIX_ACCESS_TOKEN")
	room := getenv("MATRIX_ROOM_ID")
	if homeserver == "" || token == "" || room == "" {
		return nil
	}
	return &matrix.Client{
		HomeserverURL: homeserver,
		AccessToken:   token,
		RoomID:        room,
		HTTPClient:    httpc,
		Scrubber:      strings.NewReplacer(token, "[EXPUNGED]"),
	}
}

func (u *updater) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	u.ghToken = cmp.Or(u.ghToken, env.Getenv("GITHUB_TOKEN"))
	u.configPath = cmp.Or(u.configPath, env.Getenv("CONFIG_FILE"))
	u.init.Do(func() { u.doInit(ctx) })

	if u.dry {
		u.slogLevel.Set(slog.LevelDebug)
	}

	cfg, err := config.Load(u.configPath, func(msg string) { u.logf("config: %s", msg) })
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(u.dataDir, 0o755); err != nil {
		return err
	}
	snapFile, err := state.Open[diff.Snapshot](filepath.Join(u.dataDir, "snapshot.json"))
	if err != nil {
		return err
	}
	var snap diff.Snapshot
	snapFile.Read(func(s *diff.Snapshot) { snap = *s })

	// Fetch everything. A failed fetch degrades to "nothing new from this
	// source"; the mark stays put and the next run retries.
	allReleases := make(map[string][]github.Release)
	newReleases := make(map[string][]github.Release)
	for _, repo := range cfg.Repos {
		key := repo.Key()
		releases, err := u.gh.ListReleases(ctx, repo.Owner, repo.Name, fetchLimit)
		if err != nil {
			u.slog.Error("fetching releases failed", "repo", key, "error", err)
			continue
		}
		allReleases[key] = releases
		delta := diff.NewReleases(key, releases, &snap)
		newReleases[key] = delta
		u.slog.Info("fetched releases", "repo", key, "total", len(releases), "new", len(delta))
	}

	allVersions := make(map[string][]npm.Version)
	newVersions := make(map[string][]npm.Version)
	for _, pkg := range cfg.Packages {
		versions, err := u.registry.Versions(ctx, pkg, fetchLimit)
		if err != nil {
			u.slog.Error("fetching versions failed", "package", pkg, "error", err)
			continue
		}
		allVersions[pkg] = versions
		delta := diff.NewVersions(pkg, versions, &snap)
		newVersions[pkg] = delta
		u.slog.Info("fetched versions", "package", pkg, "total", len(versions), "new", len(delta))
	}

	if u.dry {
		u.logf("dry run: skipping feeds, changelog, snapshot and notifications")
		return nil
	}

	// Feeds reflect the full fetched state and regenerate every run.
	feed := &feeds.Feed{
		Title:       "Community Pulse Updates",
		Description: "Latest updates from tracked repositories and packages",
		Link:        "https://github.com/community-pulse/pulse",
	}
	for key, releases := range allReleases {
		feed.Add(feeds.ReleaseItems(key, releases)...)
	}
	for pkg, versions := range allVersions {
		feed.Add(feeds.VersionItems(pkg, versions)...)
	}
	if err := feed.WriteFiles(u.feedsDir); err != nil {
		return fmt.Errorf("writing feeds: %w", err)
	}

	u.updateChangelog(cfg, newReleases, newVersions)

	// Marks advance to the newest fetched item even when nothing was new,
	// so a delivery failure below is never retried with the same delta.
	if err := snapFile.Write(func(s *diff.Snapshot) error {
		for key, releases := range allReleases {
			diff.UpdateReleaseMark(s, key, releases)
		}
		for pkg, versions := range allVersions {
			diff.UpdateVersionMark(s, pkg, versions)
		}
		s.LastUpdated = u.now()
		return nil
	}); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	if !diff.HasChanges(newReleases, newVersions) {
		u.logf("No new updates. Feeds regenerated.")
		return nil
	}
	u.notify(ctx, cfg, newReleases, newVersions)
	return nil
}

// updateChangelog inserts one entry per new item, oldest first within each
// batch so the file reads chronologically. A missing anchor is a warning,
// not a failure.
func (u *updater) updateChangelog(cfg *config.Config, newReleases map[string][]github.Release, newVersions map[string][]npm.Version) {
	var entries []string
	for _, repo := range cfg.Repos {
		delta := newReleases[repo.Key()]
		for i := len(delta) - 1; i >= 0; i-- {
			entries = append(entries, changelog.ReleaseEntry(delta[i]))
		}
	}
	for _, pkg := range cfg.Packages {
		delta := newVersions[pkg]
		for i := len(delta) - 1; i >= 0; i-- {
			entries = append(entries, changelog.NpmEntry(delta[i], "https://www.npmjs.com/package/"+pkg))
		}
	}
	if len(entries) == 0 {
		return
	}
	if err := changelog.UpdateFile(u.changelogPath, entries); err != nil {
		if errors.Is(err, changelog.ErrNoAnchor) {
			u.slog.Warn("changelog has no insertion anchor, skipping", "path", u.changelogPath)
			return
		}
		u.slog.Error("updating changelog failed", "path", u.changelogPath, "error", err)
	}
}

// notify dispatches one notification per new item to every configured
// channel. Failures are logged and never block the run.
func (u *updater) notify(ctx context.Context, cfg *config.Config, newReleases map[string][]github.Release, newVersions map[string][]npm.Version) {
	if len(u.senders) == 0 {
		u.slog.Info("no notification channels configured")
		return
	}

	var payloads []notify.Payload
	for _, repo := range cfg.Repos {
		for _, r := range newReleases[repo.Key()] {
			payloads = append(payloads, notify.Payload{
				Type:    notify.TypeRelease,
				Title:   "New Release: " + repo.Key(),
				Message: fmt.Sprintf("%s has been updated to %s", repo.Key(), r.TagName),
				URL:     r.HTMLURL,
			})
		}
	}
	for _, pkg := range cfg.Packages {
		for _, v := range newVersions[pkg] {
			payloads = append(payloads, notify.Payload{
				Type:    notify.TypeRelease,
				Title:   "New Release: " + pkg,
				Message: fmt.Sprintf("npm package %s has been updated to v%s", pkg, v.Version),
				URL:     "https://www.npmjs.com/package/" + pkg,
			})
		}
	}

	for _, p := range payloads {
		for _, res := range notify.Dispatch(ctx, u.senders, p) {
			if res.Success {
				u.slog.Info("notification sent", "provider", res.Provider, "title", p.Title)
			} else {
				u.slog.Error("notification failed", "provider", res.Provider, "title", p.Title, "error", res.Err)
			}
		}
	}
}

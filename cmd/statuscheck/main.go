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

	"github.com/community-pulse/pulse/internal/api/matrix"
	"github.com/community-pulse/pulse/internal/cli"
	"github.com/community-pulse/pulse/internal/config"
	"github.com/community-pulse/pulse/internal/logger"
	"github.com/community-pulse/pulse/internal/notify"
	"github.com/community-pulse/pulse/internal/request"
	"github.com/community-pulse/pulse/internal/state"
	"github.com/community-pulse/pulse/internal/status"
)

func main() { cli.Main(new(checker)) }

type checker struct {
	init sync.Once

	// configuration
	doNotify   bool
	dataDir    string
	configPath string

	// initialized by doInit
	now     func() time.Time
	httpc   *http.Client
	senders []notify.Sender
	logf    logger.Logf
	slog    *slog.Logger
}

func (c *checker) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&c.doNotify, "notify", false, "Send a status notification to the configured channels.")
	fs.StringVar(&c.dataDir, "data", "data", "Directory `path` where the status snapshot is stored.")
	fs.StringVar(&c.configPath, "config", "", "Config file `path`. Uses the embedded default config if empty.")
}

func (c *checker) doInit(ctx context.Context) {
	env := cli.GetEnv(ctx)
	c.logf = log.New(env.Stdout, "", 0).Printf
	if c.now == nil {
		c.now = time.Now
	}
	if c.httpc == nil {
		c.httpc = request.DefaultClient
	}
	if c.senders == nil {
		c.senders = notify.FromEnv(env.Getenv, matrixClientFromEnv(env.Getenv, c.httpc))
	}
	c.slog = logger.Get(ctx).Logger
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

func (c *checker) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	c.configPath = cmp.Or(c.configPath, env.Getenv("CONFIG_FILE"))
	c.init.Do(func() { c.doInit(ctx) })

	cfg, err := config.Load(c.configPath, func(msg string) { c.logf("config: %s", msg) })
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.Endpoints) == 0 {
		c.logf("No endpoints configured.")
		return nil
	}

	results := status.CheckAll(ctx, c.httpc, cfg.Endpoints)
	for _, r := range results {
		if r.Error != "" {
			c.logf("  %s: %s (%s)", r.Endpoint.Name, r.Status, r.Error)
			continue
		}
		c.logf("  %s: %s (%dms)", r.Endpoint.Name, r.Status, r.ResponseTime)
	}

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return err
	}
	snapFile, err := state.Open[status.Snapshot](filepath.Join(c.dataDir, "status-snapshot.json"))
	if err != nil {
		return err
	}
	var overall status.State
	if err := snapFile.Write(func(s *status.Snapshot) error {
		s.Update(results, c.now())
		overall = s.Overall
		return nil
	}); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	c.logf("Overall status: %s", overall)

	if c.doNotify {
		c.notify(ctx, overall, results)
	}
	return nil
}

// notify sends one status notification summarizing every probed service.
// Failures are logged and never fail the run.
func (c *checker) notify(ctx context.Context, overall status.State, results []status.CheckResult) {
	if len(c.senders) == 0 {
		c.slog.Info("no notification channels configured")
		return
	}

	var lines []string
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s: %s", r.Endpoint.Name, r.Status))
	}
	p := notify.Payload{
		Type:    notify.TypeStatus,
		Title:   "Status: " + strings.ToUpper(string(overall)),
		Message: strings.Join(lines, "\n"),
	}
	for _, res := range notify.Dispatch(ctx, c.senders, p) {
		if res.Success {
			c.slog.Info("notification sent", "provider", res.Provider)
		} else {
			c.slog.Error("notification failed", "provider", res.Provider, "error", res.Err)
		}
	}
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package status probes HTTP endpoints and aggregates the results into an
// overall health state with rolling uptime history.
package status

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/community-pulse/pulse/internal/config"
	"github.com/community-pulse/pulse/internal/request"
	"github.com/community-pulse/pulse/internal/util/syncx"
	"github.com/community-pulse/pulse/internal/version"
)

// State is the health state of a service or the whole system.
type State string

// Health states, from best to worst. A timeout maps to degraded rather
// than outage: an unresponsive-but-live endpoint is weaker evidence of
// failure than an error response.
const (
	Operational State = "operational"
	Degraded    State = "degraded"
	Outage      State = "outage"
	Unknown     State = "unknown"
)

// defaultTimeout bounds a single probe when the endpoint doesn't set one.
const defaultTimeout = 10 * time.Second

// maxChecks bounds per-endpoint history. At a five minute check interval
// this holds roughly 30 days.
const maxChecks = 8640

// EndpointRef identifies the probed endpoint inside persisted results.
type EndpointRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CheckResult is the outcome of probing one endpoint once.
type CheckResult struct {
	Endpoint     EndpointRef `json:"endpoint"`
	Status       State       `json:"status"`
	ResponseTime int64       `json:"responseTime"` // milliseconds
	StatusCode   int         `json:"statusCode,omitempty"`
	Error        string      `json:"error,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Check probes a single endpoint. It never returns an error: failures are
// encoded in the result's status.
func Check(ctx context.Context, client *http.Client, ep *config.Endpoint) CheckResult {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := CheckResult{
		Endpoint:  EndpointRef{ID: ep.ID, Name: ep.Name},
		Timestamp: time.Now(),
	}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		res.Status = Outage
		res.Error = err.Error()
		return res
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	if client == nil {
		client = request.DefaultClient
	}
	resp, err := client.Do(req)
	res.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			res.Status = Degraded
			res.Error = "Timeout"
		} else {
			res.Status = Outage
			res.Error = err.Error()
		}
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	expect := ep.ExpectStatus
	if expect == 0 {
		expect = http.StatusOK
	}
	if resp.StatusCode == expect {
		res.Status = Operational
	} else {
		res.Status = Degraded
	}
	return res
}

// CheckAll probes all endpoints concurrently and returns results in
// endpoint order.
func CheckAll(ctx context.Context, client *http.Client, endpoints []*config.Endpoint) []CheckResult {
	results := make([]CheckResult, len(endpoints))
	wg := syncx.NewLimitedWaitGroup(8)
	for i, ep := range endpoints {
		wg.Go(func() {
			results[i] = Check(ctx, client, ep)
		})
	}
	wg.Wait()
	return results
}

// Overall reduces per-endpoint results to a single state: worst result
// wins, no averaging.
func Overall(results []CheckResult) State {
	overall := Operational
	for _, r := range results {
		switch r.Status {
		case Outage:
			return Outage
		case Degraded:
			overall = Degraded
		}
	}
	return overall
}

// Entry is one retained history entry.
type Entry struct {
	Status       State     `json:"status"`
	ResponseTime int64     `json:"responseTime"`
	Timestamp    time.Time `json:"timestamp"`
}

// Uptime holds rolling-window uptime percentages, recomputed from retained
// history on every update.
type Uptime struct {
	Last24h int `json:"last24h"`
	Last7d  int `json:"last7d"`
	Last30d int `json:"last30d"`
}

// History is the bounded per-endpoint record of past checks.
type History struct {
	Endpoint string  `json:"endpoint"`
	Checks   []Entry `json:"checks"`
	Uptime   Uptime  `json:"uptime"`
}

// Append adds a check to the history, evicts entries beyond the retention
// cap oldest-first, and recomputes all uptime windows relative to now.
func (h *History) Append(c Entry, now time.Time) {
	h.Checks = append(h.Checks, c)
	if len(h.Checks) > maxChecks {
		h.Checks = h.Checks[len(h.Checks)-maxChecks:]
	}
	h.Uptime = Uptime{
		Last24h: h.uptime(now, 24*time.Hour),
		Last7d:  h.uptime(now, 7*24*time.Hour),
		Last30d: h.uptime(now, 30*24*time.Hour),
	}
}

// uptime returns the percentage of operational checks within the window,
// rounded to the nearest integer. An empty window is vacuously healthy.
func (h *History) uptime(now time.Time, window time.Duration) int {
	since := now.Add(-window)
	var total, operational int
	for _, c := range h.Checks {
		if c.Timestamp.Before(since) {
			continue
		}
		total++
		if c.Status == Operational {
			operational++
		}
	}
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(operational) / float64(total) * 100))
}

// Incident is a recorded outage period. Incidents are curated by hand; the
// checker only carries them through.
type Incident struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Snapshot is the durable record of the status checker.
type Snapshot struct {
	LastUpdated time.Time              `json:"lastUpdated"`
	Overall     State                  `json:"overall"`
	Services    map[string]CheckResult `json:"services"`
	History     map[string]*History    `json:"history"`
	Incidents   []Incident             `json:"incidents"`
}

// Update folds new check results into the snapshot: latest result per
// service, overall state, and per-endpoint history.
func (s *Snapshot) Update(results []CheckResult, now time.Time) {
	if s.Services == nil {
		s.Services = make(map[string]CheckResult)
	}
	if s.History == nil {
		s.History = make(map[string]*History)
	}
	if s.Incidents == nil {
		s.Incidents = []Incident{}
	}

	s.Overall = Overall(results)
	for _, r := range results {
		id := r.Endpoint.ID
		s.Services[id] = r
		h := s.History[id]
		if h == nil {
			h = &History{Endpoint: id}
			s.History[id] = h
		}
		h.Append(Entry{
			Status:       r.Status,
			ResponseTime: r.ResponseTime,
			Timestamp:    r.Timestamp,
		}, now)
	}
	s.LastUpdated = now
}

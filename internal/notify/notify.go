// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package notify fans a notification out to configured channels.
//
// Delivery is at-least-once and fire-and-forget: every sender runs in
// parallel, a failed channel doesn't affect the others, and nothing is
// retried within a run. Unconfigured channels simply aren't constructed.
package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/community-pulse/pulse/internal/api/matrix"
)

// Type tells a channel how to present the notification.
type Type string

// Notification types.
const (
	TypeRelease Type = "release"
	TypeDigest  Type = "digest"
	TypeStatus  Type = "status"
	TypeAlert   Type = "alert"
)

// Payload is one notification, uniform across channels.
type Payload struct {
	Type    Type
	Title   string
	Message string
	URL     string
}

// Result is the delivery outcome for one channel.
type Result struct {
	Provider string
	Success  bool
	Err      error
}

// Sender delivers a payload to one channel.
type Sender interface {
	// Name identifies the channel in results and logs.
	Name() string
	// Send delivers the payload.
	Send(ctx context.Context, p Payload) error
}

// Dispatch sends the payload to every sender in parallel and returns one
// result per sender, in sender order.
func Dispatch(ctx context.Context, senders []Sender, p Payload) []Result {
	results := make([]Result, len(senders))
	var wg sync.WaitGroup
	for i, s := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Send(ctx, p)
			results[i] = Result{Provider: s.Name(), Success: err == nil, Err: err}
		}()
	}
	wg.Wait()
	return results
}

// FromEnv constructs the senders whose configuration is present in the
// environment. mc may be nil when no Matrix credentials are configured.
func FromEnv(getenv func(string) string, mc *matrix.Client) []Sender {
	var senders []Sender
	if mc != nil {
		senders = append(senders, &Matrix{Client: mc})
	}
	if url := getenv("DISCORD_WEBHOOK_URL"); url != "" {
		senders = append(senders, &Discord{WebhookURL: url, Username: getenv("DISCORD_USERNAME")})
	}
	if url := getenv("SLACK_WEBHOOK_URL"); url != "" {
		senders = append(senders, &Slack{WebhookURL: url, Channel: getenv("SLACK_CHANNEL")})
	}
	if url := getenv("NOTIFY_WEBHOOK_URL"); url != "" {
		senders = append(senders, &Webhook{URL: url})
	}
	if key := getenv("RESEND_API_KEY"); key != "" {
		from, to := getenv("EMAIL_FROM"), getenv("EMAIL_TO")
		if from != "" && to != "" {
			senders = append(senders, &Email{
				APIKey: key,
				From:   from,
				To:     strings.Split(to, ","),
			})
		}
	}
	return senders
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/community-pulse/pulse/internal/api/matrix"
	"github.com/community-pulse/pulse/internal/request"
	"github.com/community-pulse/pulse/internal/version"
)

// Discord delivers notifications to a Discord webhook as a single embed.
type Discord struct {
	WebhookURL string
	Username   string
	HTTPClient *http.Client
}

var discordColors = map[Type]int{
	TypeRelease: 0x5865f2, // blurple
	TypeDigest:  0x57f287, // green
	TypeStatus:  0xfee75c, // yellow
	TypeAlert:   0xed4245, // red
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, p Payload) error {
	embed := map[string]any{
		"title":       p.Title,
		"description": p.Message,
		"color":       discordColors[p.Type],
		"timestamp":   time.Now().Format(time.RFC3339),
		"footer":      map[string]string{"text": version.CmdName()},
	}
	if p.URL != "" {
		embed["url"] = p.URL
	}
	username := d.Username
	if username == "" {
		username = "Pulse"
	}
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    d.WebhookURL,
		Body: map[string]any{
			"username": username,
			"embeds":   []any{embed},
		},
		HTTPClient: d.HTTPClient,
		Scrubber:   strings.NewReplacer(d.WebhookURL, "[webhook]"),
	})
	return err
}

// Slack delivers notifications to a Slack incoming webhook using blocks.
type Slack struct {
	WebhookURL string
	Channel    string
	HTTPClient *http.Client
}

var slackEmojis = map[Type]string{
	TypeRelease: ":rocket:",
	TypeDigest:  ":newspaper:",
	TypeStatus:  ":warning:",
	TypeAlert:   ":rotating_light:",
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, p Payload) error {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type":  "plain_text",
				"text":  slackEmojis[p.Type] + " " + p.Title,
				"emoji": true,
			},
		},
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": p.Message},
		},
	}
	if p.URL != "" {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": " "},
			"accessory": map[string]any{
				"type": "button",
				"text": map[string]any{"type": "plain_text", "text": "View Details", "emoji": true},
				"url":  p.URL,
			},
		})
	}
	body := map[string]any{"blocks": blocks}
	if s.Channel != "" {
		body["channel"] = s.Channel
	}
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        s.WebhookURL,
		Body:       body,
		HTTPClient: s.HTTPClient,
		Scrubber:   strings.NewReplacer(s.WebhookURL, "[webhook]"),
	})
	return err
}

// Matrix delivers notifications as notices to the configured room.
type Matrix struct {
	Client *matrix.Client
}

func (m *Matrix) Name() string { return "matrix" }

func (m *Matrix) Send(ctx context.Context, p Payload) error {
	plain := p.Title + "\n\n" + p.Message
	formatted := fmt.Sprintf("<b>%s</b><br><br>%s", html.EscapeString(p.Title), html.EscapeString(p.Message))
	if p.URL != "" {
		plain += "\n\n" + p.URL
		formatted += fmt.Sprintf(`<br><br><a href="%s">View Details</a>`, p.URL)
	}
	return m.Client.Send(ctx, plain, formatted)
}

// Webhook delivers notifications as JSON to an arbitrary URL.
type Webhook struct {
	URL        string
	Headers    map[string]string
	HTTPClient *http.Client
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, p Payload) error {
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    w.URL,
		Body: map[string]any{
			"event":     "pulse:" + string(p.Type),
			"type":      p.Type,
			"title":     p.Title,
			"message":   p.Message,
			"url":       p.URL,
			"timestamp": time.Now().Format(time.RFC3339),
		},
		Headers:    w.Headers,
		HTTPClient: w.HTTPClient,
		Scrubber:   strings.NewReplacer(w.URL, "[webhook]"),
	})
	return err
}

// Email delivers notifications via the Resend API.
type Email struct {
	APIKey     string
	From       string
	To         []string
	BaseURL    string // overrides the Resend API URL in tests
	HTTPClient *http.Client
}

var emailSubjects = map[Type]string{
	TypeRelease: "New Release",
	TypeDigest:  "Weekly Community Digest",
	TypeStatus:  "Status Update",
	TypeAlert:   "Alert",
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, p Payload) error {
	api := e.BaseURL
	if api == "" {
		api = "https://api.resend.com"
	}
	text := p.Title + "\n\n" + p.Message
	if p.URL != "" {
		text += "\n\n" + p.URL
	}
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    api + "/emails",
		Body: map[string]any{
			"from":    e.From,
			"to":      e.To,
			"subject": emailSubjects[p.Type] + ": " + p.Title,
			"html":    emailHTML(p),
			"text":    text,
		},
		Headers:    map[string]string{"Authorization": "Bearer " + e.APIKey},
		HTTPClient: e.HTTPClient,
		Scrubber:   strings.NewReplacer(e.APIKey, "[key]"),
	})
	return err
}

func emailHTML(p Payload) string {
	var sb strings.Builder
	sb.WriteString(`<div style="max-width:600px;margin:0 auto;font-family:sans-serif">`)
	fmt.Fprintf(&sb, "<h1>%s</h1>", html.EscapeString(p.Title))
	fmt.Fprintf(&sb, "<p>%s</p>", strings.ReplaceAll(html.EscapeString(p.Message), "\n", "<br>"))
	if p.URL != "" {
		fmt.Fprintf(&sb, `<p><a href="%s">View Details</a></p>`, p.URL)
	}
	sb.WriteString("</div>")
	return sb.String()
}

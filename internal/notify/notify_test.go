// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/community-pulse/pulse/internal/api/matrix"
	"github.com/community-pulse/pulse/internal/testutil"
)

type fakeSender struct {
	name string
	err  error
	sent []Payload
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(_ context.Context, p Payload) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

func TestDispatchFailuresAreIndependent(t *testing.T) {
	t.Parallel()

	broken := &fakeSender{name: "broken", err: errors.New("channel down")}
	working := &fakeSender{name: "working"}
	also := &fakeSender{name: "also-working"}

	p := Payload{Type: TypeRelease, Title: "New Release", Message: "v1.0.0 is out"}
	results := Dispatch(context.Background(), []Sender{broken, working, also}, p)

	testutil.AssertEqual(t, len(results), 3)
	testutil.AssertEqual(t, results[0].Provider, "broken")
	testutil.AssertEqual(t, results[0].Success, false)
	testutil.AssertEqual(t, results[1].Success, true)
	testutil.AssertEqual(t, results[2].Success, true)

	// The broken channel did not block delivery to the others.
	testutil.AssertEqual(t, len(working.sent), 1)
	testutil.AssertEqual(t, len(also.sent), 1)
}

func TestDispatchNoSenders(t *testing.T) {
	t.Parallel()

	results := Dispatch(context.Background(), nil, Payload{Type: TypeAlert, Title: "t"})
	testutil.AssertEqual(t, len(results), 0)
}

func TestDiscordSend(t *testing.T) {
	t.Parallel()

	var got struct {
		Username string `json:"username"`
		Embeds   []struct {
			Title string `json:"title"`
			Color int    `json:"color"`
			URL   string `json:"url"`
		} `json:"embeds"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	d := &Discord{WebhookURL: ts.URL}
	err := d.Send(context.Background(), Payload{
		Type:  TypeRelease,
		Title: "New Release: bridge-manager",
		URL:   "https://example.com/release",
	})
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, got.Username, "Pulse")
	testutil.AssertEqual(t, len(got.Embeds), 1)
	testutil.AssertEqual(t, got.Embeds[0].Title, "New Release: bridge-manager")
	testutil.AssertEqual(t, got.Embeds[0].Color, discordColors[TypeRelease])
	testutil.AssertEqual(t, got.Embeds[0].URL, "https://example.com/release")
}

func TestSlackSend(t *testing.T) {
	t.Parallel()

	var got struct {
		Blocks []struct {
			Type string `json:"type"`
		} `json:"blocks"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
	}))
	defer ts.Close()

	s := &Slack{WebhookURL: ts.URL}
	err := s.Send(context.Background(), Payload{
		Type:    TypeStatus,
		Title:   "Status: DEGRADED",
		Message: "api is slow",
		URL:     "https://status.example.com",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Header, message section and the URL button section.
	testutil.AssertEqual(t, len(got.Blocks), 3)
	testutil.AssertEqual(t, got.Blocks[0].Type, "header")
}

func TestMatrixSend(t *testing.T) {
	t.Parallel()

	var got struct {
		MsgType       string `json:"msgtype"`
		Body          string `json:"body"`
		Format        string `json:"format"`
		FormattedBody string `json:"formatted_body"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]string{"event_id": "$1"})
	}))
	defer ts.Close()

	m := &Matrix{Client: &matrix.Client{
		HomeserverURL: ts.URL,
		AccessToken:   "token",
		RoomID:        "!room:example.org",
	}}
	err := m.Send(context.Background(), Payload{
		Type:    TypeRelease,
		Title:   "New Release",
		Message: "v1.0.0",
	})
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, got.MsgType, "m.notice")
	testutil.AssertStringContains(t, got.Body, "New Release")
	testutil.AssertEqual(t, got.Format, "org.matrix.custom.html")
	testutil.AssertStringContains(t, got.FormattedBody, "<b>New Release</b>")
}

func TestWebhookSend(t *testing.T) {
	t.Parallel()

	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Header.Get("X-Custom"), "yes")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
	}))
	defer ts.Close()

	wh := &Webhook{URL: ts.URL, Headers: map[string]string{"X-Custom": "yes"}}
	err := wh.Send(context.Background(), Payload{Type: TypeAlert, Title: "Alert", Message: "outage"})
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, got["event"], "pulse:alert")
	testutil.AssertEqual(t, got["title"], "Alert")
}

func TestEmailSend(t *testing.T) {
	t.Parallel()

	var got struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Header.Get("Authorization"), "Bearer key")
		testutil.AssertEqual(t, r.URL.Path, "/emails")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
	}))
	defer ts.Close()

	e := &Email{
		APIKey:  "key",
		From:    "pulse@example.com",
		To:      []string{"subscriber@example.com"},
		BaseURL: ts.URL,
	}
	err := e.Send(context.Background(), Payload{Type: TypeDigest, Title: "Digest", Message: "this week"})
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, got.From, "pulse@example.com")
	testutil.AssertEqual(t, got.To, []string{"subscriber@example.com"})
	testutil.AssertEqual(t, got.Subject, "Weekly Community Digest: Digest")
	testutil.AssertStringContains(t, got.HTML, "<h1>Digest</h1>")
}

func TestFromEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"DISCORD_WEBHOOK_URL": "https://discord.example.com/webhook",
		"RESEND_API_KEY":      "key",
		"EMAIL_FROM":          "pulse@example.com",
		"EMAIL_TO":            "a@example.com,b@example.com",
	}
	senders := FromEnv(func(k string) string { return env[k] }, nil)

	var names []string
	for _, s := range senders {
		names = append(names, s.Name())
	}
	testutil.AssertEqual(t, names, []string{"discord", "email"})

	email := senders[1].(*Email)
	testutil.AssertEqual(t, email.To, []string{"a@example.com", "b@example.com"})
}

func TestFromEnvNothingConfigured(t *testing.T) {
	t.Parallel()

	senders := FromEnv(func(string) string { return "" }, nil)
	testutil.AssertEqual(t, len(senders), 0)
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package matrix provides a client for reading and sending messages in a
// single Matrix room.
package matrix

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/community-pulse/pulse/internal/request"
)

// Client represents a Matrix client scoped to one room.
type Client struct {
	// HomeserverURL is the base URL of the homeserver, without a trailing
	// slash.
	HomeserverURL string
	// AccessToken authenticates all requests.
	AccessToken string
	// RoomID is the room to read from and send to.
	RoomID string
	// HTTPClient is an optional custom HTTP client object to use for requests.
	// If not provided, request.DefaultClient will be used.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.AccessToken}
}

func (c *Client) roomURL(parts ...string) string {
	return c.HomeserverURL + "/_matrix/client/v3/rooms/" + url.PathEscape(c.RoomID) + "/" + strings.Join(parts, "/")
}

// Message is a plain text message event.
type Message struct {
	EventID   string
	Sender    string
	Timestamp time.Time
	Body      string
	RoomID    string
}

type messagesResponse struct {
	Chunk []struct {
		EventID        string `json:"event_id"`
		Sender         string `json:"sender"`
		OriginServerTS int64  `json:"origin_server_ts"`
		Type           string `json:"type"`
		Content        struct {
			MsgType string `json:"msgtype"`
			Body    string `json:"body"`
		} `json:"content"`
	} `json:"chunk"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Messages returns up to limit text messages sent to the room after since,
// in chronological order. The room history is paginated backwards by token,
// not by timestamp, so events are fetched newest-first and filtered
// client-side.
func (c *Client) Messages(ctx context.Context, since time.Time, limit int) ([]Message, error) {
	resp, err := request.Make[messagesResponse](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        c.roomURL("messages") + "?dir=b&limit=" + strconv.Itoa(limit),
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return nil, err
	}

	var messages []Message
	for _, ev := range resp.Chunk {
		if ev.Type != "m.room.message" || ev.Content.MsgType != "m.text" {
			continue
		}
		ts := time.UnixMilli(ev.OriginServerTS)
		if !ts.After(since) {
			continue
		}
		messages = append(messages, Message{
			EventID:   ev.EventID,
			Sender:    ev.Sender,
			Timestamp: ts,
			Body:      ev.Content.Body,
			RoomID:    c.RoomID,
		})
	}

	// The chunk is newest-first; callers want chronological order.
	slices.Reverse(messages)
	return messages, nil
}

// Send sends a notice to the room. html may be empty for plain text only.
func (c *Client) Send(ctx context.Context, plain, html string) error {
	content := map[string]string{
		"msgtype": "m.notice",
		"body":    plain,
	}
	if html != "" {
		content["format"] = "org.matrix.custom.html"
		content["formatted_body"] = html
	}
	txnID := strconv.FormatInt(time.Now().UnixNano(), 10)
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPut,
		URL:        c.roomURL("send", "m.room.message", txnID),
		Body:       content,
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	return err
}

// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package gemini provides a very minimal client for interacting with Gemini
// API.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/community-pulse/pulse/internal/request"
)

const apiURL = "https://generativelanguage.googleapis.com/v1beta"

// Client holds configuration for interacting with the Gemini API.
type Client struct {
	// APIKey is the API key used for authentication.
	APIKey string
	// Model is the model name, for example "gemini-1.5-flash".
	Model string
	// BaseURL overrides the API URL. Used in tests.
	BaseURL string
	// HTTPClient is an optional HTTP client to use for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
}

func (c *Client) api() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return apiURL
}

// Part is a part of a content block.
type Part struct {
	Text string `json:"text"`
}

// Content is a unit of conversation content.
type Content struct {
	Parts []Part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content Content `json:"content"`
	} `json:"candidates"`
}

var errNoCandidates = errors.New("gemini: no candidates in response")

// GenerateText asks the model to respond to prompt and returns the text of
// the first candidate.
func (c *Client) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	body := map[string]any{
		"contents": []Content{{Parts: []Part{{Text: prompt}}, Role: "user"}},
	}
	if system != "" {
		body["systemInstruction"] = Content{Parts: []Part{{Text: system}}}
	}

	resp, err := request.Make[generateContentResponse](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        c.api() + "/models/" + c.Model + ":generateContent",
		Body:       body,
		Headers:    map[string]string{"x-goog-api-key": c.APIKey},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errNoCandidates
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

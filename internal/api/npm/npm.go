// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package npm provides a client for the npm registry.
package npm

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/community-pulse/pulse/internal/request"
)

const defaultRegistry = "https://registry.npmjs.org"

// Client represents an npm registry client. The zero value talks to the
// public registry.
type Client struct {
	// BaseURL overrides the registry URL. Used in tests.
	BaseURL string
	// HTTPClient is an optional custom HTTP client object to use for requests.
	// If not provided, request.DefaultClient will be used.
	HTTPClient *http.Client
}

func (c *Client) registry() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultRegistry
}

// Version is a published version of a package.
type Version struct {
	Version     string    `json:"version"`
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
}

type packument struct {
	Name     string               `json:"name"`
	Time     map[string]time.Time `json:"time"`
	Versions map[string]struct {
		Version     string `json:"version"`
		Description string `json:"description"`
	} `json:"versions"`
}

// Versions returns up to limit most recently published versions of pkg,
// newest first. The registry's "created" and "modified" pseudo-entries are
// excluded.
func (c *Client) Versions(ctx context.Context, pkg string, limit int) ([]Version, error) {
	doc, err := request.Make[packument](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        c.registry() + "/" + url.PathEscape(pkg),
		HTTPClient: c.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	var versions []Version
	for ver, date := range doc.Time {
		if ver == "created" || ver == "modified" {
			continue
		}
		v := Version{Version: ver, Date: date}
		if meta, ok := doc.Versions[ver]; ok {
			v.Description = meta.Description
		}
		versions = append(versions, v)
	}

	slices.SortFunc(versions, func(a, b Version) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(b.Version, a.Version)
	})
	if len(versions) > limit {
		versions = versions[:limit]
	}
	return versions, nil
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package github provides a minimal client for the parts of the GitHub API
// the pulse pipelines need: listing releases and discussions, and creating
// issues, branches, file commits and pull requests.
package github

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/community-pulse/pulse/internal/request"
)

const defaultAPI = "https://api.github.com"

// Client represents a GitHub API client.
type Client struct {
	// Token is the GitHub access token used for authentication. May be empty
	// for read-only access to public data.
	Token string
	// BaseURL overrides the GitHub API URL. Used in tests.
	BaseURL string
	// HTTPClient is an optional custom HTTP client object to use for requests.
	// If not provided, request.DefaultClient will be used.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
}

func (c *Client) api() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultAPI
}

func (c *Client) headers() map[string]string {
	h := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if c.Token != "" {
		h["Authorization"] = "Bearer " + c.Token
	}
	return h
}

// Release is a published release of a repository, as returned by the
// releases API. The releases API returns releases newest-first; everything
// downstream depends on that ordering.
type Release struct {
	ID          int64     `json:"id"`
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
	Prerelease  bool      `json:"prerelease"`
	Draft       bool      `json:"draft"`
}

// ListReleases returns up to limit most recent releases of owner/repo,
// newest first.
func (c *Client) ListReleases(ctx context.Context, owner, repo string, limit int) ([]Release, error) {
	return request.Make[[]Release](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        c.api() + "/repos/" + owner + "/" + repo + "/releases?per_page=" + strconv.Itoa(limit),
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
}

// Discussion is a GitHub discussion with its engagement counts.
type Discussion struct {
	ID        string
	Number    int
	Title     string
	Body      string
	URL       string
	CreatedAt time.Time
	Author    string
	Comments  int
	Reactions int
	Category  string
}

const discussionsQuery = `
query($owner: String!, $repo: String!, $limit: Int!) {
  repository(owner: $owner, name: $repo) {
    discussions(first: $limit, orderBy: {field: CREATED_AT, direction: DESC}) {
      nodes {
        id
        number
        title
        body
        url
        createdAt
        author { login }
        comments { totalCount }
        reactions { totalCount }
        category { name }
      }
    }
  }
}`

type discussionNode struct {
	ID        string    `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	Author    struct {
		Login string `json:"login"`
	} `json:"author"`
	Comments struct {
		TotalCount int `json:"totalCount"`
	} `json:"comments"`
	Reactions struct {
		TotalCount int `json:"totalCount"`
	} `json:"reactions"`
	Category struct {
		Name string `json:"name"`
	} `json:"category"`
}

type discussionsResponse struct {
	Data struct {
		Repository struct {
			Discussions struct {
				Nodes []discussionNode `json:"nodes"`
			} `json:"discussions"`
		} `json:"repository"`
	} `json:"data"`
}

// ListDiscussions returns discussions of owner/repo created at or after
// since, newest first. Discussions are only available over GraphQL.
func (c *Client) ListDiscussions(ctx context.Context, owner, repo string, since time.Time, limit int) ([]Discussion, error) {
	resp, err := request.Make[discussionsResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    c.api() + "/graphql",
		Body: map[string]any{
			"query": discussionsQuery,
			"variables": map[string]any{
				"owner": owner,
				"repo":  repo,
				"limit": limit,
			},
		},
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return nil, err
	}

	var discussions []Discussion
	for _, n := range resp.Data.Repository.Discussions.Nodes {
		if n.CreatedAt.Before(since) {
			continue
		}
		discussions = append(discussions, Discussion{
			ID:        n.ID,
			Number:    n.Number,
			Title:     n.Title,
			Body:      n.Body,
			URL:       n.URL,
			CreatedAt: n.CreatedAt,
			Author:    n.Author.Login,
			Comments:  n.Comments.TotalCount,
			Reactions: n.Reactions.TotalCount,
			Category:  n.Category.Name,
		})
	}
	return discussions, nil
}

// Issue is a created issue.
type Issue struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// CreateIssue opens an issue on owner/repo.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (*Issue, error) {
	return request.Make[*Issue](ctx, request.Params{
		Method: http.MethodPost,
		URL:    c.api() + "/repos/" + owner + "/" + repo + "/issues",
		Body: map[string]any{
			"title":  title,
			"body":   body,
			"labels": labels,
		},
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
}

// DefaultBranch returns the default branch name of owner/repo.
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	resp, err := request.Make[struct {
		DefaultBranch string `json:"default_branch"`
	}](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        c.api() + "/repos/" + owner + "/" + repo,
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return "", err
	}
	return resp.DefaultBranch, nil
}

// BranchSHA returns the commit SHA the given branch points at.
func (c *Client) BranchSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	resp, err := request.Make[struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        c.api() + "/repos/" + owner + "/" + repo + "/git/refs/heads/" + branch,
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return "", err
	}
	return resp.Object.SHA, nil
}

// CreateBranch creates a new branch pointing at sha.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    c.api() + "/repos/" + owner + "/" + repo + "/git/refs",
		Body: map[string]string{
			"ref": "refs/heads/" + branch,
			"sha": sha,
		},
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	return err
}

// FileSHA returns the blob SHA of path on ref, or an empty string if the
// file does not exist there.
func (c *Client) FileSHA(ctx context.Context, owner, repo, path, ref string) (string, error) {
	resp, err := request.Make[struct {
		SHA string `json:"sha"`
	}](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        c.api() + "/repos/" + owner + "/" + repo + "/contents/" + path + "?ref=" + url.QueryEscape(ref),
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return resp.SHA, nil
}

// PutFile creates or updates a file on branch with the given commit message.
// Pass the current blob SHA when updating an existing file.
func (c *Client) PutFile(ctx context.Context, owner, repo, path, branch, message string, content []byte, sha string) error {
	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  branch,
	}
	if sha != "" {
		body["sha"] = sha
	}
	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPut,
		URL:        c.api() + "/repos/" + owner + "/" + repo + "/contents/" + path,
		Body:       body,
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	return err
}

// PullRequest is a created pull request.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// CreatePull opens a pull request merging head into base.
func (c *Client) CreatePull(ctx context.Context, owner, repo, title, body, head, base string) (*PullRequest, error) {
	return request.Make[*PullRequest](ctx, request.Params{
		Method: http.MethodPost,
		URL:    c.api() + "/repos/" + owner + "/" + repo + "/pulls",
		Body: map[string]string{
			"title": title,
			"body":  body,
			"head":  head,
			"base":  base,
		},
		Headers:    c.headers(),
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
}

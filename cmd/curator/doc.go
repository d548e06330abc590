// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Curator watches a Matrix community room for interesting links, tips and
workarounds, collects them as structured finds and publishes the pending
ones to a GitHub repository.

# Usage

	$ curator [flags...] <command>

The commands are:

  - fetch: fetch new messages from the community room and record the
    interesting ones as pending finds.
  - process: show pending finds and their categories.
  - publish [issues|pr]: create GitHub issues (one per find) or a single
    pull request (default) with all pending finds.
  - run: full pipeline, fetch followed by publish in pr mode.
  - stats: show curator statistics.

State is kept in two files under the data directory: curator-state.json
(the processing cursor) and community-finds.json (the collected finds).

# Environment Variables

The curator program uses the following environment variables:

  - MATRIX_HOMESERVER_URL: Matrix homeserver URL.
  - MATRIX_ACCESS_TOKEN: bot access token.
  - MATRIX_ROOM_ID: community room ID.
  - GITHUB_TOKEN: GitHub token for creating issues and pull requests.
  - CURATOR_GITHUB_OWNER: target repository owner (default
    beeper-community).
  - CURATOR_GITHUB_REPO: target repository name (default awesome-beeper).
*/
package main

import (
	_ "embed"

	"github.com/community-pulse/pulse/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }

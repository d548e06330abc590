// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Updates polls tracked GitHub releases and npm packages, diffs them against
the last observed state, regenerates the release feeds, patches changelog
files and notifies configured channels about anything new.

# Usage

	$ updates [flags...]

Feeds are regenerated on every run from the full fetched collections, even
when nothing is new. Changelogs and notifications are delta-driven.

# Environment Variables

The updates program uses the following environment variables:

  - GITHUB_TOKEN: GitHub token, optional for public repositories but
    recommended to avoid rate limits.
  - CONFIG_FILE: path to the Starlark config listing tracked repositories
    and npm packages. An embedded default is used when unset.
  - DISCORD_WEBHOOK_URL, SLACK_WEBHOOK_URL, NOTIFY_WEBHOOK_URL: optional
    notification channels.
  - RESEND_API_KEY, EMAIL_FROM, EMAIL_TO: optional email notifications.
  - MATRIX_HOMESERVER_URL, MATRIX_ACCESS_TOKEN, MATRIX_ROOM_ID: optional
    Matrix notifications.
*/
package main

import (
	_ "embed"

	"github.com/community-pulse/pulse/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Statuscheck probes the configured HTTP endpoints, derives an overall
service status and updates the persisted status snapshot with rolling
uptime history.

# Usage

	$ statuscheck [flags...]

Endpoints come from the endpoint() entries of the Starlark config. A
timed out probe counts as degraded, a failed one as an outage, and an
unexpected status code as degraded. The overall status is the worst
individual one.

# Environment Variables

The statuscheck program uses the following environment variables:

  - CONFIG_FILE: path to the Starlark config listing probed endpoints.
    An embedded default is used when unset.
  - DISCORD_WEBHOOK_URL, SLACK_WEBHOOK_URL, NOTIFY_WEBHOOK_URL: optional
    notification channels used with the -notify flag.
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

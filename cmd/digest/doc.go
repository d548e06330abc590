// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Digest renders a weekly Markdown digest of the notable GitHub discussions
in the community repository.

# Usage

	$ digest [flags...]

Discussions from the past week qualify when they gathered at least two
reactions or two comments, sorted by total engagement. The digest is
printed to standard output; with -issue it is filed as a GitHub issue
labeled needs-curation instead.

When GEMINI_API_KEY is set, a model-written summary paragraph is added to
the top of the digest.

# Environment Variables

The digest program uses the following environment variables:

  - GITHUB_TOKEN: GitHub token, required to query the discussions GraphQL
    API.
  - GEMINI_API_KEY: optional Gemini API key enabling the summary section.
  - GEMINI_MODEL: Gemini model to use (default gemini-1.5-flash).
*/
package main

import (
	_ "embed"

	"github.com/community-pulse/pulse/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }

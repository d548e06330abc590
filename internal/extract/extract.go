// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package extract classifies chat messages into community finds.
//
// The classifier is deliberately low-tech: ordered tables of literal
// keywords and domain substrings, matched case-insensitively. No scoring,
// no weighting. A message qualifies as soon as any single rule fires.
package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/community-pulse/pulse/internal/api/matrix"
	"github.com/community-pulse/pulse/internal/finds"
)

var urlRegexp = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")

var tipKeywords = []string{
	"tip:",
	"protip:",
	"pro tip:",
	"hint:",
	"fyi:",
	"btw,",
	"you can",
	"did you know",
	"i found that",
	"trick:",
	"useful:",
	"helpful:",
	"try this",
	"here's how",
}

var workaroundKeywords = []string{
	"workaround:",
	"workaround for",
	"fix for",
	"fixed by",
	"solution:",
	"solved by",
	"to fix",
	"the fix is",
	"temporary fix",
	"quick fix",
}

var questionKeywords = []string{
	"how do i",
	"how can i",
	"anyone know",
	"does anyone",
	"is there a way",
	"can someone",
	"help with",
	"?",
}

var interestingDomains = []string{
	"github.com",
	"gitlab.com",
	"gist.github.com",
	"reddit.com/r/beeper",
	"docs.google.com",
	"notion.so",
	"medium.com",
	"dev.to",
	"hackernews",
	"youtube.com",
	"youtu.be",
}

// Links that show up constantly but carry no curatable content, like emoji
// and media CDNs.
var ignoredDomains = []string{
	"matrix.to",
	"beeper.com/download",
	"tenor.com",
	"giphy.com",
	"imgur.com/a/",
}

// platformKeywords maps body substrings to tags.
var platformKeywords = []struct {
	substr string
	tag    string
}{
	{"android", "android"},
	{"ios", "ios"},
	{"iphone", "ios"},
	{"desktop", "desktop"},
	{"linux", "linux"},
	{"mac", "macos"},
	{"windows", "windows"},
	{"bridge", "bridge"},
	{"imessage", "imessage"},
	{"whatsapp", "whatsapp"},
	{"telegram", "telegram"},
	{"signal", "signal"},
	{"discord", "discord"},
	{"slack", "slack"},
}

// Sentiment of a message, derived from keyword matches.
const (
	SentimentNeutral  = "neutral"
	SentimentQuestion = "question"
	SentimentPositive = "positive"
)

// Result is what the classifier extracted from one message body.
type Result struct {
	URLs         []string
	IsTip        bool
	IsWorkaround bool
	Keywords     []string
	Sentiment    string
}

func containsAny(body string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(body, kw) {
			return true
		}
	}
	return false
}

// Extract classifies a message body. It is a pure function: the same body
// always produces the same result.
func Extract(body string) Result {
	lower := strings.ToLower(body)

	var urls []string
	for _, url := range urlRegexp.FindAllString(body, -1) {
		if containsAny(strings.ToLower(url), ignoredDomains) {
			continue
		}
		urls = append(urls, url)
	}

	res := Result{
		URLs:         urls,
		IsTip:        containsAny(lower, tipKeywords),
		IsWorkaround: containsAny(lower, workaroundKeywords),
		Sentiment:    SentimentNeutral,
	}
	if containsAny(lower, questionKeywords) {
		res.Sentiment = SentimentQuestion
	} else if res.IsTip || res.IsWorkaround {
		res.Sentiment = SentimentPositive
	}

	seen := make(map[string]bool)
	for _, pk := range platformKeywords {
		if strings.Contains(lower, pk.substr) && !seen[pk.tag] {
			seen[pk.tag] = true
			res.Keywords = append(res.Keywords, pk.tag)
		}
	}

	return res
}

// IsInteresting reports whether a message is worth curating. Any single
// trigger qualifies: an allow-listed domain, tip or workaround language, a
// code-hosting link, or a substantial message carrying at least one URL.
func IsInteresting(body string, res Result) bool {
	for _, url := range res.URLs {
		if containsAny(strings.ToLower(url), interestingDomains) {
			return true
		}
	}
	if res.IsTip || res.IsWorkaround {
		return true
	}
	for _, url := range res.URLs {
		if strings.Contains(url, "github.com") || strings.Contains(url, "gitlab.com") {
			return true
		}
	}
	if len(res.URLs) > 0 && len(body) > 100 {
		return true
	}
	return false
}

// Categorize assigns an awesome-list category to a URL.
func Categorize(url string) string {
	lower := strings.ToLower(url)

	if strings.Contains(lower, "github.com") || strings.Contains(lower, "gitlab.com") {
		if strings.Contains(lower, "/issues/") || strings.Contains(lower, "/pull/") {
			return "discussions"
		}
		return "tools"
	}
	if strings.Contains(lower, "reddit.com") {
		return "community"
	}
	if strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be") {
		return "media"
	}
	if strings.Contains(lower, "docs.") || strings.Contains(lower, "/docs/") {
		return "documentation"
	}
	if strings.Contains(lower, "blog") || strings.Contains(lower, "medium.com") || strings.Contains(lower, "dev.to") {
		return "articles"
	}
	return "resources"
}

var (
	tipTitleRegexp        = regexp.MustCompile(`(?i)(?:tip|protip|hint|fyi)[:\s]+(.{10,60})`)
	workaroundTitleRegexp = regexp.MustCompile(`(?i)(?:workaround|fix|solution)[:\s]+(.{10,60})`)
)

// Title derives a human-readable title from a message body, trying in order:
// the text after a tip or workaround marker, the text preceding the first
// URL if it has a plausible length, and finally a truncated body.
func Title(body string, res Result) string {
	if res.IsTip {
		if m := tipTitleRegexp.FindStringSubmatch(body); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	if res.IsWorkaround {
		if m := workaroundTitleRegexp.FindStringSubmatch(body); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	if len(res.URLs) > 0 {
		before, _, _ := strings.Cut(body, res.URLs[0])
		before = strings.TrimSpace(before)
		if len(before) > 10 && len(before) < 80 {
			return before
		}
	}
	if len(body) > 60 {
		return truncate(body, 60) + "..."
	}
	return body
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ToFind converts a classified message into a pending find. Every message
// yields exactly one find.
func ToFind(msg matrix.Message, res Result) finds.Find {
	typ := finds.TypeResource
	switch {
	case res.IsTip:
		typ = finds.TypeTip
	case res.IsWorkaround:
		typ = finds.TypeWorkaround
	case len(res.URLs) > 0:
		typ = finds.TypeLink
	}

	f := finds.Find{
		ID:          uuid.NewString(),
		Type:        typ,
		Title:       Title(msg.Body, res),
		Description: msg.Body,
		Source: finds.Source{
			MessageID: msg.EventID,
			Author:    msg.Sender,
			Timestamp: msg.Timestamp,
			RoomID:    msg.RoomID,
		},
		Tags:         res.Keywords,
		Status:       finds.StatusPending,
		DiscoveredAt: time.Now(),
	}
	if len(res.URLs) > 0 {
		f.URL = res.URLs[0]
		f.Category = Categorize(res.URLs[0])
	}
	return f
}

// ProcessMessages classifies a batch of messages and returns the
// interesting ones as finds, preserving input order. No deduplication
// against previously seen finds happens here.
func ProcessMessages(messages []matrix.Message) []finds.Find {
	var out []finds.Find
	for _, msg := range messages {
		res := Extract(msg.Body)
		if IsInteresting(msg.Body, res) {
			out = append(out, ToFind(msg, res))
		}
	}
	return out
}

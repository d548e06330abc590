// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config defines the tracked sources of the pulse pipelines.
//
// Sources are declared in a Starlark file, conventionally config.star, using
// the repo and endpoint builtins:
//
//	repos = [
//	    repo(owner = "beeper", name = "bridge-manager"),
//	]
//	packages = ["@beeper/desktop-api"]
//	endpoints = [
//	    endpoint(id = "website", name = "Website", url = "https://beeper.com"),
//	]
//
// Credentials and webhook URLs never appear here; they come from environment
// variables read by each command.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

//go:embed default.star
var defaultConfig string

// Repo identifies a GitHub repository whose releases are tracked.
type Repo struct {
	Owner string
	Name  string
}

// Key returns the "owner/name" form used as the snapshot key.
func (r *Repo) Key() string { return r.Owner + "/" + r.Name }

func (r *Repo) String() string        { return fmt.Sprintf("<repo %s>", r.Key()) }
func (r *Repo) Type() string          { return "repo" }
func (r *Repo) Freeze()               {} // immutable
func (r *Repo) Truth() starlark.Bool  { return starlark.Bool(r.Owner != "" && r.Name != "") }
func (r *Repo) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", r.Type()) }

// Endpoint is an HTTP endpoint probed by the status checker.
type Endpoint struct {
	ID           string
	Name         string
	URL          string
	ExpectStatus int
	Timeout      time.Duration
}

func (e *Endpoint) String() string        { return fmt.Sprintf("<endpoint %s>", e.ID) }
func (e *Endpoint) Type() string          { return "endpoint" }
func (e *Endpoint) Freeze()               {} // immutable
func (e *Endpoint) Truth() starlark.Bool  { return starlark.Bool(e.ID != "") }
func (e *Endpoint) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", e.Type()) }

// Config holds all tracked sources.
type Config struct {
	Repos     []*Repo
	Packages  []string
	Endpoints []*Endpoint
}

func repoBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, errors.New("unexpected positional arguments")
	}
	r := new(Repo)
	if err := starlark.UnpackArgs("repo", args, kwargs,
		"owner", &r.Owner,
		"name", &r.Name,
	); err != nil {
		return nil, err
	}
	return r, nil
}

func endpointBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, errors.New("unexpected positional arguments")
	}
	e := &Endpoint{ExpectStatus: 200}
	var timeoutSec int
	if err := starlark.UnpackArgs("endpoint", args, kwargs,
		"id", &e.ID,
		"name", &e.Name,
		"url", &e.URL,
		"expect_status?", &e.ExpectStatus,
		"timeout?", &timeoutSec,
	); err != nil {
		return nil, err
	}
	if timeoutSec > 0 {
		e.Timeout = time.Duration(timeoutSec) * time.Second
	}
	return e, nil
}

// Parse evaluates the Starlark source src and extracts the tracked sources
// from the repos, packages and endpoints globals. All three are optional;
// absent globals produce empty lists.
func Parse(filename, src string, print func(string)) (*Config, error) {
	if print == nil {
		print = func(string) {}
	}
	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{
			TopLevelControl: true,
		},
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { print(msg) },
		},
		filename,
		src,
		starlark.StringDict{
			"repo":     starlark.NewBuiltin("repo", repoBuiltin),
			"endpoint": starlark.NewBuiltin("endpoint", endpointBuiltin),
		},
	)
	if err != nil {
		return nil, err
	}

	cfg := new(Config)

	if v, ok := globals["repos"]; ok {
		list, ok := v.(*starlark.List)
		if !ok {
			return nil, errors.New("repos must be a list")
		}
		for elem := range list.Elements() {
			r, ok := elem.(*Repo)
			if !ok {
				return nil, fmt.Errorf("repos may only contain repo values, got %s", elem.Type())
			}
			cfg.Repos = append(cfg.Repos, r)
		}
	}

	if v, ok := globals["packages"]; ok {
		list, ok := v.(*starlark.List)
		if !ok {
			return nil, errors.New("packages must be a list")
		}
		for elem := range list.Elements() {
			s, ok := starlark.AsString(elem)
			if !ok {
				return nil, fmt.Errorf("packages may only contain strings, got %s", elem.Type())
			}
			cfg.Packages = append(cfg.Packages, s)
		}
	}

	if v, ok := globals["endpoints"]; ok {
		list, ok := v.(*starlark.List)
		if !ok {
			return nil, errors.New("endpoints must be a list")
		}
		for elem := range list.Elements() {
			e, ok := elem.(*Endpoint)
			if !ok {
				return nil, fmt.Errorf("endpoints may only contain endpoint values, got %s", elem.Type())
			}
			if _, err := url.Parse(e.URL); err != nil {
				return nil, fmt.Errorf("invalid URL %q of endpoint %q", e.URL, e.ID)
			}
			cfg.Endpoints = append(cfg.Endpoints, e)
		}
	}

	return cfg, nil
}

// Load reads and parses the config file at path. An empty path loads the
// embedded default config.
func Load(path string, print func(string)) (*Config, error) {
	if path == "" {
		return Parse("default.star", defaultConfig, print)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, string(b), print)
}

// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package state persists durable point-in-time records as JSON files.
//
// Each record is a single typed value stored in its own file and rewritten
// in full on every save. A missing file yields a fresh zero record; an
// existing file that cannot be parsed is an error, because silently starting
// over would discard legitimate history.
//
// There is no locking: a record has a single writer per run, and overlapping
// runs are the scheduler's responsibility to prevent.
package state

import (
	"errors"
	"fmt"
	"io/fs"

	"crawshaw.dev/jsonfile"
)

// File is a typed durable record backed by a JSON file.
type File[T any] struct {
	path string
	f    *jsonfile.JSONFile[T]
}

// Open opens the record stored at path, creating a fresh zero record if the
// file does not exist.
func Open[T any](path string) (*File[T], error) {
	f, err := jsonfile.Load[T](path)
	if errors.Is(err, fs.ErrNotExist) {
		f, err = jsonfile.New[T](path)
	}
	if err != nil {
		return nil, fmt.Errorf("state: open %q: %w", path, err)
	}
	return &File[T]{path: path, f: f}, nil
}

// Path returns the file path backing this record.
func (f *File[T]) Path() string { return f.path }

// Read calls fn with the current record for reading. The record must not be
// retained or modified past fn's return.
func (f *File[T]) Read(fn func(*T)) { f.f.Read(fn) }

// Write calls fn with the record for modification and, if fn returns nil,
// atomically rewrites the whole file. If fn returns an error, the record and
// the file are left unchanged.
func (f *File[T]) Write(fn func(*T) error) error { return f.f.Write(fn) }

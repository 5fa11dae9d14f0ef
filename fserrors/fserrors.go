// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fserrors collects the sentinel errors shared by every layer of
// the storage core (buffer cache, inode layer, directory layer, and the
// path resolver). None of these carry payloads; callers distinguish error
// kinds with ==, the same way the rest of this lineage treats bazilfuse's
// Errno constants.
package fserrors

import "errors"

var (
	// ErrInvalidPath covers an empty path, a component longer than NameMax,
	// or a root reference in a context that forbids one.
	ErrInvalidPath = errors.New("diskfs: invalid path")

	// ErrNotFound means an intermediate or terminal path component did not
	// resolve to an existing directory entry.
	ErrNotFound = errors.New("diskfs: not found")

	// ErrAlreadyExists means a creation's terminal component already names
	// an existing directory entry.
	ErrAlreadyExists = errors.New("diskfs: already exists")

	// ErrNotEmpty means a directory removal target still has user entries.
	ErrNotEmpty = errors.New("diskfs: directory not empty")

	// ErrNoSpace means the free-map allocator failed mid-creation or
	// mid-extension. Sectors it already handed out before the failure
	// are not reclaimed.
	ErrNoSpace = errors.New("diskfs: no space on device")

	// ErrIO covers device read/write failure or an out-of-range sector id.
	ErrIO = errors.New("diskfs: device I/O failure")

	// ErrOutOfMemory signals a transient allocation failure, e.g. a bounce
	// buffer. Go's allocator doesn't fail the way a fixed-heap kernel's
	// does, but callers that hit an out-of-range/negative size return
	// this rather than letting the runtime panic.
	ErrOutOfMemory = errors.New("diskfs: out of memory")

	// ErrRemoved means inode.Open was called on a sector whose inode is
	// marked removed; this prevents resurrecting a deleted inode.
	ErrRemoved = errors.New("diskfs: inode removed")

	// ErrFileTooBig means an operation would grow a file past
	// inode.MaxFileSize.
	ErrFileTooBig = errors.New("diskfs: file exceeds maximum size")
)

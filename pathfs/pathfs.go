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

// Package pathfs resolves slash-separated paths into directory/file
// sectors. It knows nothing of inode contents beyond what the
// directory package exposes.
package pathfs

import (
	"github.com/jacobsa/diskfs/blockdev"
	"github.com/jacobsa/diskfs/directory"
	"github.com/jacobsa/diskfs/fserrors"
	"github.com/jacobsa/diskfs/inode"
)

// GetNextPart copies the next path component of path (starting at src)
// into part: it skips any number of leading slashes, then copies bytes
// up to (but not including) the next slash or the end of the string.
//
// It returns (consumed, ok, true) on a normal component, advancing src by
// consumed bytes; (_, false, true) when there is no next component (path
// exhausted); and (_, _, false) when the component is longer than
// directory.NameMax bytes, which the caller should treat as an invalid
// path.
func GetNextPart(part *[directory.NameMax + 1]byte, path string, src int) (consumed int, ok bool, fits bool) {
	for src < len(path) && path[src] == '/' {
		src++
	}
	if src >= len(path) {
		return src, false, true
	}

	n := 0
	for src < len(path) && path[src] != '/' {
		if n < directory.NameMax {
			part[n] = path[src]
			n++
		} else {
			return src, true, false
		}
		src++
	}
	part[n] = 0
	return src, true, true
}

// Resolver walks paths against the inode/directory layers, given a root
// directory sector and a process's current-working-directory sector
// (process/fd tables themselves are out of scope; callers supply cwd
// explicitly).
type Resolver struct {
	layer *inode.Layer
	root  blockdev.SectorID
}

func NewResolver(layer *inode.Layer, root blockdev.SectorID) *Resolver {
	return &Resolver{layer: layer, root: root}
}

// startSector picks the root or cwd sector to begin walking from,
// depending on whether path is absolute.
func (r *Resolver) startSector(path string, cwd blockdev.SectorID) blockdev.SectorID {
	if len(path) > 0 && path[0] == '/' {
		return r.root
	}
	if cwd == 0 {
		return r.root
	}
	return cwd
}

// Walk resolves path (absolute, or relative to cwd) to the sector of its
// final component and the sector of the directory that (would) contain
// it, along with the final component's name. If the final component does
// not exist, sector is 0 and err is nil -- callers that need the parent
// directory to create something under it check this case explicitly.
func (r *Resolver) Walk(path string, cwd blockdev.SectorID) (dirSector, sector blockdev.SectorID, name string, err error) {
	if path == "" {
		// The empty path fails unconditionally; it is not the same thing
		// as bare "/", which some operations accept as the start
		// directory itself.
		return 0, 0, "", fserrors.ErrInvalidPath
	}

	cur := r.startSector(path, cwd)

	var part [directory.NameMax + 1]byte
	src := 0
	haveName := false

	for {
		consumed, ok, fits := GetNextPart(&part, path, src)
		if !fits {
			return 0, 0, "", fserrors.ErrInvalidPath
		}
		if !ok {
			break
		}
		src = consumed

		if haveName {
			// The previous component must be an existing directory to
			// descend further into it.
			next, lookErr := r.lookupIn(cur, name)
			if lookErr != nil {
				return 0, 0, "", lookErr
			}
			cur = next
		}

		name = string(part[:])
		if i := indexZero(part[:]); i >= 0 {
			name = string(part[:i])
		}
		haveName = true
	}

	if !haveName {
		// Bare "/": refers to the start directory itself.
		return cur, cur, "", nil
	}

	sector, lookErr := r.lookupIn(cur, name)
	if lookErr == fserrors.ErrNotFound {
		return cur, 0, name, nil
	}
	if lookErr != nil {
		return 0, 0, "", lookErr
	}
	return cur, sector, name, nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

func (r *Resolver) lookupIn(dirSector blockdev.SectorID, name string) (blockdev.SectorID, error) {
	in, err := r.layer.Open(dirSector)
	if err != nil {
		return 0, err
	}
	defer r.layer.Close(in)

	if !in.IsDir() {
		return 0, fserrors.ErrInvalidPath
	}

	d := directory.Open(r.layer, in)
	return d.Lookup(name)
}

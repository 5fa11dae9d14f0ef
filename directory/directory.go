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

// Package directory implements directories as a flat sequence of
// fixed-size entries stored in an ordinary inode's data.
package directory

import (
	"bytes"
	"encoding/binary"

	"github.com/jacobsa/diskfs/blockdev"
	"github.com/jacobsa/diskfs/fserrors"
	"github.com/jacobsa/diskfs/inode"
)

// NameMax is the maximum length, in bytes, of one path component.
const NameMax = inode.NameMax

// entrySize is the on-disk size of one directory entry: a fixed NameMax+1
// byte name field, a 4-byte sector id, and a 1-byte in-use flag.
const entrySize = (NameMax + 1) + 4 + 1

type rawEntry struct {
	name   [NameMax + 1]byte
	sector blockdev.SectorID
	inUse  bool
}

func (e *rawEntry) marshal() []byte {
	buf := make([]byte, entrySize)
	copy(buf[:NameMax+1], e.name[:])
	binary.LittleEndian.PutUint32(buf[NameMax+1:], uint32(e.sector))
	if e.inUse {
		buf[NameMax+1+4] = 1
	}
	return buf
}

func unmarshalEntry(buf []byte) rawEntry {
	var e rawEntry
	copy(e.name[:], buf[:NameMax+1])
	e.sector = blockdev.SectorID(binary.LittleEndian.Uint32(buf[NameMax+1:]))
	e.inUse = buf[NameMax+1+4] != 0
	return e
}

func (e *rawEntry) nameString() string {
	n := bytes.IndexByte(e.name[:], 0)
	if n < 0 {
		n = len(e.name)
	}
	return string(e.name[:n])
}

// Dir is a directory: an inode whose data is a sequence of rawEntry
// records. Every mutating method takes the inode's own dirLock for the
// duration of the scan-then-mutate.
type Dir struct {
	layer *inode.Layer
	in    *inode.Inode
}

// Create initializes a brand-new, empty directory inode at sector, whose
// parent is parentSector (used for the implicit ".." entry).
func Create(layer *inode.Layer, sector, parentSector blockdev.SectorID) error {
	if err := layer.Create(sector, 0, true); err != nil {
		return err
	}

	in, err := layer.Open(sector)
	if err != nil {
		return err
	}
	defer layer.Close(in)

	d := &Dir{layer: layer, in: in}
	if err := d.addLocked(".", sector); err != nil {
		return err
	}
	return d.addLocked("..", parentSector)
}

// Open wraps an already-open directory inode.
func Open(layer *inode.Layer, in *inode.Inode) *Dir {
	return &Dir{layer: layer, in: in}
}

func (d *Dir) Inode() *inode.Inode { return d.in }

// forEach invokes visit for every in-use entry, stopping early if visit
// returns false. It does not take any lock itself; callers that mutate
// must hold in.dirLock (via LockDir/UnlockDir) around the whole
// scan-then-mutate sequence.
func (d *Dir) forEach(visit func(off uint32, e rawEntry) bool) error {
	length, err := d.layer.Length(d.in)
	if err != nil {
		return err
	}

	buf := make([]byte, entrySize)
	for off := uint32(0); off+entrySize <= length; off += entrySize {
		n, err := d.layer.ReadAt(d.in, buf, off)
		if err != nil {
			return err
		}
		if n < entrySize {
			break
		}
		e := unmarshalEntry(buf)
		if e.inUse && !visit(off, e) {
			return nil
		}
	}
	return nil
}

// Lookup returns the sector of the entry named name, or
// fserrors.ErrNotFound.
func (d *Dir) Lookup(name string) (blockdev.SectorID, error) {
	d.in.LockDir()
	defer d.in.UnlockDir()
	return d.lookupLocked(name)
}

func (d *Dir) lookupLocked(name string) (blockdev.SectorID, error) {
	var found blockdev.SectorID
	var ok bool
	err := d.forEach(func(_ uint32, e rawEntry) bool {
		if e.nameString() == name {
			found, ok = e.sector, true
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fserrors.ErrNotFound
	}
	return found, nil
}

// Add inserts a new entry named name pointing at sector, reusing a
// vacated slot if one exists, else appending.
func (d *Dir) Add(name string, sector blockdev.SectorID) error {
	d.in.LockDir()
	defer d.in.UnlockDir()
	return d.addLocked(name, sector)
}

func (d *Dir) addLocked(name string, sector blockdev.SectorID) error {
	if len(name) > NameMax {
		return fserrors.ErrInvalidPath
	}
	if _, err := d.lookupLocked(name); err == nil {
		return fserrors.ErrAlreadyExists
	} else if err != fserrors.ErrNotFound {
		return err
	}

	var reuseOff uint32
	reuseFound := false
	length, err := d.layer.Length(d.in)
	if err != nil {
		return err
	}

	buf := make([]byte, entrySize)
	for off := uint32(0); off+entrySize <= length; off += entrySize {
		n, err := d.layer.ReadAt(d.in, buf, off)
		if err != nil {
			return err
		}
		if n < entrySize {
			break
		}
		if !unmarshalEntry(buf).inUse {
			reuseOff, reuseFound = off, true
			break
		}
	}

	e := rawEntry{sector: sector, inUse: true}
	copy(e.name[:], name)

	target := length
	if reuseFound {
		target = reuseOff
	}
	_, err = d.layer.WriteAt(d.in, e.marshal(), target)
	return err
}

// Remove deletes the entry named name by marking its slot unused.
func (d *Dir) Remove(name string) error {
	d.in.LockDir()
	defer d.in.UnlockDir()

	var off uint32
	found := false
	err := d.forEach(func(entryOff uint32, e rawEntry) bool {
		if e.nameString() == name {
			off, found = entryOff, true
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if !found {
		return fserrors.ErrNotFound
	}

	var dead rawEntry
	_, err = d.layer.WriteAt(d.in, dead.marshal(), off)
	return err
}

// IsEmpty reports whether d has no entries besides "." and "..".
func (d *Dir) IsEmpty() (bool, error) {
	d.in.LockDir()
	defer d.in.UnlockDir()

	empty := true
	err := d.forEach(func(_ uint32, e rawEntry) bool {
		n := e.nameString()
		if n != "." && n != ".." {
			empty = false
			return false
		}
		return true
	})
	return empty, err
}

// List returns the names of every in-use entry except "." and "..".
func (d *Dir) List() ([]string, error) {
	d.in.LockDir()
	defer d.in.UnlockDir()

	var names []string
	err := d.forEach(func(_ uint32, e rawEntry) bool {
		n := e.nameString()
		if n != "." && n != ".." {
			names = append(names, n)
		}
		return true
	})
	return names, err
}

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

package inode

import (
	"fmt"
	"sync"

	"github.com/jacobsa/syncutil"

	"github.com/jacobsa/diskfs/blockdev"
	"github.com/jacobsa/diskfs/buffercache"
	"github.com/jacobsa/diskfs/fserrors"
)

// Allocator is the sector allocator this package needs: one sector at a
// time, which is all the block map ever asks for.
// Declared here (rather than imported from a concrete allocator package)
// so that the concrete allocator can itself be built on top of Layer
// without an import cycle: the free map persists itself through an
// inode built on this same Layer.
type Allocator interface {
	Allocate(n int) (blockdev.SectorID, bool)
	Release(sector blockdev.SectorID, n int)
}

// Inode is the in-memory, reference-counted handle for one on-disk inode.
type Inode struct {
	sector blockdev.SectorID
	isDir  bool

	// mu guards openCount, denyWriteCount and removed.
	mu           syncutil.InvariantMutex
	openCount    uint32
	denyWriteCnt uint32
	removed      bool

	// sizeLock serializes length-growing writes. Taken only by a WriteAt
	// call that must extend the file.
	sizeLock sync.Mutex

	// dirLock serializes directory-entry mutation for directory inodes;
	// the directory package locks/unlocks it via LockDir/UnlockDir so
	// that inode need not import directory.
	dirLock sync.Mutex
}

func newInode(sector blockdev.SectorID, isDir bool) *Inode {
	in := &Inode{sector: sector, isDir: isDir, openCount: 1}
	in.mu = syncutil.NewInvariantMutex(in.checkInvariants)
	return in
}

// LOCKS_REQUIRED(in.mu)
func (in *Inode) checkInvariants() {
	// denyWriteCnt is unsigned, so an AllowWrite underflow shows up here
	// as a huge value too.
	if in.denyWriteCnt > in.openCount {
		panic(fmt.Sprintf(
			"inode %d: denyWriteCnt %d > openCount %d",
			in.sector, in.denyWriteCnt, in.openCount))
	}
}

func (in *Inode) Sector() blockdev.SectorID { return in.sector }
func (in *Inode) IsDir() bool               { return in.isDir }

// LockDir and UnlockDir serialize directory-entry mutation within a
// single directory inode. The directory package is the only caller.
func (in *Inode) LockDir()   { in.dirLock.Lock() }
func (in *Inode) UnlockDir() { in.dirLock.Unlock() }

// Layer is the inode layer: the open-inode table plus the block-map
// logic in blockmap.go.
type Layer struct {
	cache *buffercache.Cache
	alloc Allocator

	// tableMu is the outermost lock in the global ordering, always
	// acquired before any individual inode's mu.
	tableMu syncutil.InvariantMutex
	table   map[blockdev.SectorID]*Inode // GUARDED_BY(tableMu)
}

// NewLayer constructs an inode layer over cache, allocating new sectors
// via alloc. alloc is supplied as an interface so the free-map allocator
// can in turn be built on this same Layer. alloc may be nil if the
// caller will supply it later via SetAllocator, which is the case while
// the allocator is still loading its own backing store through this
// Layer.
func NewLayer(cache *buffercache.Cache, alloc Allocator) *Layer {
	l := &Layer{
		cache: cache,
		alloc: alloc,
		table: make(map[blockdev.SectorID]*Inode),
	}
	l.tableMu = syncutil.NewInvariantMutex(func() {})
	return l
}

// SetAllocator binds (or rebinds) the allocator used by Create/extend.
// Allocate-driven paths (Create, WriteAt growth) need it, and so does the
// last Close of a removed inode, which releases its sectors through it;
// Open, ReadAt, a non-growing WriteAt and any other Close never touch it.
func (l *Layer) SetAllocator(alloc Allocator) {
	l.alloc = alloc
}

func (l *Layer) readDisk(sector blockdev.SectorID) (*Disk, error) {
	var buf [sectorSize]byte
	if err := l.cache.Read(sector, &buf); err != nil {
		return nil, err
	}
	return UnmarshalDisk(&buf)
}

func (l *Layer) writeDisk(sector blockdev.SectorID, disk *Disk) error {
	return l.cache.Write(sector, disk.MarshalSector())
}

// Create initializes a fresh inode at sector with the given length,
// allocating and zero-filling its data blocks. sector must already be
// reserved via the allocator.
func (l *Layer) Create(sector blockdev.SectorID, length uint32, isDir bool) error {
	disk := &Disk{Magic: Magic, IsDir: isDir}
	if err := l.extend(disk, length, 0); err != nil {
		return err
	}
	disk.Length = length
	return l.writeDisk(sector, disk)
}

// Open returns the in-memory handle for sector, creating a table entry
// and reading the on-disk inode on first open, or incrementing the
// existing entry's reference count.
func (l *Layer) Open(sector blockdev.SectorID) (*Inode, error) {
	l.tableMu.Lock()
	defer l.tableMu.Unlock()

	if existing, ok := l.table[sector]; ok {
		existing.mu.Lock()
		if existing.removed {
			existing.mu.Unlock()
			return nil, fserrors.ErrRemoved
		}
		existing.openCount++
		existing.mu.Unlock()
		return existing, nil
	}

	disk, err := l.readDisk(sector)
	if err != nil {
		return nil, err
	}

	in := newInode(sector, disk.IsDir)
	l.table[sector] = in
	return in, nil
}

// Close drops one reference to in, tearing down its on-disk blocks if
// this was the last open handle and the inode had been removed.
func (l *Layer) Close(in *Inode) error {
	l.tableMu.Lock()
	in.mu.Lock()
	in.openCount--
	last := in.openCount == 0
	removed := in.removed
	if last {
		delete(l.table, in.sector)
	}
	in.mu.Unlock()
	l.tableMu.Unlock()

	if !last || !removed {
		return nil
	}

	disk, err := l.readDisk(in.sector)
	if err != nil {
		return err
	}
	if err := l.release(disk); err != nil {
		return err
	}
	l.alloc.Release(in.sector, 1)
	return nil
}

// Remove marks in for deletion once its last handle closes; it never
// touches disk itself.
func (l *Layer) Remove(in *Inode) {
	in.mu.Lock()
	in.removed = true
	in.mu.Unlock()
}

func (in *Inode) removedLocked() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.removed
}

// Removed reports whether in has been marked for deletion.
func (in *Inode) Removed() bool { return in.removedLocked() }

// DenyWrite and AllowWrite implement the classic "deny write on the
// currently-running executable" counter.
func (l *Layer) DenyWrite(in *Inode) {
	in.mu.Lock()
	in.denyWriteCnt++
	in.mu.Unlock()
}

func (l *Layer) AllowWrite(in *Inode) {
	in.mu.Lock()
	in.denyWriteCnt--
	in.mu.Unlock()
}

// Length returns the inode's current length in bytes.
func (l *Layer) Length(in *Inode) (uint32, error) {
	disk, err := l.readDisk(in.sector)
	if err != nil {
		return 0, err
	}
	return disk.Length, nil
}

// ReadAt reads into buf starting at offset, returning the number of
// bytes actually read (0 at or past EOF, never an error for reading past
// EOF).
func (l *Layer) ReadAt(in *Inode, buf []byte, offset uint32) (int, error) {
	disk, err := l.readDisk(in.sector)
	if err != nil {
		return 0, err
	}
	if offset >= disk.Length {
		return 0, nil
	}

	remaining := int(disk.Length - offset)
	if remaining > len(buf) {
		remaining = len(buf)
	}

	var bounce [sectorSize]byte
	done := 0
	for done < remaining {
		pos := offset + uint32(done)
		sectorOff := pos % sectorSize
		chunk := sectorSize - sectorOff
		if left := remaining - done; chunk > uint32(left) {
			chunk = uint32(left)
		}

		sector, err := l.sectorAt(disk, pos)
		if err != nil {
			return done, err
		}
		if err := l.cache.Read(sector, &bounce); err != nil {
			return done, err
		}
		copy(buf[done:done+int(chunk)], bounce[sectorOff:sectorOff+chunk])
		done += int(chunk)
	}

	return done, nil
}

// WriteAt writes buf starting at offset, transparently extending the
// file (zero-filling any gap) if offset+len(buf) exceeds the current
// length. Writes are ignored (returning 0, nil) while a deny-write count
// is outstanding. The growth path re-reads the full on-disk inode after
// acquiring sizeLock, not just its length, since the direct/indirect
// block pointers themselves may have changed underneath a stale copy.
func (l *Layer) WriteAt(in *Inode, buf []byte, offset uint32) (int, error) {
	in.mu.Lock()
	denied := in.denyWriteCnt > 0
	in.mu.Unlock()
	if denied {
		return 0, nil
	}

	size := uint32(len(buf))
	disk, err := l.readDisk(in.sector)
	if err != nil {
		return 0, err
	}
	length := disk.Length
	oldLength := length

	holdingSizeLock := false
	if uint64(offset)+uint64(size) > uint64(length) {
		in.sizeLock.Lock()

		fresh, err := l.readDisk(in.sector)
		if err != nil {
			in.sizeLock.Unlock()
			return 0, err
		}
		disk = fresh
		length = disk.Length
		oldLength = length

		if uint64(offset)+uint64(size) <= uint64(length) {
			in.sizeLock.Unlock()
		} else {
			// Checked in uint64 before narrowing: offset+size can wrap
			// uint32 for hostile offsets.
			end := uint64(offset) + uint64(size)
			if end > uint64(MaxFileSize) {
				in.sizeLock.Unlock()
				return 0, fserrors.ErrFileTooBig
			}
			newLength := uint32(end)
			if err := l.extend(disk, newLength, length); err != nil {
				in.sizeLock.Unlock()
				return 0, err
			}
			length = newLength
			holdingSizeLock = true
		}
	}

	written, writeErr := l.writePayload(disk, buf, offset, length)

	disk.Length = length
	if oldLength < length {
		if err := l.writeDisk(in.sector, disk); err != nil && writeErr == nil {
			writeErr = err
		}
	}

	if holdingSizeLock {
		in.sizeLock.Unlock()
	}

	return written, writeErr
}

// writePayload copies buf into the sectors disk maps starting at offset,
// assuming [offset, offset+len(buf)) already lies within [0, length).
func (l *Layer) writePayload(disk *Disk, buf []byte, offset, length uint32) (int, error) {
	var bounce [sectorSize]byte
	done := 0
	for done < len(buf) {
		pos := offset + uint32(done)
		sectorOff := pos % sectorSize
		chunk := sectorSize - sectorOff
		if left := len(buf) - done; chunk > uint32(left) {
			chunk = uint32(left)
		}

		sector, err := l.sectorAt(disk, pos)
		if err != nil {
			return done, err
		}

		if chunk == sectorSize {
			var full [sectorSize]byte
			copy(full[:], buf[done:done+int(chunk)])
			if err := l.cache.Write(sector, &full); err != nil {
				return done, err
			}
		} else {
			if err := l.cache.Read(sector, &bounce); err != nil {
				return done, err
			}
			copy(bounce[sectorOff:sectorOff+chunk], buf[done:done+int(chunk)])
			if err := l.cache.Write(sector, &bounce); err != nil {
				return done, err
			}
		}

		done += int(chunk)
	}

	return done, nil
}

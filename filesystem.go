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

package diskfs

import (
	"context"
	"flag"
	"log"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/timeutil"

	"github.com/jacobsa/diskfs/allocator"
	"github.com/jacobsa/diskfs/blockdev"
	"github.com/jacobsa/diskfs/buffercache"
	"github.com/jacobsa/diskfs/directory"
	"github.com/jacobsa/diskfs/fserrors"
	"github.com/jacobsa/diskfs/inode"
	"github.com/jacobsa/diskfs/pathfs"
)

var fMaxCacheEntries = flag.Int(
	"diskfs.max_cache_entries",
	buffercache.MaxEntries,
	"Bound on the number of sectors resident in the buffer cache.")

// RootDir is the sector of the root directory, usable as the cwd
// argument to every FileSystem method by a caller with no other
// directory open; process/fd tables are out of scope here, so callers
// track their own cwd sector.
const RootDir = inode.RootDirSector

// FileSystem is the top-level facade wiring the buffer cache, inode
// layer, free-space allocator, directory tree and path resolver together
// into the create/mkdir/open/open-dir/remove operations.
type FileSystem struct {
	dev     blockdev.BlockDevice
	cache   *buffercache.Cache
	inodes  *inode.Layer
	free    *allocator.FreeMap
	resolve *pathfs.Resolver
	logger  *log.Logger
}

// New opens (or, if format is true, initializes from scratch) a file
// system over dev. clock is threaded through to the buffer cache's
// dependency-injected time source (github.com/jacobsa/timeutil), the way
// samples/memfs seeds its inode clock, even though nothing in this
// module's fixed on-disk inode layout stores a timestamp: it exists
// purely so tests can supply a fake clock.
func New(dev blockdev.BlockDevice, clock timeutil.Clock, format bool) (*FileSystem, error) {
	cache := buffercache.New(dev, *fMaxCacheEntries, clock)
	layer := inode.NewLayer(cache, nil)

	var free *allocator.FreeMap
	if format {
		free = allocator.Format(dev.SectorCount())
		layer.SetAllocator(free)

		if err := directory.Create(layer, inode.RootDirSector, inode.RootDirSector); err != nil {
			return nil, err
		}
		if err := free.Persist(layer); err != nil {
			return nil, err
		}
	} else {
		loaded, err := allocator.Load(layer, dev.SectorCount())
		if err != nil {
			return nil, err
		}
		free = loaded
		layer.SetAllocator(free)
	}

	return &FileSystem{
		dev:     dev,
		cache:   cache,
		inodes:  layer,
		free:    free,
		resolve: pathfs.NewResolver(layer, inode.RootDirSector),
		logger:  getLogger(),
	}, nil
}

// Done flushes the free map and every dirty cache entry back to dev, and
// fsyncs it if it supports that. Call this (or at least BufferClear)
// before dropping the last reference to a FileSystem meant to persist.
func (fs *FileSystem) Done() error {
	if err := fs.free.Persist(fs.inodes); err != nil {
		return err
	}
	if err := fs.cache.FlushAll(); err != nil {
		return err
	}
	if s, ok := fs.dev.(interface{ Fdatasync() error }); ok {
		return s.Fdatasync()
	}
	return nil
}

// BufferClear flushes and evicts every cache entry without touching the
// free map, for tests that want to force a subsequent read to hit dev.
func (fs *FileSystem) BufferClear() error {
	return fs.cache.FlushAll()
}

// Reads and Writes report the cumulative number of sector-level device
// reads and writes, for write-amplification and cold/warm-cache tests.
// Each is backed by its own device counter; neither ever aliases the
// other.
func (fs *FileSystem) Reads() uint64  { return fs.dev.Reads() }
func (fs *FileSystem) Writes() uint64 { return fs.dev.Writes() }

func traced(ctx context.Context, name string) (context.Context, reqtrace.ReportFunc) {
	return reqtrace.StartSpan(ctx, name)
}

// debugLog writes one line to the -diskfs.debug logger, a no-op unless
// that flag is set, matching debug.go's getLogger/gEnableDebug gating.
func (fs *FileSystem) debugLog(op, path string) {
	if fs.logger == nil {
		return
	}
	fs.logger.Printf("%s %q", op, path)
}

// Create creates a new, empty regular file named by path (resolved
// against cwd for relative paths) with the given initial length.
// Partial failure midway through (inode created but not yet linked
// into its parent directory, say) is not rolled back; the leaked
// sectors are a known, documented limitation.
func (fs *FileSystem) Create(ctx context.Context, path string, cwd blockdev.SectorID, initialSize uint32) (err error) {
	_, report := traced(ctx, "diskfs.Create")
	defer func() { report(err) }()
	fs.debugLog("Create", path)

	dirSector, sector, name, err := fs.resolve.Walk(path, cwd)
	if err != nil {
		return err
	}
	if name == "" {
		return fserrors.ErrInvalidPath
	}
	if sector != 0 {
		return fserrors.ErrAlreadyExists
	}

	newSector, ok := fs.free.Allocate(1)
	if !ok {
		return fserrors.ErrNoSpace
	}
	if err := fs.inodes.Create(newSector, initialSize, false); err != nil {
		fs.free.Release(newSector, 1)
		return err
	}

	parent, err := fs.inodes.Open(dirSector)
	if err != nil {
		return err
	}
	defer fs.inodes.Close(parent)

	d := directory.Open(fs.inodes, parent)
	return d.Add(name, newSector)
}

// Mkdir creates a new, empty subdirectory named by path.
func (fs *FileSystem) Mkdir(ctx context.Context, path string, cwd blockdev.SectorID) (err error) {
	_, report := traced(ctx, "diskfs.Mkdir")
	defer func() { report(err) }()
	fs.debugLog("Mkdir", path)

	dirSector, sector, name, err := fs.resolve.Walk(path, cwd)
	if err != nil {
		return err
	}
	if name == "" {
		return fserrors.ErrInvalidPath
	}
	if sector != 0 {
		return fserrors.ErrAlreadyExists
	}

	newSector, ok := fs.free.Allocate(1)
	if !ok {
		return fserrors.ErrNoSpace
	}
	if err := directory.Create(fs.inodes, newSector, dirSector); err != nil {
		fs.free.Release(newSector, 1)
		return err
	}

	parent, err := fs.inodes.Open(dirSector)
	if err != nil {
		return err
	}
	defer fs.inodes.Close(parent)

	d := directory.Open(fs.inodes, parent)
	return d.Add(name, newSector)
}

// Open opens the regular file named by path, returning a handle that
// must be released with Close.
func (fs *FileSystem) Open(ctx context.Context, path string, cwd blockdev.SectorID) (in *inode.Inode, err error) {
	_, report := traced(ctx, "diskfs.Open")
	defer func() { report(err) }()
	fs.debugLog("Open", path)

	_, sector, name, err := fs.resolve.Walk(path, cwd)
	if err != nil {
		return nil, err
	}
	if name == "" {
		// Bare "/": opening the root (or any path resolving to the start
		// directory with no named component) must go through OpenDir.
		return nil, fserrors.ErrInvalidPath
	}
	if sector == 0 {
		return nil, fserrors.ErrNotFound
	}

	in, err = fs.inodes.Open(sector)
	if err != nil {
		return nil, err
	}
	if in.IsDir() {
		fs.inodes.Close(in)
		return nil, fserrors.ErrInvalidPath
	}
	return in, nil
}

// OpenDir opens the directory named by path.
func (fs *FileSystem) OpenDir(ctx context.Context, path string, cwd blockdev.SectorID) (d *directory.Dir, err error) {
	_, report := traced(ctx, "diskfs.OpenDir")
	defer func() { report(err) }()
	fs.debugLog("OpenDir", path)

	_, sector, _, err := fs.resolve.Walk(path, cwd)
	if err != nil {
		return nil, err
	}
	if sector == 0 {
		return nil, fserrors.ErrNotFound
	}

	in, err := fs.inodes.Open(sector)
	if err != nil {
		return nil, err
	}
	if !in.IsDir() {
		fs.inodes.Close(in)
		return nil, fserrors.ErrInvalidPath
	}
	return directory.Open(fs.inodes, in), nil
}

// CloseFile and CloseDir release a handle obtained from Open/OpenDir.
func (fs *FileSystem) CloseFile(in *inode.Inode) error { return fs.inodes.Close(in) }
func (fs *FileSystem) CloseDir(d *directory.Dir) error { return fs.inodes.Close(d.Inode()) }

// Remove unlinks the file or empty directory named by path.
// Non-empty directories are rejected with fserrors.ErrNotEmpty rather
// than recursively removed.
func (fs *FileSystem) Remove(ctx context.Context, path string, cwd blockdev.SectorID) (err error) {
	_, report := traced(ctx, "diskfs.Remove")
	defer func() { report(err) }()
	fs.debugLog("Remove", path)

	dirSector, sector, name, err := fs.resolve.Walk(path, cwd)
	if err != nil {
		return err
	}
	if name == "" {
		// Bare "/" (or a path resolving to the start directory itself):
		// the root is never removable.
		return fserrors.ErrInvalidPath
	}
	if sector == 0 {
		return fserrors.ErrNotFound
	}

	in, err := fs.inodes.Open(sector)
	if err != nil {
		return err
	}
	defer fs.inodes.Close(in)

	if in.IsDir() {
		empty, err := directory.Open(fs.inodes, in).IsEmpty()
		if err != nil {
			return err
		}
		if !empty {
			return fserrors.ErrNotEmpty
		}
	}

	parent, err := fs.inodes.Open(dirSector)
	if err != nil {
		return err
	}
	defer fs.inodes.Close(parent)

	if err := directory.Open(fs.inodes, parent).Remove(name); err != nil {
		return err
	}

	fs.inodes.Remove(in)
	return nil
}

// DenyWrite and AllowWrite forward to the inode layer, for callers
// implementing "deny write to the currently running executable"
// semantics on top of Open.
func (fs *FileSystem) DenyWrite(in *inode.Inode)  { fs.inodes.DenyWrite(in) }
func (fs *FileSystem) AllowWrite(in *inode.Inode) { fs.inodes.AllowWrite(in) }

// ReadAt, WriteAt and Length forward directly to the inode layer; they
// are not spans of their own since a byte-at-a-time write loop can
// drive them call by call, and a span per byte would be noise.
func (fs *FileSystem) ReadAt(in *inode.Inode, buf []byte, offset uint32) (int, error) {
	return fs.inodes.ReadAt(in, buf, offset)
}

func (fs *FileSystem) WriteAt(in *inode.Inode, buf []byte, offset uint32) (int, error) {
	return fs.inodes.WriteAt(in, buf, offset)
}

func (fs *FileSystem) Length(in *inode.Inode) (uint32, error) {
	return fs.inodes.Length(in)
}

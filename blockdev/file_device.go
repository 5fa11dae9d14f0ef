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

package blockdev

import (
	"fmt"
	"os"
	"sync/atomic"

	fallocate "github.com/detailyang/go-fallocate"
	"golang.org/x/sys/unix"

	"github.com/jacobsa/diskfs/fserrors"
)

// FileDevice is a BlockDevice backed by a single regular file, the way a
// simulated disk partition is backed by a raw image file. It holds an
// advisory exclusive flock for as long as it is open, so two processes
// never treat the same image as two independent devices.
type FileDevice struct {
	f           *os.File
	sectorCount uint64

	reads  uint64
	writes uint64
}

// CreateFileDevice creates (truncating any existing contents) a backing
// file sized to hold sectorCount sectors, preallocates its extents with
// Fallocate so that later WriteSector calls never implicitly grow the
// file, and flocks it for exclusive access.
func CreateFileDevice(path string, sectorCount uint64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("diskfs: create %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("diskfs: flock %s: %w", path, err)
	}

	size := int64(sectorCount) * SectorSize
	if size > 0 {
		if err := fallocate.Fallocate(f, 0, size); err != nil {
			// Fall back to a plain truncate; some filesystems (tmpfs,
			// certain network mounts) don't support fallocate(2).
			if err := f.Truncate(size); err != nil {
				f.Close()
				return nil, fmt.Errorf("diskfs: size %s: %w", path, err)
			}
		}
	}

	return &FileDevice{f: f, sectorCount: sectorCount}, nil
}

// OpenFileDevice opens an existing backing file without resizing it,
// inferring the sector count from its length.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("diskfs: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("diskfs: flock %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &FileDevice{f: f, sectorCount: uint64(fi.Size()) / SectorSize}, nil
}

// Close releases the flock and closes the backing file. FlushAll on the
// owning cache should be called first if durability matters.
func (d *FileDevice) Close() error {
	return d.f.Close()
}

// Fdatasync flushes the backing file's data to the underlying storage,
// used by the facade's shutdown path after the cache has been drained.
func (d *FileDevice) Fdatasync() error {
	return unix.Fdatasync(int(d.f.Fd()))
}

func (d *FileDevice) SectorCount() uint64 { return d.sectorCount }

func (d *FileDevice) ReadSector(id SectorID, out *[SectorSize]byte) error {
	if uint64(id) >= d.sectorCount {
		return fserrors.ErrIO
	}

	if _, err := d.f.ReadAt(out[:], int64(id)*SectorSize); err != nil {
		return fmt.Errorf("%w: %v", fserrors.ErrIO, err)
	}

	atomic.AddUint64(&d.reads, 1)
	return nil
}

func (d *FileDevice) WriteSector(id SectorID, in *[SectorSize]byte) error {
	if uint64(id) >= d.sectorCount {
		return fserrors.ErrIO
	}

	if _, err := d.f.WriteAt(in[:], int64(id)*SectorSize); err != nil {
		return fmt.Errorf("%w: %v", fserrors.ErrIO, err)
	}

	atomic.AddUint64(&d.writes, 1)
	return nil
}

func (d *FileDevice) Reads() uint64  { return atomic.LoadUint64(&d.reads) }
func (d *FileDevice) Writes() uint64 { return atomic.LoadUint64(&d.writes) }

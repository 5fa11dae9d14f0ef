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

// Package allocator implements the free-sector bitmap. The bitmap lives
// purely in memory until explicitly persisted, and its own backing store
// is itself an inode (opened at a reserved sector) once the inode layer
// exists.
package allocator

import (
	"sync"

	"github.com/jacobsa/diskfs/blockdev"
	"github.com/jacobsa/diskfs/fserrors"
	"github.com/jacobsa/diskfs/inode"
)

// FreeMap tracks, one bit per sector, whether that sector is in use.
// It implements inode.Allocator.
type FreeMap struct {
	mu        sync.Mutex
	bits      []bool // GUARDED_BY(mu)
	persisted bool   // GUARDED_BY(mu); true once backed by an on-disk inode
}

var _ inode.Allocator = (*FreeMap)(nil)

// Format creates a free map for a device of deviceSectors sectors, with
// sector 0 (the free map's own inode) and sector 1 (the root directory's
// inode) pre-marked in use: both must be reserved before any inode
// exists to describe them.
func Format(deviceSectors uint64) *FreeMap {
	fm := &FreeMap{bits: make([]bool, deviceSectors)}
	fm.bits[inode.FreeMapSector] = true
	fm.bits[inode.RootDirSector] = true
	return fm
}

// Allocate finds n consecutive free sectors, marks them used, and
// returns the id of the first one. Every call site in this module passes
// n == 1; general n is supported for fidelity with free_map_allocate's
// signature.
func (fm *FreeMap) Allocate(n int) (blockdev.SectorID, bool) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	run := 0
	for i, used := range fm.bits {
		if used {
			run = 0
			continue
		}
		run++
		if run == n {
			start := i - n + 1
			for j := start; j <= i; j++ {
				fm.bits[j] = true
			}
			return blockdev.SectorID(start), true
		}
	}
	return 0, false
}

// Release marks n sectors starting at sector as free again.
func (fm *FreeMap) Release(sector blockdev.SectorID, n int) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	for i := 0; i < n; i++ {
		fm.bits[uint64(sector)+uint64(i)] = false
	}
}

// Load reads a previously Persisted free map back from the inode at
// inode.FreeMapSector, sized to deviceSectors bits (one per device
// sector, as Format would have sized it).
func Load(layer *inode.Layer, deviceSectors uint64) (*FreeMap, error) {
	in, err := layer.Open(inode.FreeMapSector)
	if err != nil {
		return nil, err
	}
	defer layer.Close(in)

	fm := &FreeMap{bits: make([]bool, deviceSectors)}
	raw := make([]byte, (deviceSectors+7)/8)
	if _, err := layer.ReadAt(in, raw, 0); err != nil {
		return nil, err
	}

	for i := uint64(0); i < deviceSectors; i++ {
		fm.bits[i] = raw[i/8]&(1<<(i%8)) != 0
	}
	fm.persisted = true
	return fm, nil
}

// Persist writes fm's bitmap through the inode layer into the free map's
// own inode at inode.FreeMapSector, creating that inode the first time
// it is called and simply rewriting it thereafter.
func (fm *FreeMap) Persist(layer *inode.Layer) error {
	fm.mu.Lock()
	n := len(fm.bits)
	needCreate := !fm.persisted
	fm.mu.Unlock()

	rawLen := (n + 7) / 8
	if needCreate {
		if err := layer.Create(inode.FreeMapSector, uint32(rawLen), false); err != nil {
			return err
		}
	}

	// Marshal only after the create above: creating the free map's own
	// inode allocates the bitmap's data sectors out of this very map,
	// and the persisted image must mark them used or a reload would
	// hand them out again on top of the free map's own storage.
	fm.mu.Lock()
	raw := make([]byte, rawLen)
	for i, used := range fm.bits {
		if used {
			raw[i/8] |= 1 << uint(i%8)
		}
	}
	fm.mu.Unlock()

	in, err := layer.Open(inode.FreeMapSector)
	if err != nil {
		return err
	}
	defer layer.Close(in)

	written, err := layer.WriteAt(in, raw, 0)
	if err != nil {
		return err
	}
	if written != len(raw) {
		return fserrors.ErrIO
	}

	fm.mu.Lock()
	fm.persisted = true
	fm.mu.Unlock()
	return nil
}

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
	"sync"
	"sync/atomic"

	"github.com/jacobsa/diskfs/fserrors"
)

// MemDevice is a BlockDevice backed by a slice in memory. It is meant for
// unit tests that want to assert on read/write counters without the cost
// or nondeterminism of a real file.
type MemDevice struct {
	mu      sync.Mutex
	sectors [][SectorSize]byte
	reads   uint64
	writes  uint64
}

// NewMemDevice creates a zero-filled device of the given sector count.
func NewMemDevice(sectorCount uint64) *MemDevice {
	return &MemDevice{
		sectors: make([][SectorSize]byte, sectorCount),
	}
}

func (d *MemDevice) SectorCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.sectors))
}

func (d *MemDevice) ReadSector(id SectorID, out *[SectorSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if uint64(id) >= uint64(len(d.sectors)) {
		return fserrors.ErrIO
	}

	*out = d.sectors[id]
	atomic.AddUint64(&d.reads, 1)
	return nil
}

func (d *MemDevice) WriteSector(id SectorID, in *[SectorSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if uint64(id) >= uint64(len(d.sectors)) {
		return fserrors.ErrIO
	}

	d.sectors[id] = *in
	atomic.AddUint64(&d.writes, 1)
	return nil
}

func (d *MemDevice) Reads() uint64  { return atomic.LoadUint64(&d.reads) }
func (d *MemDevice) Writes() uint64 { return atomic.LoadUint64(&d.writes) }

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

package allocator

import (
	"testing"

	"github.com/jacobsa/timeutil"

	"github.com/jacobsa/diskfs/blockdev"
	"github.com/jacobsa/diskfs/buffercache"
	"github.com/jacobsa/diskfs/inode"
)

func newTestLayer(t *testing.T, sectors uint64) *inode.Layer {
	t.Helper()
	dev := blockdev.NewMemDevice(sectors)
	cache := buffercache.New(dev, buffercache.MaxEntries, timeutil.RealClock())
	return inode.NewLayer(cache, nil)
}

func TestFormatPreMarksReservedSectors(t *testing.T) {
	fm := Format(256)

	if !fm.bits[inode.FreeMapSector] {
		t.Fatalf("FreeMapSector not marked used after Format")
	}
	if !fm.bits[inode.RootDirSector] {
		t.Fatalf("RootDirSector not marked used after Format")
	}
	for i, used := range fm.bits {
		if i == int(inode.FreeMapSector) || i == int(inode.RootDirSector) {
			continue
		}
		if used {
			t.Fatalf("sector %d marked used after Format, want free", i)
		}
	}
}

func TestAllocateFindsContiguousRunAndSkipsUsed(t *testing.T) {
	fm := Format(16)

	first, ok := fm.Allocate(1)
	if !ok {
		t.Fatalf("Allocate(1): want ok")
	}
	if first == inode.FreeMapSector || first == inode.RootDirSector {
		t.Fatalf("Allocate returned a sector Format had already reserved: %d", first)
	}

	run, ok := fm.Allocate(3)
	if !ok {
		t.Fatalf("Allocate(3): want ok")
	}
	for i := blockdev.SectorID(0); i < 3; i++ {
		if !fm.bits[run+i] {
			t.Fatalf("sector %d not marked used after Allocate(3)", run+i)
		}
	}
}

func TestReleaseFreesSectorsForReuse(t *testing.T) {
	fm := Format(8)

	run, ok := fm.Allocate(4)
	if !ok {
		t.Fatalf("Allocate(4): want ok")
	}
	fm.Release(run, 4)
	for i := blockdev.SectorID(0); i < 4; i++ {
		if fm.bits[run+i] {
			t.Fatalf("sector %d still marked used after Release", run+i)
		}
	}

	again, ok := fm.Allocate(4)
	if !ok || again != run {
		t.Fatalf("Allocate after Release = (%v, %v), want (%v, true)", again, ok, run)
	}
}

func TestAllocateFailsWhenDeviceIsFull(t *testing.T) {
	fm := Format(2)
	if _, ok := fm.Allocate(1); ok {
		t.Fatalf("Allocate on a fully-reserved 2-sector device: want ok=false")
	}
}

func TestPersistThenLoadRoundTrips(t *testing.T) {
	const deviceSectors = 4096
	layer := newTestLayer(t, deviceSectors)

	fm := Format(deviceSectors)
	layer.SetAllocator(fm)

	// Hand out a few runs so the persisted bitmap has nontrivial content.
	if _, ok := fm.Allocate(1); !ok {
		t.Fatalf("Allocate(1): want ok")
	}
	if _, ok := fm.Allocate(5); !ok {
		t.Fatalf("Allocate(5): want ok")
	}

	if err := fm.Persist(layer); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	// A second Persist call must rewrite in place, not re-create.
	if _, ok := fm.Allocate(2); !ok {
		t.Fatalf("Allocate(2): want ok")
	}
	if err := fm.Persist(layer); err != nil {
		t.Fatalf("second Persist: %v", err)
	}

	loaded, err := Load(layer, deviceSectors)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.bits) != len(fm.bits) {
		t.Fatalf("loaded bitmap has %d bits, want %d", len(loaded.bits), len(fm.bits))
	}
	for i := range fm.bits {
		if loaded.bits[i] != fm.bits[i] {
			t.Fatalf("bit %d = %v after reload, want %v", i, loaded.bits[i], fm.bits[i])
		}
	}
}

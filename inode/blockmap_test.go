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
	"testing"

	"github.com/jacobsa/diskfs/blockdev"
)

func TestDirectCountBounds(t *testing.T) {
	cases := []struct {
		length uint32
		want   uint32
	}{
		{0, 0},
		{1, 1},
		{sectorSize, 1},
		{sectorSize + 1, 2},
		{DirectBound, DirectCount},
		{DirectBound + 1, DirectCount}, // saturates; single tier takes over
	}
	for _, c := range cases {
		if got := directCount(c.length); got != c.want {
			t.Errorf("directCount(%d) = %d, want %d", c.length, got, c.want)
		}
	}
}

func TestSingleCountBounds(t *testing.T) {
	if got := singleCount(DirectBound); got != 0 {
		t.Errorf("singleCount(DirectBound) = %d, want 0", got)
	}
	if got := singleCount(DirectBound + 1); got != 1 {
		t.Errorf("singleCount(DirectBound+1) = %d, want 1", got)
	}
	if got := singleCount(SingleIndirectBound); got != SingleIndirectCount {
		t.Errorf("singleCount(SingleIndirectBound) = %d, want %d", got, SingleIndirectCount)
	}
}

func TestDoubleCountBounds(t *testing.T) {
	if got := doubleCount(SingleIndirectBound); got != 0 {
		t.Errorf("doubleCount(SingleIndirectBound) = %d, want 0", got)
	}
	if got := doubleCount(SingleIndirectBound + 1); got != 1 {
		t.Errorf("doubleCount(SingleIndirectBound+1) = %d, want 1", got)
	}
	if got := doubleCount(MaxFileSize); got != DoubleIndirectCount {
		t.Errorf("doubleCount(MaxFileSize) = %d, want %d", got, DoubleIndirectCount)
	}
}

// fakeAllocator is a tiny linear bump allocator for exercising extend/
// release without pulling in the allocator package (which itself
// depends on this one).
type fakeAllocator struct {
	next  blockdev.SectorID
	freed []blockdev.SectorID
}

func (a *fakeAllocator) Allocate(n int) (blockdev.SectorID, bool) {
	if n != 1 {
		panic("fakeAllocator only supports n=1")
	}
	s := a.next
	a.next++
	return s, true
}

func (a *fakeAllocator) Release(sector blockdev.SectorID, n int) {
	a.freed = append(a.freed, sector)
}

func newTestLayer(t *testing.T, sectors uint64) (*Layer, *fakeAllocator) {
	t.Helper()
	cache := newTestCache(t, sectors)
	alloc := &fakeAllocator{next: 2}
	return NewLayer(cache, alloc), alloc
}

func TestExtendWithinDirectRange(t *testing.T) {
	layer, alloc := newTestLayer(t, 256)

	disk := &Disk{Magic: Magic}
	if err := layer.extend(disk, 10*sectorSize, 0); err != nil {
		t.Fatalf("extend: %v", err)
	}

	if got := directCount(10 * sectorSize); got != 10 {
		t.Fatalf("directCount = %d, want 10", got)
	}
	for i := uint32(0); i < 10; i++ {
		if disk.Direct[i] == 0 {
			t.Fatalf("Direct[%d] was never allocated", i)
		}
	}
	if len(alloc.freed) != 0 {
		t.Fatalf("extend should not release anything")
	}
}

func TestExtendIntoSingleIndirectAllocatesIndirectBlock(t *testing.T) {
	layer, _ := newTestLayer(t, 4096)

	disk := &Disk{Magic: Magic}
	newLen := uint32(DirectBound + 5*sectorSize)
	if err := layer.extend(disk, newLen, 0); err != nil {
		t.Fatalf("extend: %v", err)
	}

	if disk.SingleIndirect[0] == 0 {
		t.Fatalf("SingleIndirect[0] was never allocated")
	}

	ib, err := layer.readIndirect(disk.SingleIndirect[0])
	if err != nil {
		t.Fatalf("readIndirect: %v", err)
	}
	if ib.Level != 0 {
		t.Fatalf("indirect block Level = %d, want 0", ib.Level)
	}
	for i := 0; i < 5; i++ {
		if ib.Pointers[i] == 0 {
			t.Fatalf("Pointers[%d] was never allocated", i)
		}
	}
	for i := 5; i < PointersPerIndirect; i++ {
		if ib.Pointers[i] != 0 {
			t.Fatalf("Pointers[%d] = %d, want 0 (only the sectors the length needs are allocated)", i, ib.Pointers[i])
		}
	}
}

func TestExtendCrossingIntoSingleIndirectAllocatesMinimally(t *testing.T) {
	layer, alloc := newTestLayer(t, 4096)

	disk := &Disk{Magic: Magic}
	if err := layer.extend(disk, DirectBound, 0); err != nil {
		t.Fatalf("extend to direct bound: %v", err)
	}

	before := alloc.next
	if err := layer.extend(disk, DirectBound+sectorSize, DirectBound); err != nil {
		t.Fatalf("extend past direct bound: %v", err)
	}

	// Exactly one indirect block plus one data sector.
	if got := alloc.next - before; got != 2 {
		t.Fatalf("crossing the direct bound allocated %d sectors, want 2", got)
	}
}

func TestExtendWithinPartialIndirectBlockReusesIt(t *testing.T) {
	layer, alloc := newTestLayer(t, 4096)

	disk := &Disk{Magic: Magic}
	if err := layer.extend(disk, DirectBound+sectorSize, 0); err != nil {
		t.Fatalf("extend: %v", err)
	}
	firstIndirect := disk.SingleIndirect[0]

	before := alloc.next
	if err := layer.extend(disk, DirectBound+3*sectorSize, DirectBound+sectorSize); err != nil {
		t.Fatalf("second extend: %v", err)
	}

	if got := alloc.next - before; got != 2 {
		t.Fatalf("growing within a partial indirect block allocated %d sectors, want 2 data sectors", got)
	}
	if disk.SingleIndirect[0] != firstIndirect {
		t.Fatalf("SingleIndirect[0] changed from %d to %d", firstIndirect, disk.SingleIndirect[0])
	}

	ib, err := layer.readIndirect(firstIndirect)
	if err != nil {
		t.Fatalf("readIndirect: %v", err)
	}
	for i := 0; i < 3; i++ {
		if ib.Pointers[i] == 0 {
			t.Fatalf("Pointers[%d] was never allocated", i)
		}
	}
}

// TestSectorAtReachesTierBoundaries maps the last offset of each fan-out
// tier without building a maximum-size file: the indirect blocks are
// synthesized directly through the cache.
func TestSectorAtReachesTierBoundaries(t *testing.T) {
	layer, _ := newTestLayer(t, 8192)

	disk := &Disk{Magic: Magic}
	disk.Direct[DirectCount-1] = 1000

	const singleBlock = blockdev.SectorID(100)
	disk.SingleIndirect[SingleIndirectCount-1] = singleBlock
	single := &Indirect{SelfSector: singleBlock, Level: 0}
	single.Pointers[PointersPerIndirect-1] = 2000
	if err := layer.writeIndirect(singleBlock, single); err != nil {
		t.Fatalf("writeIndirect(single): %v", err)
	}

	const outerBlock, innerBlock = blockdev.SectorID(101), blockdev.SectorID(102)
	disk.DoubleIndirect[0] = outerBlock
	outer := &Indirect{SelfSector: outerBlock, Level: 1}
	outer.Pointers[PointersPerIndirect-1] = innerBlock
	if err := layer.writeIndirect(outerBlock, outer); err != nil {
		t.Fatalf("writeIndirect(outer): %v", err)
	}
	inner := &Indirect{SelfSector: innerBlock, Level: 0}
	inner.Pointers[PointersPerIndirect-1] = 3000
	if err := layer.writeIndirect(innerBlock, inner); err != nil {
		t.Fatalf("writeIndirect(inner): %v", err)
	}

	cases := []struct {
		name string
		pos  uint32
		want blockdev.SectorID
	}{
		{"last direct", DirectBound - sectorSize, 1000},
		{"last single-indirect", SingleIndirectBound - sectorSize, 2000},
		{"last double-indirect", MaxFileSize - sectorSize, 3000},
	}
	for _, c := range cases {
		got, err := layer.sectorAt(disk, c.pos)
		if err != nil {
			t.Fatalf("sectorAt(%s at %d): %v", c.name, c.pos, err)
		}
		if got != c.want {
			t.Errorf("sectorAt(%s at %d) = %d, want %d", c.name, c.pos, got, c.want)
		}
	}
}

func TestReleaseFreesEverythingExtendAllocated(t *testing.T) {
	layer, alloc := newTestLayer(t, 4096)

	disk := &Disk{Magic: Magic}
	newLen := uint32(DirectBound + 2*sectorSize)
	if err := layer.extend(disk, newLen, 0); err != nil {
		t.Fatalf("extend: %v", err)
	}
	// extend leaves Length to its caller, and release frees by Length.
	disk.Length = newLen

	allocatedBeforeRelease := alloc.next
	if err := layer.release(disk); err != nil {
		t.Fatalf("release: %v", err)
	}

	wantFreed := int(allocatedBeforeRelease) - 2 // minus the two reserved sectors never given out
	if len(alloc.freed) != wantFreed {
		t.Fatalf("release freed %d sectors, want %d", len(alloc.freed), wantFreed)
	}
}

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
	"github.com/jacobsa/diskfs/blockdev"
	"github.com/jacobsa/diskfs/fserrors"
)

const (
	singleSpanBytes = PointersPerIndirect * sectorSize
	doubleSpanBytes = PointersPerIndirect * singleSpanBytes
)

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// directCount, singleCount and doubleCount return how many of each tier's
// slots a file of the given length currently occupies.
func directCount(length uint32) uint32 {
	n := ceilDiv(length, sectorSize)
	if n > DirectCount {
		return DirectCount
	}
	return n
}

func singleCount(length uint32) uint32 {
	if length <= DirectBound {
		return 0
	}
	n := ceilDiv(length-DirectBound, singleSpanBytes)
	if n > SingleIndirectCount {
		return SingleIndirectCount
	}
	return n
}

func doubleCount(length uint32) uint32 {
	if length <= SingleIndirectBound {
		return 0
	}
	n := ceilDiv(length-SingleIndirectBound, doubleSpanBytes)
	if n > DoubleIndirectCount {
		return DoubleIndirectCount
	}
	return n
}

// readIndirect fetches and decodes the indirect block at sector.
func (l *Layer) readIndirect(sector blockdev.SectorID) (*Indirect, error) {
	var buf [sectorSize]byte
	if err := l.cache.Read(sector, &buf); err != nil {
		return nil, err
	}
	return UnmarshalIndirect(&buf), nil
}

func (l *Layer) writeIndirect(sector blockdev.SectorID, b *Indirect) error {
	return l.cache.Write(sector, b.MarshalSector())
}

// sectorAt resolves the byte offset pos (0 <= pos < disk.Length) to the
// data sector holding it. It is iterative, not recursive, flattening the
// original's recursive indirection into two explicit non-recursive
// branches (single, double).
func (l *Layer) sectorAt(disk *Disk, pos uint32) (blockdev.SectorID, error) {
	switch {
	case pos < DirectBound:
		return disk.Direct[pos/sectorSize], nil

	case pos < SingleIndirectBound:
		rel := pos - DirectBound
		idx := rel / singleSpanBytes
		within := rel % singleSpanBytes

		ib, err := l.readIndirect(disk.SingleIndirect[idx])
		if err != nil {
			return 0, err
		}
		return ib.Pointers[within/sectorSize], nil

	default:
		rel := pos - SingleIndirectBound
		idx := rel / doubleSpanBytes
		within := rel % doubleSpanBytes

		outer, err := l.readIndirect(disk.DoubleIndirect[idx])
		if err != nil {
			return 0, err
		}

		idx2 := within / singleSpanBytes
		within2 := within % singleSpanBytes

		inner, err := l.readIndirect(outer.Pointers[idx2])
		if err != nil {
			return 0, err
		}
		return inner.Pointers[within2/sectorSize], nil
	}
}

// zeroSector is written through every newly allocated data sector so that
// reads past the old EOF but within the new length see zero bytes.
var zeroSector [sectorSize]byte

func (l *Layer) allocateZeroed() (blockdev.SectorID, error) {
	sector, ok := l.alloc.Allocate(1)
	if !ok {
		return 0, fserrors.ErrNoSpace
	}
	if err := l.cache.Write(sector, &zeroSector); err != nil {
		return 0, err
	}
	return sector, nil
}

// Data-sector capacities of the first and second fan-out tiers.
const (
	singleTierSectors = SingleIndirectCount * PointersPerIndirect
	doubleTierSectors = DoubleIndirectCount * PointersPerIndirect * PointersPerIndirect
)

// dataSectors returns the number of data sectors backing a file of the
// given length.
func dataSectors(length uint32) uint32 {
	return ceilDiv(length, sectorSize)
}

// extend grows disk in place from oldLength to newLength, allocating and
// zero-filling exactly the additional data sectors the new length
// requires, plus whatever indirect blocks become necessary to reach
// them. It mutates disk.Direct/SingleIndirect/DoubleIndirect but not
// disk.Length -- the caller persists the new length itself.
func (l *Layer) extend(disk *Disk, newLength, oldLength uint32) error {
	for n := dataSectors(oldLength); n < dataSectors(newLength); n++ {
		s, err := l.allocateZeroed()
		if err != nil {
			return err
		}
		if err := l.setSector(disk, n, s); err != nil {
			return err
		}
	}
	return nil
}

// setSector wires data-sector index n (0-based across all tiers) to s,
// allocating an indirect block whenever n is the first slot of one.
// extend drives n strictly upward, so a partially filled indirect block
// is always the highest one and "within == 0" is exactly the moment a
// new block is needed.
func (l *Layer) setSector(disk *Disk, n uint32, s blockdev.SectorID) error {
	switch {
	case n < DirectCount:
		disk.Direct[n] = s
		return nil

	case n < DirectCount+singleTierSectors:
		rel := n - DirectCount
		idx, within := rel/PointersPerIndirect, rel%PointersPerIndirect

		if within == 0 {
			sector, ok := l.alloc.Allocate(1)
			if !ok {
				return fserrors.ErrNoSpace
			}
			ib := &Indirect{SelfSector: sector, Level: 0}
			ib.Pointers[0] = s
			if err := l.writeIndirect(sector, ib); err != nil {
				return err
			}
			disk.SingleIndirect[idx] = sector
			return nil
		}

		ib, err := l.readIndirect(disk.SingleIndirect[idx])
		if err != nil {
			return err
		}
		ib.Pointers[within] = s
		return l.writeIndirect(disk.SingleIndirect[idx], ib)

	default:
		rel := n - DirectCount - singleTierSectors
		innerIdx, within := rel/PointersPerIndirect, rel%PointersPerIndirect

		if rel == 0 {
			sector, ok := l.alloc.Allocate(1)
			if !ok {
				return fserrors.ErrNoSpace
			}
			outer := &Indirect{SelfSector: sector, Level: 1}
			if err := l.writeIndirect(sector, outer); err != nil {
				return err
			}
			disk.DoubleIndirect[0] = sector
		}

		outer, err := l.readIndirect(disk.DoubleIndirect[0])
		if err != nil {
			return err
		}

		if within == 0 {
			sector, ok := l.alloc.Allocate(1)
			if !ok {
				return fserrors.ErrNoSpace
			}
			inner := &Indirect{SelfSector: sector, Level: 0}
			inner.Pointers[0] = s
			if err := l.writeIndirect(sector, inner); err != nil {
				return err
			}
			outer.Pointers[innerIdx] = sector
			return l.writeIndirect(disk.DoubleIndirect[0], outer)
		}

		inner, err := l.readIndirect(outer.Pointers[innerIdx])
		if err != nil {
			return err
		}
		inner.Pointers[within] = s
		return l.writeIndirect(outer.Pointers[innerIdx], inner)
	}
}

// release frees every sector referenced by disk, including its indirect
// blocks, in data-then-indirect-then-(caller frees the inode sector)
// order. Only the pointers a file of disk.Length actually occupies are
// released; slots past the end of a partially filled indirect block
// still hold the unallocated-sentinel 0.
func (l *Layer) release(disk *Disk) error {
	total := dataSectors(disk.Length)

	direct := total
	if direct > DirectCount {
		direct = DirectCount
	}
	for i := uint32(0); i < direct; i++ {
		l.alloc.Release(disk.Direct[i], 1)
	}

	singleData := uint32(0)
	if total > DirectCount {
		singleData = total - DirectCount
		if singleData > singleTierSectors {
			singleData = singleTierSectors
		}
	}
	for i := uint32(0); i*PointersPerIndirect < singleData; i++ {
		ib, err := l.readIndirect(disk.SingleIndirect[i])
		if err != nil {
			return err
		}
		count := singleData - i*PointersPerIndirect
		if count > PointersPerIndirect {
			count = PointersPerIndirect
		}
		for k := uint32(0); k < count; k++ {
			l.alloc.Release(ib.Pointers[k], 1)
		}
		l.alloc.Release(disk.SingleIndirect[i], 1)
	}

	if total <= DirectCount+singleTierSectors {
		return nil
	}
	doubleData := total - DirectCount - singleTierSectors

	outer, err := l.readIndirect(disk.DoubleIndirect[0])
	if err != nil {
		return err
	}
	for k := uint32(0); k*PointersPerIndirect < doubleData; k++ {
		inner, err := l.readIndirect(outer.Pointers[k])
		if err != nil {
			return err
		}
		count := doubleData - k*PointersPerIndirect
		if count > PointersPerIndirect {
			count = PointersPerIndirect
		}
		for j := uint32(0); j < count; j++ {
			l.alloc.Release(inner.Pointers[j], 1)
		}
		l.alloc.Release(outer.Pointers[k], 1)
	}
	l.alloc.Release(disk.DoubleIndirect[0], 1)

	return nil
}

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

// Package inode implements the growable-file block map and the
// reference-counted in-memory inode table. It is the only thing above
// buffercache that understands the on-disk inode and indirect-block
// layouts.
package inode

import (
	"encoding/binary"

	"github.com/jacobsa/diskfs/blockdev"
	"github.com/jacobsa/diskfs/fserrors"
)

// Fan-out constants for the three-tier block map.
const (
	DirectCount         = 50
	SingleIndirectCount = 74
	DoubleIndirectCount = 1
	PointersPerIndirect = 126

	// Magic identifies a sector as holding a valid InodeDisk: "INOD" in
	// ASCII.
	Magic = 0x494E4F44

	// FreeMapSector and RootDirSector are the two reserved sector ids.
	FreeMapSector = blockdev.SectorID(0)
	RootDirSector = blockdev.SectorID(1)

	// NameMax is the maximum length, in bytes, of a single path
	// component.
	NameMax = 14
)

const sectorSize = blockdev.SectorSize

// Byte-offset boundaries of the three fan-out tiers.
const (
	DirectBound         = DirectCount * sectorSize
	singleIndirectSpan  = SingleIndirectCount * PointersPerIndirect * sectorSize
	SingleIndirectBound = DirectBound + singleIndirectSpan
	doubleIndirectSpan  = DoubleIndirectCount * PointersPerIndirect * PointersPerIndirect * sectorSize
)

// MaxFileSize is the largest length, in bytes, representable by the
// block map.
const MaxFileSize = SingleIndirectBound + doubleIndirectSpan

// Disk is the exactly-one-sector on-disk inode.
type Disk struct {
	Length         uint32
	Magic          uint32
	IsDir          bool
	Direct         [DirectCount]blockdev.SectorID
	SingleIndirect [SingleIndirectCount]blockdev.SectorID
	DoubleIndirect [DoubleIndirectCount]blockdev.SectorID
}

// byte offsets within the 512-byte sector.
const (
	offLength         = 0
	offMagic          = 4
	offIsDir          = 8
	offDirect         = 12
	offSingleIndirect = offDirect + 4*DirectCount
	offDoubleIndirect = offSingleIndirect + 4*SingleIndirectCount
)

func init() {
	const total = offDoubleIndirect + 4*DoubleIndirectCount
	if total != sectorSize {
		panic("inode: Disk layout does not pack into one sector")
	}
}

// MarshalSector packs d into exactly one sector, little-endian.
func (d *Disk) MarshalSector() *[sectorSize]byte {
	var buf [sectorSize]byte

	binary.LittleEndian.PutUint32(buf[offLength:], d.Length)
	binary.LittleEndian.PutUint32(buf[offMagic:], d.Magic)
	if d.IsDir {
		buf[offIsDir] = 1
	}

	off := offDirect
	for _, s := range d.Direct {
		binary.LittleEndian.PutUint32(buf[off:], uint32(s))
		off += 4
	}
	for _, s := range d.SingleIndirect {
		binary.LittleEndian.PutUint32(buf[off:], uint32(s))
		off += 4
	}
	for _, s := range d.DoubleIndirect {
		binary.LittleEndian.PutUint32(buf[off:], uint32(s))
		off += 4
	}

	return &buf
}

// UnmarshalDisk decodes a sector produced by MarshalSector, failing if
// the magic number doesn't match.
func UnmarshalDisk(buf *[sectorSize]byte) (*Disk, error) {
	d := &Disk{
		Length: binary.LittleEndian.Uint32(buf[offLength:]),
		Magic:  binary.LittleEndian.Uint32(buf[offMagic:]),
		IsDir:  buf[offIsDir] != 0,
	}

	if d.Magic != Magic {
		return nil, fserrors.ErrIO
	}

	off := offDirect
	for i := range d.Direct {
		d.Direct[i] = blockdev.SectorID(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	for i := range d.SingleIndirect {
		d.SingleIndirect[i] = blockdev.SectorID(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	for i := range d.DoubleIndirect {
		d.DoubleIndirect[i] = blockdev.SectorID(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}

	return d, nil
}

// Indirect is the exactly-one-sector indirect block.
type Indirect struct {
	SelfSector blockdev.SectorID
	Level      uint32 // 0 = single, 1 = double
	Pointers   [PointersPerIndirect]blockdev.SectorID
}

const (
	offIndSelf     = 0
	offIndLevel    = 4
	offIndPointers = 8
)

func init() {
	const total = offIndPointers + 4*PointersPerIndirect
	if total != sectorSize {
		panic("inode: Indirect layout does not pack into one sector")
	}
}

func (b *Indirect) MarshalSector() *[sectorSize]byte {
	var buf [sectorSize]byte

	binary.LittleEndian.PutUint32(buf[offIndSelf:], uint32(b.SelfSector))
	binary.LittleEndian.PutUint32(buf[offIndLevel:], b.Level)

	off := offIndPointers
	for _, s := range b.Pointers {
		binary.LittleEndian.PutUint32(buf[off:], uint32(s))
		off += 4
	}

	return &buf
}

func UnmarshalIndirect(buf *[sectorSize]byte) *Indirect {
	b := &Indirect{
		SelfSector: blockdev.SectorID(binary.LittleEndian.Uint32(buf[offIndSelf:])),
		Level:      binary.LittleEndian.Uint32(buf[offIndLevel:]),
	}

	off := offIndPointers
	for i := range b.Pointers {
		b.Pointers[i] = blockdev.SectorID(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}

	return b
}

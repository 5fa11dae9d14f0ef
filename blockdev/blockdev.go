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

// Package blockdev defines the external block device contract that the
// buffer cache reads and writes through, plus two implementations: a
// regular-file-backed device for real use and an in-memory device for
// tests. Everything above this package (buffercache, inode, allocator,
// directory, and the root facade) talks only to the BlockDevice
// interface.
package blockdev

// SectorSize is the fixed width, in bytes, of every sector on a
// BlockDevice.
const SectorSize = 512

// SectorID addresses a single fixed-width sector. Sector 0 and sector 1
// are reserved for the free map and root directory; a BlockDevice does
// not know about that reservation, it is enforced by the layers above.
type SectorID uint32

// BlockDevice is the contract the buffer cache requires of the underlying
// storage medium.
type BlockDevice interface {
	// SectorCount returns the number of addressable sectors.
	SectorCount() uint64

	// ReadSector reads exactly SectorSize bytes into out.
	ReadSector(id SectorID, out *[SectorSize]byte) error

	// WriteSector writes exactly SectorSize bytes from in.
	WriteSector(id SectorID, in *[SectorSize]byte) error

	// Reads and Writes are monotonic counters of completed sector
	// operations, exposed verbatim by the facade's counter accessors.
	Reads() uint64
	Writes() uint64
}

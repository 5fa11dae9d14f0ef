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

import "testing"

func TestMemDeviceReadWriteRoundTrip(t *testing.T) {
	d := NewMemDevice(4)

	var in [SectorSize]byte
	in[0] = 0xAB
	in[SectorSize-1] = 0xCD
	if err := d.WriteSector(2, &in); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}

	var out [SectorSize]byte
	if err := d.ReadSector(2, &out); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if out != in {
		t.Fatalf("read back different contents")
	}

	if got := d.Writes(); got != 1 {
		t.Fatalf("Writes() = %d, want 1", got)
	}
	if got := d.Reads(); got != 1 {
		t.Fatalf("Reads() = %d, want 1", got)
	}
}

func TestMemDeviceOutOfRange(t *testing.T) {
	d := NewMemDevice(2)
	var buf [SectorSize]byte

	if err := d.ReadSector(2, &buf); err == nil {
		t.Fatalf("ReadSector(2) on a 2-sector device: want error, got nil")
	}
	if err := d.WriteSector(100, &buf); err == nil {
		t.Fatalf("WriteSector(100) on a 2-sector device: want error, got nil")
	}
}

func TestMemDeviceSectorCount(t *testing.T) {
	d := NewMemDevice(17)
	if got := d.SectorCount(); got != 17 {
		t.Fatalf("SectorCount() = %d, want 17", got)
	}
}

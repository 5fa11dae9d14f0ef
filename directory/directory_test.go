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

package directory

import (
	"sort"
	"testing"

	"github.com/jacobsa/timeutil"

	"github.com/jacobsa/diskfs/blockdev"
	"github.com/jacobsa/diskfs/buffercache"
	"github.com/jacobsa/diskfs/fserrors"
	"github.com/jacobsa/diskfs/inode"
)

type bumpAllocator struct{ next blockdev.SectorID }

func (a *bumpAllocator) Allocate(n int) (blockdev.SectorID, bool) {
	s := a.next
	a.next++
	return s, true
}
func (a *bumpAllocator) Release(blockdev.SectorID, int) {}

func newTestLayer(t *testing.T) *inode.Layer {
	t.Helper()
	dev := blockdev.NewMemDevice(4096)
	cache := buffercache.New(dev, buffercache.MaxEntries, timeutil.RealClock())
	return inode.NewLayer(cache, &bumpAllocator{next: 2})
}

func TestCreateSeedsDotAndDotDot(t *testing.T) {
	layer := newTestLayer(t)
	const root = blockdev.SectorID(1)

	if err := Create(layer, root, root); err != nil {
		t.Fatalf("Create: %v", err)
	}

	in, err := layer.Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer layer.Close(in)

	d := Open(layer, in)
	if s, err := d.Lookup("."); err != nil || s != root {
		t.Fatalf("Lookup(.) = (%v, %v), want (%v, nil)", s, err, root)
	}
	if s, err := d.Lookup(".."); err != nil || s != root {
		t.Fatalf("Lookup(..) = (%v, %v), want (%v, nil)", s, err, root)
	}

	empty, err := d.IsEmpty()
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatalf("a freshly created directory with only . and .. should be empty")
	}
}

func TestAddLookupRemove(t *testing.T) {
	layer := newTestLayer(t)
	const root = blockdev.SectorID(1)
	if err := Create(layer, root, root); err != nil {
		t.Fatalf("Create: %v", err)
	}
	in, err := layer.Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer layer.Close(in)
	d := Open(layer, in)

	if err := d.Add("a-file", 50); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := d.Add("a-file", 51); err != fserrors.ErrAlreadyExists {
		t.Fatalf("Add duplicate: got %v, want ErrAlreadyExists", err)
	}

	if s, err := d.Lookup("a-file"); err != nil || s != 50 {
		t.Fatalf("Lookup(a-file) = (%v, %v), want (50, nil)", s, err)
	}

	names, err := d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(names)
	if len(names) != 1 || names[0] != "a-file" {
		t.Fatalf("List() = %v, want [a-file]", names)
	}

	if err := d.Remove("a-file"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := d.Lookup("a-file"); err != fserrors.ErrNotFound {
		t.Fatalf("Lookup after Remove: got %v, want ErrNotFound", err)
	}

	empty, err := d.IsEmpty()
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatalf("directory should be empty again after Remove")
	}
}

func TestAddReusesVacatedSlot(t *testing.T) {
	layer := newTestLayer(t)
	const root = blockdev.SectorID(1)
	if err := Create(layer, root, root); err != nil {
		t.Fatalf("Create: %v", err)
	}
	in, err := layer.Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer layer.Close(in)
	d := Open(layer, in)

	if err := d.Add("first", 50); err != nil {
		t.Fatalf("Add: %v", err)
	}
	lengthBefore, err := layer.Length(in)
	if err != nil {
		t.Fatalf("Length: %v", err)
	}

	if err := d.Remove("first"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := d.Add("second", 51); err != nil {
		t.Fatalf("Add: %v", err)
	}

	lengthAfter, err := layer.Length(in)
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	if lengthAfter != lengthBefore {
		t.Fatalf("Add after Remove grew the directory (length %d -> %d); want slot reuse", lengthBefore, lengthAfter)
	}
}

func TestNameTooLongRejected(t *testing.T) {
	layer := newTestLayer(t)
	const root = blockdev.SectorID(1)
	if err := Create(layer, root, root); err != nil {
		t.Fatalf("Create: %v", err)
	}
	in, err := layer.Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer layer.Close(in)
	d := Open(layer, in)

	longName := make([]byte, NameMax+1)
	for i := range longName {
		longName[i] = 'x'
	}
	if err := d.Add(string(longName), 50); err != fserrors.ErrInvalidPath {
		t.Fatalf("Add(too-long name): got %v, want ErrInvalidPath", err)
	}
}

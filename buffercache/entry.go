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

package buffercache

import (
	"fmt"
	"sync"

	"github.com/jacobsa/syncutil"

	"github.com/jacobsa/diskfs/blockdev"
)

// entry is one in-memory slot for a sector.
//
// Readers and in-place writers are the "shared" class; the evictor that
// rebinds the entry to a new sector is the lone "exclusive" class. At
// most one exclusive holder may be active, any number of shared holders
// may be active, and never both at once -- see checkInvariants.
type entry struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	bound    bool // false until first miss-fill, and again after FlushAll unbinds the entry.
	sectorID blockdev.SectorID
	data     [blockdev.SectorSize]byte
	dirty    bool

	// Reader/writer accounting. GUARDED_BY(mu)
	shareActive   int
	shareWait     int
	excludeActive int
	excludeWait   int

	// shareCond wakes shared waiters once exclude_wait+exclude_active
	// drops to zero. excludeCond wakes a queued evictor once the current
	// exclusive holder finishes, or wakes an evictor's own wait for
	// shareActive+excludeActive to drain. Both share entry.mu as their
	// Locker, so Wait releases and reacquires mu as usual.
	shareCond   *sync.Cond
	excludeCond *sync.Cond
}

func newEntry() *entry {
	e := &entry{}
	e.mu = syncutil.NewInvariantMutex(e.checkInvariants)
	e.shareCond = sync.NewCond(&e.mu)
	e.excludeCond = sync.NewCond(&e.mu)
	return e
}

// LOCKS_REQUIRED(e.mu)
func (e *entry) checkInvariants() {
	if e.shareActive < 0 || e.shareWait < 0 || e.excludeActive < 0 || e.excludeWait < 0 {
		panic(fmt.Sprintf("negative counter: %+v", e))
	}
	if e.excludeActive > 1 {
		panic(fmt.Sprintf("more than one exclusive holder: %+v", e))
	}
	if e.excludeActive > 0 && e.shareActive > 0 {
		panic(fmt.Sprintf("shared and exclusive both active: %+v", e))
	}
}

// acquireShared blocks until no exclusive activity is pending or active,
// then counts this goroutine as a shared holder.
//
// LOCKS_EXCLUDED(e.mu)
func (e *entry) acquireShared() {
	e.mu.Lock()
	for e.excludeWait+e.excludeActive > 0 {
		e.shareWait++
		e.shareCond.Wait()
		e.shareWait--
	}
	e.shareActive++
	e.mu.Unlock()
}

// releaseShared undoes acquireShared, waking a queued evictor if this was
// the last shared holder.
//
// LOCKS_EXCLUDED(e.mu)
func (e *entry) releaseShared() {
	e.mu.Lock()
	e.shareActive--
	if e.shareActive == 0 && e.excludeWait > 0 {
		e.excludeCond.Signal()
	}
	e.mu.Unlock()
}

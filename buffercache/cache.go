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

// Package buffercache implements the write-back sector buffer cache. It
// is the only thing in this module that talks to a blockdev.BlockDevice.
package buffercache

import (
	"fmt"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/jacobsa/diskfs/blockdev"
	"github.com/jacobsa/diskfs/fserrors"
)

// MaxEntries is the default bound on cache size.
const MaxEntries = 64

// Cache is a bounded, write-back sector cache with LRU eviction in front
// of a blockdev.BlockDevice. The zero value is not usable; call New.
type Cache struct {
	dev   blockdev.BlockDevice
	clock timeutil.Clock
	cap   int

	// lruMu guards every field below: list membership, the sector index,
	// and entry allocation. It is never held across device I/O except
	// during FlushAll, the one place a shutdown is allowed to hold the
	// list lock across flush writes.
	lruMu syncutil.InvariantMutex

	entries  []*entry // GUARDED_BY(lruMu); len == cap; nil until first use
	bySector map[blockdev.SectorID]int
	list     *lruList
}

// New creates a cache of at most capacity entries over dev.
func New(dev blockdev.BlockDevice, capacity int, clock timeutil.Clock) *Cache {
	if capacity <= 0 {
		capacity = MaxEntries
	}

	c := &Cache{
		dev:      dev,
		clock:    clock,
		cap:      capacity,
		entries:  make([]*entry, capacity),
		bySector: make(map[blockdev.SectorID]int, capacity),
		list:     newLRUList(capacity),
	}
	c.lruMu = syncutil.NewInvariantMutex(c.checkInvariants)
	return c
}

// LOCKS_REQUIRED(c.lruMu)
func (c *Cache) checkInvariants() {
	if len(c.bySector) > c.cap {
		panic(fmt.Sprintf("too many cache entries: %d > %d", len(c.bySector), c.cap))
	}
	for id, slot := range c.bySector {
		e := c.entries[slot]
		if e == nil || !e.bound || e.sectorID != id {
			panic(fmt.Sprintf("bySector[%v]=%d inconsistent with entry state", id, slot))
		}
	}
}

// Read fetches the current contents of id into out, as observed under
// shared access.
func (c *Cache) Read(id blockdev.SectorID, out *[blockdev.SectorSize]byte) error {
	for {
		e, err := c.resolve(id)
		if err != nil {
			return err
		}

		// The shared hold keeps eviction out; the brief e.mu hold around
		// the copy itself serializes it against other shared holders
		// mutating the same array. No device I/O happens under either.
		e.acquireShared()
		e.mu.Lock()
		stale := !e.bound || e.sectorID != id
		if !stale {
			*out = e.data
		}
		e.mu.Unlock()
		e.releaseShared()

		if stale {
			continue
		}

		c.touch(e, id)
		return nil
	}
}

// Write atomically replaces id's contents with in and marks the entry
// dirty; durability is deferred to eviction or FlushAll.
func (c *Cache) Write(id blockdev.SectorID, in *[blockdev.SectorSize]byte) error {
	for {
		e, err := c.resolve(id)
		if err != nil {
			return err
		}

		e.acquireShared()
		e.mu.Lock()
		stale := !e.bound || e.sectorID != id
		if !stale {
			e.data = *in
			e.dirty = true
		}
		e.mu.Unlock()
		e.releaseShared()

		if stale {
			continue
		}

		c.touch(e, id)
		return nil
	}
}

// touch moves id's entry to the front of the LRU list. Called after a
// completed read/write, outside of the entry's own lock.
func (c *Cache) touch(e *entry, id blockdev.SectorID) {
	c.lruMu.Lock()
	if slot, ok := c.bySector[id]; ok && c.entries[slot] == e {
		c.list.touch(slot)
	}
	c.lruMu.Unlock()
}

// resolve returns the entry currently (or about to be) bound to id,
// fetching from the device and evicting if necessary. The returned entry
// may already have been rebound to a different sector by the time the
// caller examines it under its own lock; callers must revalidate.
func (c *Cache) resolve(id blockdev.SectorID) (*entry, error) {
	if uint64(id) >= c.dev.SectorCount() {
		return nil, fserrors.ErrIO
	}

	c.lruMu.Lock()
	if slot, ok := c.bySector[id]; ok {
		c.list.touch(slot)
		e := c.entries[slot]
		c.lruMu.Unlock()
		return e, nil
	}
	c.lruMu.Unlock()

	var buf [blockdev.SectorSize]byte
	if err := c.dev.ReadSector(id, &buf); err != nil {
		return nil, err
	}

	return c.installMiss(id, &buf)
}

// installMiss binds a freshly read sector to a cache entry, either a new
// one (if below capacity) or a victim selected by eviction.
func (c *Cache) installMiss(id blockdev.SectorID, buf *[blockdev.SectorSize]byte) (*entry, error) {
	c.lruMu.Lock()

	// Second pass: someone may have inserted this sector while we were
	// reading from the device. Use the existing entry and discard our
	// freshly read copy.
	if slot, ok := c.bySector[id]; ok {
		c.list.touch(slot)
		e := c.entries[slot]
		c.lruMu.Unlock()
		return e, nil
	}

	if slot, ok := c.nilSlotLocked(); ok {
		e := newEntry()
		e.bound = true
		e.sectorID = id
		e.data = *buf
		c.entries[slot] = e
		c.bySector[id] = slot
		c.list.pushFront(slot)
		c.lruMu.Unlock()
		return e, nil
	}

	// Every slot has been constructed; rebind one via the eviction
	// protocol. Entries left unbound by FlushAll are ordinary victims
	// with nothing to flush, sitting untouched near the tail.
	victim, slot := c.selectVictimLocked()
	c.lruMu.Unlock()

	return c.rebind(victim, slot, id, buf)
}

// nilSlotLocked returns the index of a slot whose entry has never been
// constructed, if any remain.
//
// LOCKS_REQUIRED(c.lruMu)
func (c *Cache) nilSlotLocked() (int, bool) {
	for i, e := range c.entries {
		if e == nil {
			return i, true
		}
	}
	return 0, false
}

// selectVictimLocked walks the LRU list from least to most recently used,
// picking the first entry with no exclusion already pending, falling
// back to the tail unconditionally if none qualifies. It marks the
// chosen entry with an extra excludeWait before releasing c.lruMu, so
// that newcomers queue behind the eviction.
//
// LOCKS_REQUIRED(c.lruMu)
func (c *Cache) selectVictimLocked() (*entry, int) {
	chosen := c.list.tail
	c.list.walkFromTail(func(slot int) bool {
		e := c.entries[slot]
		e.mu.Lock()
		idle := e.excludeActive+e.excludeWait == 0
		e.mu.Unlock()
		if idle {
			chosen = slot
			return true
		}
		return false
	})

	victim := c.entries[chosen]
	victim.mu.Lock()
	victim.excludeWait++
	victim.mu.Unlock()

	return victim, chosen
}

// rebind waits for the chosen victim to become idle, flushes it if dirty,
// and installs the new sector's contents: the exclusive case of the
// per-entry shared/exclusive protocol.
func (c *Cache) rebind(victim *entry, slot int, id blockdev.SectorID, buf *[blockdev.SectorSize]byte) (*entry, error) {
	victim.mu.Lock()
	for victim.shareActive+victim.excludeActive > 0 {
		victim.excludeCond.Wait()
	}
	victim.excludeWait--
	victim.excludeActive++
	oldID := victim.sectorID
	wasBound := victim.bound
	wasDirty := victim.dirty
	oldData := victim.data
	victim.mu.Unlock()

	var ioErr error
	if wasBound && wasDirty {
		ioErr = c.dev.WriteSector(oldID, &oldData)
	}

	victim.mu.Lock()
	victim.sectorID = id
	victim.bound = true
	victim.data = *buf
	victim.dirty = false
	victim.mu.Unlock()

	c.lruMu.Lock()
	// Another eviction may have rebound oldID to a different slot in the
	// meantime; only drop the mapping if it is still ours.
	if cur, ok := c.bySector[oldID]; wasBound && ok && cur == slot {
		delete(c.bySector, oldID)
	}
	c.bySector[id] = slot
	c.list.touch(slot)
	c.lruMu.Unlock()

	victim.mu.Lock()
	victim.excludeActive--
	if victim.excludeWait > 0 {
		victim.excludeCond.Signal()
	} else {
		victim.shareCond.Broadcast()
	}
	// No counter is force-reset here: every increment is owned by the
	// goroutine that made it and undone by that goroutine itself. A
	// blocked acquireShared decrements its own shareWait when it wakes
	// (entry.go), and a queued evictor decrements its own excludeWait the
	// moment it exits its wait loop above. Zeroing either from under a
	// still-parked waiter would make that decrement go negative and trip
	// checkInvariants.
	victim.mu.Unlock()

	return victim, ioErr
}

// FlushAll writes every dirty entry back to the device, then clears its
// contents and unbinds its sector id. Used at shutdown and by explicit
// cache-reset (diskfs's BufferClear). It waits for each entry's
// outstanding exclusive/shared activity to drain before touching it, and
// holds the cache-wide lock for its whole duration: it is meant to run
// only when the caller already knows the system is otherwise quiescent.
func (c *Cache) FlushAll() error {
	c.lruMu.Lock()
	defer c.lruMu.Unlock()

	var firstErr error
	for _, e := range c.entries {
		if e == nil {
			continue
		}

		e.mu.Lock()
		for e.excludeWait+e.excludeActive > 0 {
			e.shareWait++
			e.shareCond.Wait()
			e.shareWait--
		}
		e.shareActive++
		sectorID, bound, dirty, data := e.sectorID, e.bound, e.dirty, e.data
		e.mu.Unlock()

		if bound && dirty {
			if err := c.dev.WriteSector(sectorID, &data); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		e.mu.Lock()
		if bound {
			e.data = [blockdev.SectorSize]byte{}
			e.dirty = false
			e.bound = false
			delete(c.bySector, sectorID)
		}
		e.shareActive--
		if e.shareActive == 0 && e.excludeWait > 0 {
			e.excludeCond.Signal()
		}
		e.mu.Unlock()
	}

	return firstErr
}

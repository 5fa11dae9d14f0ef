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

// lruList is an explicit, indexed doubly linked list over a fixed arena of
// slots, most-recently-used at the front. An intrusive list embedded in
// each cache entry would sit right next to the per-entry lock and invite
// aliasing mistakes; this keeps list bookkeeping (next/prev/head/tail)
// entirely separate from entry state, all of it guarded by the cache's
// own lock rather than any per-entry lock.
type lruList struct {
	next, prev []int
	head, tail int
	count      int
}

const listEnd = -1

func newLRUList(capacity int) *lruList {
	l := &lruList{
		next: make([]int, capacity),
		prev: make([]int, capacity),
		head: listEnd,
		tail: listEnd,
	}
	for i := range l.next {
		l.next[i] = listEnd
		l.prev[i] = listEnd
	}
	return l
}

// pushFront inserts a slot not currently in the list at the head.
func (l *lruList) pushFront(slot int) {
	l.next[slot] = l.head
	l.prev[slot] = listEnd
	if l.head != listEnd {
		l.prev[l.head] = slot
	}
	l.head = slot
	if l.tail == listEnd {
		l.tail = slot
	}
	l.count++
}

// remove detaches a slot from the list. It is a no-op's inverse: callers
// must only call this for a slot currently in the list.
func (l *lruList) remove(slot int) {
	p, n := l.prev[slot], l.next[slot]
	if p != listEnd {
		l.next[p] = n
	} else {
		l.head = n
	}
	if n != listEnd {
		l.prev[n] = p
	} else {
		l.tail = p
	}
	l.next[slot], l.prev[slot] = listEnd, listEnd
	l.count--
}

// touch moves slot to the front. A no-op when it is already the only
// entry.
func (l *lruList) touch(slot int) {
	if l.count <= 1 || l.head == slot {
		return
	}
	l.remove(slot)
	l.pushFront(slot)
}

// walkFromTail calls visit(slot) for each occupied slot from the least to
// the most recently used, stopping early if visit returns true.
func (l *lruList) walkFromTail(visit func(slot int) (stop bool)) {
	for cur := l.tail; cur != listEnd; cur = l.prev[cur] {
		if visit(cur) {
			return
		}
	}
}

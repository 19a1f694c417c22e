package sched

import (
	"container/heap"
	"time"
)

// This file provides the key-indexed deadline queue used by Restarter. It
// combines a binary min-heap ordered by due time with a hash map for direct
// key access:
//
//   - O(log n) for Push, Pop and due-time updates
//   - O(1) for key lookups and existence checks
//   - O(log n) for key-based removal
//
// A zero due time sorts before every real deadline and therefore means "due
// immediately".
//
// The queue is not thread-safe; callers synchronize externally.

// deadlineItem is a single entry with a key and its due time.
type deadlineItem[K comparable] struct {
	key   K
	due   time.Time
	index int // index in the heap slice, maintained by the heap package
}

// deadlineQueue implements heap.Interface over deadlineItems while keeping a
// map for key-based access.
type deadlineQueue[K comparable] struct {
	items    []*deadlineItem[K]
	itemsMap map[K]*deadlineItem[K]
}

func newDeadlineQueue[K comparable]() *deadlineQueue[K] {
	return &deadlineQueue[K]{
		items:    make([]*deadlineItem[K], 0),
		itemsMap: make(map[K]*deadlineItem[K]),
	}
}

// Len returns the number of queued items (part of heap.Interface)
func (q *deadlineQueue[K]) Len() int { return len(q.items) }

// Less orders items by due time, soonest first (part of heap.Interface)
func (q *deadlineQueue[K]) Less(i, j int) bool {
	return q.items[i].due.Before(q.items[j].due)
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (q *deadlineQueue[K]) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (q *deadlineQueue[K]) Push(x interface{}) {
	n := len(q.items)
	item := x.(*deadlineItem[K])
	item.index = n
	q.items = append(q.items, item)
	q.itemsMap[item.key] = item
}

// Pop removes and returns the soonest item (part of heap.Interface)
func (q *deadlineQueue[K]) Pop() interface{} {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	q.items = old[:n-1]
	delete(q.itemsMap, item.key)
	return item
}

// Set inserts the key with the given due time, or updates the due time of an
// existing entry and restores the heap order.
func (q *deadlineQueue[K]) Set(key K, due time.Time) {
	if item, exists := q.itemsMap[key]; exists {
		item.due = due
		heap.Fix(q, item.index)
		return
	}
	heap.Push(q, &deadlineItem[K]{key: key, due: due})
}

// Remove deletes the entry for the key. It reports whether the key existed.
func (q *deadlineQueue[K]) Remove(key K) bool {
	item, exists := q.itemsMap[key]
	if !exists {
		return false
	}
	heap.Remove(q, item.index)
	return true
}

// Peek returns the soonest key and its due time without removing the entry.
func (q *deadlineQueue[K]) Peek() (key K, due time.Time, ok bool) {
	if len(q.items) == 0 {
		var zero K
		return zero, time.Time{}, false
	}
	return q.items[0].key, q.items[0].due, true
}

// Contains checks if a key is queued.
func (q *deadlineQueue[K]) Contains(key K) bool {
	_, exists := q.itemsMap[key]
	return exists
}

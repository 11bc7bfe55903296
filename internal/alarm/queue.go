package alarm

import (
	"container/heap"
	"sort"
)

// eventQueue orders pending events by fire time. Equal fire times fall back
// to insertion order, so simultaneous alarms pop deterministically.
//
// The queue itself is not safe for concurrent use; the Scheduler serializes
// access under its mutex.
type eventQueue struct {
	h   itemHeap
	seq uint64
}

type queueItem struct {
	ev  Event
	seq uint64
}

func (q *eventQueue) Len() int { return len(q.h) }

func (q *eventQueue) Insert(ev Event) {
	q.seq++
	heap.Push(&q.h, queueItem{ev: ev, seq: q.seq})
}

// PeekEarliest returns the event with the smallest fire time without
// removing it.
func (q *eventQueue) PeekEarliest() (Event, bool) {
	if len(q.h) == 0 {
		return Event{}, false
	}
	return q.h[0].ev, true
}

func (q *eventQueue) PopEarliest() (Event, error) {
	if len(q.h) == 0 {
		return Event{}, ErrEmptyQueue
	}
	it := heap.Pop(&q.h).(queueItem)
	return it.ev, nil
}

// Snapshot returns all pending events ascending by fire time. The live heap
// is not mutated.
func (q *eventQueue) Snapshot() []Event {
	items := make([]queueItem, len(q.h))
	copy(items, q.h)
	sort.Slice(items, func(i, j int) bool { return items[i].less(items[j]) })
	out := make([]Event, len(items))
	for i, it := range items {
		out[i] = it.ev
	}
	return out
}

func (a queueItem) less(b queueItem) bool {
	if !a.ev.FireAt.Equal(b.ev.FireAt) {
		return a.ev.FireAt.Before(b.ev.FireAt)
	}
	return a.seq < b.seq
}

type itemHeap []queueItem

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

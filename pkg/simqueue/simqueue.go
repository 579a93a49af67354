// Package simqueue implements the harness's central discrete-event
// scheduler: a min-heap ordered by (scheduled time, insertion sequence).
// Ties at equal time are broken by insertion order, which is part of the
// reproducibility contract — the same sequence of Enqueue calls must
// dispatch in the same order on every platform.
//
// Shaped after the cluster event queue pattern found in the wider
// retrieval pack's simulation examples: a container/heap min-heap keyed
// by (time, sequence) rather than an unordered priority value.
package simqueue

import (
	"container/heap"

	"github.com/jihwankim/viewharness/pkg/simclock"
)

// EventKind is the closed set of event kinds the scheduler dispatches.
type EventKind int

const (
	KindClientRequest EventKind = iota
	KindMessageDelivery
	KindTimeout
	KindPeriodicTick
	KindCrash
	KindRecover
	KindStorageCompletion
	KindFaultActivation
	KindInvariantTrigger
)

// Event is a single scheduled occurrence. Sequence is assigned by the
// queue at Enqueue time and is never set by callers.
type Event struct {
	Time     simclock.Time
	Sequence uint64
	Kind     EventKind
	Payload  any
}

// Queue is a priority queue of events ordered by (Time, Sequence).
type Queue struct {
	heap   eventHeap
	nextSeq uint64
}

// New constructs an empty queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(&q.heap)
	return q
}

// Enqueue schedules an event at an absolute time and returns the sequence
// number assigned to it, which is useful for cancellation bookkeeping
// (e.g. a stale-timeout generation check).
func (q *Queue) Enqueue(t simclock.Time, kind EventKind, payload any) uint64 {
	seq := q.nextSeq
	q.nextSeq++
	heap.Push(&q.heap, Event{Time: t, Sequence: seq, Kind: kind, Payload: payload})
	return seq
}

// EnqueueAfter schedules an event delay nanoseconds after now.
func (q *Queue) EnqueueAfter(now simclock.Time, delay simclock.Time, kind EventKind, payload any) uint64 {
	return q.Enqueue(now+delay, kind, payload)
}

// Len reports the number of pending events.
func (q *Queue) Len() int {
	return q.heap.Len()
}

// PeekTime returns the scheduled time of the next event and whether one
// exists.
func (q *Queue) PeekTime() (simclock.Time, bool) {
	if q.heap.Len() == 0 {
		return 0, false
	}
	return q.heap[0].Time, true
}

// Pop removes and returns the earliest event, preferring the lowest time
// and, among equal times, the lowest sequence number.
func (q *Queue) Pop() (Event, bool) {
	if q.heap.Len() == 0 {
		return Event{}, false
	}
	return heap.Pop(&q.heap).(Event), true
}

// Drain removes and returns every remaining event in dispatch order, for
// orderly shutdown or for feeding a determinism check.
func (q *Queue) Drain() []Event {
	out := make([]Event, 0, q.heap.Len())
	for q.heap.Len() > 0 {
		out = append(out, heap.Pop(&q.heap).(Event))
	}
	return out
}

type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Sequence < h[j].Sequence
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

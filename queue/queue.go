// Package queue buffers commands composed while the engine is unreachable.
package queue

import (
	"slices"
	"time"
)

// DefaultCapacity is the number of messages kept when no capacity is given.
const DefaultCapacity = 100

// Priority orders queued messages, High first.
type Priority int

const (
	High Priority = iota
	Normal
	Low
)

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// ParsePriority maps a priority name to its value.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "high":
		return High, true
	case "normal", "":
		return Normal, true
	case "low":
		return Low, true
	default:
		return Normal, false
	}
}

// Message is a command waiting to be sent.
type Message struct {
	Command    any
	Priority   Priority
	EnqueuedAt time.Time
	Sequence   uint64
}

// Queue keeps messages ordered by priority, then by arrival.
// It is not safe for concurrent use.
type Queue struct {
	capacity int
	sequence uint64
	messages []Message
}

// New returns a queue bounded to capacity messages. A non-positive capacity selects
// DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Queue{capacity: capacity}
}

// Enqueue appends a message and returns the one evicted to make room, if any.
// Eviction removes the oldest message of the lowest non-empty priority class.
// A priority outside High..Low is clamped to the nearest class.
func (q *Queue) Enqueue(cmd any, p Priority, now time.Time) (Message, bool) {
	p = min(max(p, High), Low)

	var (
		evicted    Message
		hasEvicted bool
	)
	if len(q.messages) >= q.capacity {
		evicted, hasEvicted = q.evict()
	}

	q.sequence++
	q.messages = append(q.messages, Message{
		Command:    cmd,
		Priority:   p,
		EnqueuedAt: now,
		Sequence:   q.sequence,
	})

	slices.SortStableFunc(q.messages, func(a, b Message) int {
		if a.Priority != b.Priority {
			return int(a.Priority - b.Priority)
		}
		if a.Sequence < b.Sequence {
			return -1
		}
		if a.Sequence > b.Sequence {
			return 1
		}
		return 0
	})

	return evicted, hasEvicted
}

// Dequeue removes and returns the head of the queue.
func (q *Queue) Dequeue() (Message, bool) {
	if len(q.messages) == 0 {
		return Message{}, false
	}

	m := q.messages[0]
	q.messages[0] = Message{}
	q.messages = q.messages[1:]

	return m, true
}

// Drain hands every message to handler in queue order until the queue is empty.
// Messages enqueued by handler are drained as well.
func (q *Queue) Drain(handler func(Message)) {
	for {
		m, ok := q.Dequeue()
		if !ok {
			return
		}
		handler(m)
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.messages)
}

// Capacity returns the maximum number of queued messages.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Clear drops every queued message.
func (q *Queue) Clear() {
	q.messages = nil
}

func (q *Queue) evict() (Message, bool) {
	for _, p := range []Priority{Low, Normal, High} {
		idx := -1
		for i, m := range q.messages {
			if m.Priority == p && (idx < 0 || m.Sequence < q.messages[idx].Sequence) {
				idx = i
			}
		}
		if idx >= 0 {
			m := q.messages[idx]
			q.messages = slices.Delete(q.messages, idx, idx+1)
			return m, true
		}
	}

	return Message{}, false
}

// Package pending correlates in-flight commands with their callers.
//
// The wire protocol carries no request id, so responses are matched by command name
// and, for a given name, strictly in the order requests were sent. Two concurrent
// requests for the same command receive responses in send order even if the engine
// computed them in another order.
package pending

import (
	"encoding/json"
	"slices"
	"time"
)

// Request is a command awaiting its response.
type Request struct {
	Command string
	SentAt  time.Time

	// Resolve and Reject complete the caller, exactly one of them is called once
	Resolve func(value json.RawMessage)
	Reject  func(err error)

	// StopTimeout cancels the timeout attached to the request
	StopTimeout func()
}

// Store keeps per-command FIFO lists of requests. It is not safe for concurrent use.
type Store struct {
	requests map[string][]*Request
	size     int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{requests: make(map[string][]*Request)}
}

// Add appends a request to the list of its command.
func (s *Store) Add(command string, r *Request) {
	s.requests[command] = append(s.requests[command], r)
	s.size++
}

// Shift removes and returns the oldest request for command.
func (s *Store) Shift(command string) (*Request, bool) {
	list := s.requests[command]
	if len(list) == 0 {
		return nil, false
	}

	r := list[0]
	list[0] = nil
	s.set(command, list[1:])
	s.size--

	return r, true
}

// Remove deletes a specific request and reports whether it was still present.
func (s *Store) Remove(command string, r *Request) bool {
	list := s.requests[command]
	idx := slices.Index(list, r)
	if idx < 0 {
		return false
	}

	s.set(command, slices.Delete(list, idx, idx+1))
	s.size--

	return true
}

// Clear empties the store, handing every request to onEach in per-command FIFO order.
func (s *Store) Clear(onEach func(*Request)) {
	requests := s.requests
	s.requests = make(map[string][]*Request)
	s.size = 0

	if onEach == nil {
		return
	}
	for _, list := range requests {
		for _, r := range list {
			onEach(r)
		}
	}
}

// Len returns the number of pending requests.
func (s *Store) Len() int {
	return s.size
}

// Commands returns the number of command names with pending requests.
func (s *Store) Commands() int {
	return len(s.requests)
}

func (s *Store) set(command string, list []*Request) {
	if len(list) == 0 {
		delete(s.requests, command)
		return
	}
	s.requests[command] = list
}

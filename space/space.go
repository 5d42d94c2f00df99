// Package space is the in-memory tuple space the server executes requests against.
//
// A Space keeps tuples in insertion order. Reads pick the oldest matching tuple. Blocking
// reads park on a notification channel that Put closes and replaces, so every waiter
// re-scans after each insertion.
package space

import (
	"context"
	"slices"
	"sync"

	"tuplespace/tuple"
)

type Space struct {
	name string

	mu      sync.Mutex
	tuples  []tuple.Tuple
	changed chan struct{}
}

func New(name string) *Space {
	return &Space{name: name, changed: make(chan struct{})}
}

func (s *Space) Name() string { return s.name }

// Put adds t and wakes every blocked reader.
func (s *Space) Put(t tuple.Tuple) {
	s.mu.Lock()
	s.tuples = append(s.tuples, t)
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// Get removes and returns the oldest tuple matching tmpl, waiting for one to arrive.
// It returns ctx.Err() if the context ends first.
func (s *Space) Get(ctx context.Context, tmpl tuple.Template) (tuple.Tuple, error) {
	return s.wait(ctx, tmpl, true)
}

// GetP is the non-blocking Get.
func (s *Space) GetP(tmpl tuple.Template) (tuple.Tuple, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeLocked(tmpl, true)
}

// GetAll removes and returns every matching tuple. The result is never nil.
func (s *Space) GetAll(tmpl tuple.Template) []tuple.Tuple {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]tuple.Tuple, 0)
	kept := s.tuples[:0]
	for _, t := range s.tuples {
		if tmpl.Match(t) {
			matched = append(matched, t)
		} else {
			kept = append(kept, t)
		}
	}
	clear(s.tuples[len(kept):])
	s.tuples = kept
	return matched
}

// Query returns the oldest tuple matching tmpl without removing it, waiting for one to
// arrive.
func (s *Space) Query(ctx context.Context, tmpl tuple.Template) (tuple.Tuple, error) {
	return s.wait(ctx, tmpl, false)
}

// QueryP is the non-blocking Query.
func (s *Space) QueryP(tmpl tuple.Template) (tuple.Tuple, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeLocked(tmpl, false)
}

// QueryAll returns every matching tuple. The result is never nil.
func (s *Space) QueryAll(tmpl tuple.Template) []tuple.Tuple {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]tuple.Tuple, 0)
	for _, t := range s.tuples {
		if tmpl.Match(t) {
			matched = append(matched, t)
		}
	}
	return matched
}

func (s *Space) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tuples)
}

func (s *Space) wait(ctx context.Context, tmpl tuple.Template, remove bool) (tuple.Tuple, error) {
	for {
		// A cancelled reader must not take a tuple that arrived with the cancellation.
		if err := ctx.Err(); err != nil {
			return tuple.Tuple{}, err
		}
		s.mu.Lock()
		if t, ok := s.takeLocked(tmpl, remove); ok {
			s.mu.Unlock()
			return t, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return tuple.Tuple{}, ctx.Err()
		}
	}
}

func (s *Space) takeLocked(tmpl tuple.Template, remove bool) (tuple.Tuple, bool) {
	for i, t := range s.tuples {
		if !tmpl.Match(t) {
			continue
		}
		if remove {
			s.tuples = slices.Delete(s.tuples, i, i+1)
		}
		return t, true
	}
	return tuple.Tuple{}, false
}

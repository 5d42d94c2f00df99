package space

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrSpaceExists = errors.New("space: space already exists")

// Repository maps space names to Spaces. Requests address a space by its name in the
// ClientMessage target field.
type Repository struct {
	mu     sync.RWMutex
	spaces map[string]*Space
}

func NewRepository(names ...string) *Repository {
	r := &Repository{spaces: make(map[string]*Space, len(names))}
	for _, name := range names {
		r.spaces[name] = New(name)
	}
	return r
}

// Add creates an empty space named name.
func (r *Repository) Add(name string) (*Space, error) {
	if name == "" {
		return nil, errors.New("space: empty space name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.spaces[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSpaceExists, name)
	}
	s := New(name)
	r.spaces[name] = s
	return s, nil
}

func (r *Repository) Space(name string) (*Space, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.spaces[name]
	return s, ok
}

// Names returns the space names in sorted order.
func (r *Repository) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.spaces))
	for name := range r.spaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sizes reports the number of stored tuples per space.
func (r *Repository) Sizes() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sizes := make(map[string]int, len(r.spaces))
	for name, s := range r.spaces {
		sizes[name] = s.Size()
	}
	return sizes
}

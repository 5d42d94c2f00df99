package registry

import (
	"context"
	"sync"
)

// MemoryRegistry is a process-local Registry for tests and single-node setups. TTLs are
// ignored.
type MemoryRegistry struct {
	mu        sync.Mutex
	instances map[string][]Instance
	watchers  map[string][]chan []Instance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		instances: make(map[string][]Instance),
		watchers:  make(map[string][]chan []Instance),
	}
}

func (m *MemoryRegistry) Register(_ context.Context, space string, instance Instance, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := m.instances[space]
	replaced := false
	for i, inst := range insts {
		if inst.Addr == instance.Addr {
			insts[i] = instance
			replaced = true
			break
		}
	}
	if !replaced {
		insts = append(insts, instance)
	}
	m.instances[space] = insts
	m.notifyLocked(space)
	return nil
}

func (m *MemoryRegistry) Deregister(_ context.Context, space string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := m.instances[space]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[space] = append(insts[:i:i], insts[i+1:]...)
			m.notifyLocked(space)
			break
		}
	}
	return nil
}

func (m *MemoryRegistry) Discover(_ context.Context, space string) ([]Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(space), nil
}

func (m *MemoryRegistry) Watch(ctx context.Context, space string) <-chan []Instance {
	ch := make(chan []Instance, 1)
	m.mu.Lock()
	m.watchers[space] = append(m.watchers[space], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[space]
		for i, w := range ws {
			if w == ch {
				m.watchers[space] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (m *MemoryRegistry) snapshotLocked(space string) []Instance {
	out := make([]Instance, len(m.instances[space]))
	copy(out, m.instances[space])
	return out
}

// notifyLocked hands every watcher the latest list, replacing one it has not read yet.
func (m *MemoryRegistry) notifyLocked(space string) {
	for _, ch := range m.watchers[space] {
		select {
		case <-ch:
		default:
		}
		ch <- m.snapshotLocked(space)
	}
}

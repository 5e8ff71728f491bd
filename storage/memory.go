package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-blog-session/internal/errors"
)

var (
	_ Storage = (*Memory)(nil)
	_ Watcher = (*Memory)(nil)
)

// memoryBackend is the data shared by every Memory view opened on it.
type memoryBackend struct {
	data     map[string]string
	watchers map[int]memoryWatcher
	nextID   int
	lock     sync.RWMutex
}

type memoryWatcher struct {
	source string
	fn     func(Event)
}

// Memory is an in-process Storage. Views created with Tab share data and see each
// other's writes as events, which makes it usable to simulate several client instances.
type Memory struct {
	backend *memoryBackend
	source  string
}

func NewMemory() *Memory {
	return &Memory{
		backend: &memoryBackend{
			data:     make(map[string]string),
			watchers: make(map[int]memoryWatcher),
		},
		source: uuid.New().String(),
	}
}

// Tab opens another view on the same data with its own identity.
func (m *Memory) Tab() *Memory {
	return &Memory{backend: m.backend, source: uuid.New().String()}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.backend.lock.RLock()
	defer m.backend.lock.RUnlock()

	value, ok := m.backend.data[key]
	if !ok {
		return "", errors.ErrNotFound
	}
	return value, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.backend.lock.Lock()
	m.backend.data[key] = value
	watchers := m.otherWatchers()
	m.backend.lock.Unlock()

	dispatch(watchers, Event{Source: m.source, Key: key, Value: value})
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.backend.lock.Lock()
	removed := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := m.backend.data[key]; ok {
			delete(m.backend.data, key)
			removed = append(removed, key)
		}
	}
	watchers := m.otherWatchers()
	m.backend.lock.Unlock()

	for _, key := range removed {
		dispatch(watchers, Event{Source: m.source, Key: key})
	}
	return nil
}

func (m *Memory) Watch(_ context.Context, fn func(Event)) (func(), error) {
	m.backend.lock.Lock()
	defer m.backend.lock.Unlock()

	id := m.backend.nextID
	m.backend.nextID++
	m.backend.watchers[id] = memoryWatcher{source: m.source, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.backend.lock.Lock()
			delete(m.backend.watchers, id)
			m.backend.lock.Unlock()
		})
	}, nil
}

// otherWatchers must be called with the backend lock held.
func (m *Memory) otherWatchers() []memoryWatcher {
	watchers := make([]memoryWatcher, 0, len(m.backend.watchers))
	for id := 0; id < m.backend.nextID; id++ {
		w, ok := m.backend.watchers[id]
		if ok && w.source != m.source {
			watchers = append(watchers, w)
		}
	}
	return watchers
}

func dispatch(watchers []memoryWatcher, event Event) {
	for _, w := range watchers {
		w.fn(event)
	}
}

package storage

import (
	"context"
	"io"
	"sort"
	"sync"
)

// MemoryObject is an object held by a MemoryStore.
type MemoryObject struct {
	Data        []byte
	ContentType string
	Multipart   bool
}

// MemoryStore is an in-process ObjectStore. It records enough about the
// calls it receives for tests to assert on ordering and concurrency.
type MemoryStore struct {
	PageSize int
	// BeforePut, when set, runs before each upload is stored and can
	// inject failures or delay.
	BeforePut func(ctx context.Context, key string) error

	mu          sync.Mutex
	objects     map[string]MemoryObject
	inFlight    int
	maxInFlight int
	deletes     int
	puts        int
	log         []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{PageSize: DefaultPageSize, objects: map[string]MemoryObject{}}
}

func (m *MemoryStore) ListPage(ctx context.Context, cursor string) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, "list")

	keys := m.sortedKeys()
	size := m.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	start := sort.SearchStrings(keys, cursor)
	if start < len(keys) && keys[start] == cursor {
		start++
	}
	var page Page
	for _, k := range keys[start:] {
		page.Keys = append(page.Keys, k)
		if len(page.Keys) == size {
			page.Cursor = k
			break
		}
	}
	return page, nil
}

func (m *MemoryStore) DeleteObjects(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, "delete")
	m.deletes++
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

func (m *MemoryStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) error {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.log = append(m.log, "put")
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.BeforePut != nil {
		if err := m.BeforePut(ctx, key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.objects[key] = MemoryObject{Data: data, ContentType: opts.ContentType, Multipart: opts.Multipart}
	return nil
}

// Seed stores objects directly, bypassing the call log.
func (m *MemoryStore) Seed(objects map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range objects {
		m.objects[k] = MemoryObject{Data: []byte(v)}
	}
}

func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedKeys()
}

func (m *MemoryStore) Object(key string) (MemoryObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// MaxInFlight is the highest number of concurrent PutObject calls seen.
func (m *MemoryStore) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Deletes is the number of batch delete calls received.
func (m *MemoryStore) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

// Puts is the number of objects successfully stored.
func (m *MemoryStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Calls returns the sequence of operations received: list, delete, put.
func (m *MemoryStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.log...)
}

func (m *MemoryStore) sortedKeys() []string {
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

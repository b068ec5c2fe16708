package store

import (
	"context"
	"sync"
)

// Memory is an in-process BlobStore and RecordFieldStore. Records are kept in
// creation order so FindByField is deterministic. Setting Err makes every
// call fail with it.
type Memory struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	records map[string]map[string]string
	order   []string

	Err error
}

func NewMemory() *Memory {
	return &Memory{
		blobs:   map[string][]byte{},
		records: map[string]map[string]string{},
	}
}

func (m *Memory) GetBlob(_ context.Context, name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, false, m.Err
	}
	v, ok := m.blobs[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) SetBlob(_ context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.blobs[name] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) GetField(_ context.Context, recordID, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", false, m.Err
	}
	fields, ok := m.records[recordID]
	if !ok {
		return "", false, nil
	}
	v, ok := fields[field]
	return v, ok, nil
}

func (m *Memory) SetField(_ context.Context, recordID, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	fields, ok := m.records[recordID]
	if !ok {
		fields = map[string]string{}
		m.records[recordID] = fields
		m.order = append(m.order, recordID)
	}
	fields[field] = value
	return nil
}

func (m *Memory) ClearField(_ context.Context, recordID, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.records[recordID], field)
	return nil
}

func (m *Memory) FindByField(_ context.Context, field, value string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", false, m.Err
	}
	for _, id := range m.order {
		if v, ok := m.records[id][field]; ok && v == value {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (m *Memory) ScanField(_ context.Context, field string, fn func(recordID, value string) error) error {
	m.mu.Lock()
	if m.Err != nil {
		m.mu.Unlock()
		return m.Err
	}
	type pair struct{ id, value string }
	var pairs []pair
	for _, id := range m.order {
		if v, ok := m.records[id][field]; ok {
			pairs = append(pairs, pair{id, v})
		}
	}
	m.mu.Unlock()

	for _, p := range pairs {
		if err := fn(p.id, p.value); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

package keymap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BartekS5/cmigrate/pkg/store"
)

type entry struct {
	Source string `json:"s"`
	Dest   string `json:"d"`
}

// BlobMap keeps the whole correspondence set as one JSON document under a
// single store key. Loading is one read; every persist rewrites the whole
// document, so Deferred is the usual mode.
type BlobMap struct {
	store  store.BlobStore
	name   string
	prefix string
	tenant string
	mode   FlushMode

	entries     []entry
	index       map[string]int
	dirty       bool
	initialized bool
}

type BlobOption func(*BlobMap)

// WithPrefix prepends prefix to every source key.
func WithPrefix(prefix string) BlobOption {
	return func(m *BlobMap) { m.prefix = prefix }
}

// WithTenant stores the blob under a tenant scoped key.
func WithTenant(tenant string) BlobOption {
	return func(m *BlobMap) { m.tenant = tenant }
}

func NewBlobMap(s store.BlobStore, name string, mode FlushMode, opts ...BlobOption) *BlobMap {
	m := &BlobMap{store: s, name: name, mode: mode, index: map[string]int{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TenantKey is the store key for name under tenant. The empty tenant and
// tenant "1" are the main site and use name unchanged.
func TenantKey(tenant, name string) string {
	if tenant == "" || tenant == "1" {
		return name
	}
	return "tenant_" + tenant + "_" + name
}

func (m *BlobMap) Key() string {
	return TenantKey(m.tenant, m.name)
}

func (m *BlobMap) Mode() FlushMode { return m.mode }

func (m *BlobMap) Initialized() bool { return m.initialized }

func (m *BlobMap) Init(ctx context.Context) error {
	if m.initialized {
		return ErrAlreadyInitialized
	}
	raw, ok, err := m.store.GetBlob(ctx, m.Key())
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrStoreUnavailable, m.Key(), err)
	}
	if ok && len(raw) > 0 {
		var entries []entry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrStoreUnavailable, m.Key(), err)
		}
		for _, e := range entries {
			m.put(e.Source, e.Dest)
		}
	}
	m.initialized = true
	return nil
}

func (m *BlobMap) put(source, dest string) {
	if i, ok := m.index[source]; ok {
		m.entries[i].Dest = dest
		return
	}
	m.index[source] = len(m.entries)
	m.entries = append(m.entries, entry{Source: source, Dest: dest})
}

func (m *BlobMap) Save(ctx context.Context, sourceKey, destKey string) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.put(m.prefix+sourceKey, destKey)
	m.dirty = true
	if m.mode == Immediate {
		return m.Flush(ctx)
	}
	return nil
}

func (m *BlobMap) DestinationKey(_ context.Context, sourceKey string) (string, bool, error) {
	if !m.initialized {
		return "", false, ErrNotInitialized
	}
	i, ok := m.index[m.prefix+sourceKey]
	if !ok {
		return "", false, nil
	}
	return m.entries[i].Dest, true, nil
}

func (m *BlobMap) SourceKey(_ context.Context, destKey string) (string, bool, error) {
	if !m.initialized {
		return "", false, ErrNotInitialized
	}
	for _, e := range m.entries {
		if e.Dest == destKey {
			return strings.TrimPrefix(e.Source, m.prefix), true, nil
		}
	}
	return "", false, nil
}

func (m *BlobMap) CountDestinationKeys(_ context.Context, sourceKeys []string) (int, error) {
	if !m.initialized {
		return 0, ErrNotInitialized
	}
	n := 0
	for _, k := range sourceKeys {
		if _, ok := m.index[m.prefix+k]; ok {
			n++
		}
	}
	return n, nil
}

// Len is the number of correlations held.
func (m *BlobMap) Len() int { return len(m.entries) }

func (m *BlobMap) Flush(ctx context.Context) error {
	if !m.initialized || !m.dirty {
		return nil
	}
	raw, err := json.Marshal(m.entries)
	if err != nil {
		return err
	}
	if err := m.store.SetBlob(ctx, m.Key(), raw); err != nil {
		return fmt.Errorf("persist %s: %w", m.Key(), err)
	}
	m.dirty = false
	return nil
}

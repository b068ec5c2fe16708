package keymap

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BartekS5/cmigrate/pkg/store"
)

// DefaultIndexSize bounds the in-memory index of a FieldMap.
const DefaultIndexSize = 8192

// FieldMap stores each correlation twice: in a bounded in-memory index and in
// a field on the destination record itself. Lookups that miss the index
// query the record field directly, so a process that starts with an empty
// index still resolves keys written by earlier runs.
type FieldMap struct {
	store      store.RecordFieldStore
	field      string
	prefix     string
	mode       FlushMode
	preload    bool
	normalize  func(string) string
	indexSize  int
	forward    *lru.Cache[string, string]
	reverse    *lru.Cache[string, string]
	pending    map[string]string
	pendingSeq []entry
	// stale records still carry a correlation that a later Save replaced
	stale []string

	initialized bool
}

type FieldOption func(*FieldMap)

// WithFieldPrefix prepends prefix to every source key.
func WithFieldPrefix(prefix string) FieldOption {
	return func(m *FieldMap) { m.prefix = prefix }
}

// WithPreload fills the index at Init by scanning the store, when the store
// supports it.
func WithPreload() FieldOption {
	return func(m *FieldMap) { m.preload = true }
}

// WithIndexSize bounds the in-memory index.
func WithIndexSize(n int) FieldOption {
	return func(m *FieldMap) {
		if n > 0 {
			m.indexSize = n
		}
	}
}

// WithNormalizer rewrites source keys before prefixing.
func WithNormalizer(fn func(string) string) FieldOption {
	return func(m *FieldMap) { m.normalize = fn }
}

// NewFieldMap correlates through field on records of s.
func NewFieldMap(s store.RecordFieldStore, field string, mode FlushMode, opts ...FieldOption) *FieldMap {
	m := &FieldMap{
		store:     s,
		field:     field,
		mode:      mode,
		indexSize: DefaultIndexSize,
		pending:   map[string]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewURLFieldMap is a FieldMap whose source keys are URLs reduced to their
// path, so scheme, host and query differences still correlate.
func NewURLFieldMap(s store.RecordFieldStore, field string, mode FlushMode, opts ...FieldOption) *FieldMap {
	return NewFieldMap(s, field, mode, append(opts, WithNormalizer(URLPath))...)
}

// URLPath returns the path of raw when it parses as an absolute or rooted URL.
func URLPath(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Host == "" && !strings.HasPrefix(u.Path, "/")) {
		return raw
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return "/"
	}
	return p
}

func (m *FieldMap) Mode() FlushMode { return m.mode }

func (m *FieldMap) Initialized() bool { return m.initialized }

func (m *FieldMap) Init(ctx context.Context) error {
	if m.initialized {
		return ErrAlreadyInitialized
	}
	var err error
	if m.forward, err = lru.New[string, string](m.indexSize); err != nil {
		return err
	}
	if m.reverse, err = lru.New[string, string](m.indexSize); err != nil {
		return err
	}
	if p, ok := m.store.(store.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if scanner, ok := m.store.(store.FieldScanner); ok && m.preload {
		err := scanner.ScanField(ctx, m.field, func(recordID, value string) error {
			m.remember(value, recordID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: preload %s: %v", ErrStoreUnavailable, m.field, err)
		}
	}
	m.initialized = true
	return nil
}

func (m *FieldMap) key(sourceKey string) string {
	if m.normalize != nil {
		sourceKey = m.normalize(sourceKey)
	}
	return m.prefix + sourceKey
}

func (m *FieldMap) remember(storedKey, destKey string) {
	m.forward.Add(storedKey, destKey)
	m.reverse.Add(destKey, storedKey)
}

func (m *FieldMap) Save(ctx context.Context, sourceKey, destKey string) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	k := m.key(sourceKey)
	if _, ok := m.pending[k]; !ok {
		prev, ok, err := m.persisted(ctx, k)
		if err != nil {
			return fmt.Errorf("look up %s: %w", m.field, err)
		}
		if ok && prev != destKey {
			m.reverse.Remove(prev)
			if m.mode == Immediate {
				if err := m.store.ClearField(ctx, prev, m.field); err != nil {
					return fmt.Errorf("clear %s: %w", m.field, err)
				}
			} else {
				m.stale = append(m.stale, prev)
			}
		}
	}
	m.remember(k, destKey)
	if m.mode == Immediate {
		return m.store.SetField(ctx, destKey, m.field, k)
	}
	if _, ok := m.pending[k]; !ok {
		m.pendingSeq = append(m.pendingSeq, entry{Source: k})
	}
	m.pending[k] = destKey
	return nil
}

// persisted returns the destination already written for k, if any.
func (m *FieldMap) persisted(ctx context.Context, k string) (string, bool, error) {
	if d, ok := m.forward.Get(k); ok {
		return d, true, nil
	}
	return m.store.FindByField(ctx, m.field, k)
}

func (m *FieldMap) DestinationKey(ctx context.Context, sourceKey string) (string, bool, error) {
	if !m.initialized {
		return "", false, ErrNotInitialized
	}
	k := m.key(sourceKey)
	if d, ok := m.pending[k]; ok {
		return d, true, nil
	}
	if d, ok := m.forward.Get(k); ok {
		return d, true, nil
	}
	d, ok, err := m.store.FindByField(ctx, m.field, k)
	if err != nil || !ok {
		return "", false, err
	}
	m.remember(k, d)
	return d, true, nil
}

func (m *FieldMap) SourceKey(ctx context.Context, destKey string) (string, bool, error) {
	if !m.initialized {
		return "", false, ErrNotInitialized
	}
	if k, ok := m.reverse.Get(destKey); ok {
		return strings.TrimPrefix(k, m.prefix), true, nil
	}
	for _, e := range m.pendingSeq {
		if m.pending[e.Source] == destKey {
			return strings.TrimPrefix(e.Source, m.prefix), true, nil
		}
	}
	k, ok, err := m.store.GetField(ctx, destKey, m.field)
	if err != nil || !ok {
		return "", false, err
	}
	m.remember(k, destKey)
	return strings.TrimPrefix(k, m.prefix), true, nil
}

func (m *FieldMap) CountDestinationKeys(ctx context.Context, sourceKeys []string) (int, error) {
	n := 0
	for _, k := range sourceKeys {
		_, ok, err := m.DestinationKey(ctx, k)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Flush clears replaced correlations, then writes pending record fields in
// save order.
func (m *FieldMap) Flush(ctx context.Context) error {
	for len(m.stale) > 0 {
		if err := m.store.ClearField(ctx, m.stale[0], m.field); err != nil {
			return fmt.Errorf("clear %s: %w", m.field, err)
		}
		m.stale = m.stale[1:]
	}
	for len(m.pendingSeq) > 0 {
		k := m.pendingSeq[0].Source
		if err := m.store.SetField(ctx, m.pending[k], m.field, k); err != nil {
			return fmt.Errorf("persist %s: %w", m.field, err)
		}
		delete(m.pending, k)
		m.pendingSeq = m.pendingSeq[1:]
	}
	return nil
}

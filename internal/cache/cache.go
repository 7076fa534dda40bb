// Package cache holds the query view caches used by the service. Entries are
// JSON encoded and grouped by view so a write can drop every qualifier of a
// view at once. Every view carries a generation advanced by Invalidate; an
// entry is only served under the generation it was read at, so a value read
// before a write can never outlive that write's invalidation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Driver names a cache backend.
type Driver string

// Supported drivers.
const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
	DriverNone   Driver = "none"
)

// DefaultTTL bounds how long a view is served without a write touching it.
const DefaultTTL = 5 * time.Minute

// Config selects and parameterizes a cache backend.
type Config struct {
	Driver    Driver        `yaml:"driver"`
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	Prefix    string        `yaml:"prefix"`
}

// Cache is the view cache contract the service depends on.
type Cache interface {
	Get(ctx context.Context, view, qualifier string, dst any) (hit bool, gen uint64, err error)
	Set(ctx context.Context, view, qualifier string, gen uint64, value any) error
	Invalidate(ctx context.Context, views ...string) error
}

// Open builds the cache named by cfg. DriverNone returns (nil, nil) so the
// service keeps its pass-through default.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(cfg.TTL), nil
	case DriverRedis:
		c, err := NewRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case DriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

type memoryEntry struct {
	raw     []byte
	gen     uint64
	expires time.Time
}

// Memory is an in-process cache.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	gens  map[string]uint64
	views map[string]map[string]memoryEntry
}

// NewMemory returns an empty in-process cache. ttl <= 0 uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:   ttl,
		now:   time.Now,
		gens:  make(map[string]uint64),
		views: make(map[string]map[string]memoryEntry),
	}
}

// Get decodes the cached value into dst, reporting whether it was present
// and the generation of view at the time of the lookup.
func (m *Memory) Get(_ context.Context, view, qualifier string, dst any) (bool, uint64, error) {
	m.mu.Lock()
	gen := m.gens[view]
	entry, ok := m.views[view][qualifier]
	if ok && (entry.gen != gen || !m.now().Before(entry.expires)) {
		delete(m.views[view], qualifier)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, gen, nil
	}
	if err := json.Unmarshal(entry.raw, dst); err != nil {
		return false, gen, fmt.Errorf("decode cached %s: %w", view, err)
	}
	return true, gen, nil
}

// Set stores value under view and qualifier. It is a no-op when view was
// invalidated after gen was observed.
func (m *Memory) Set(_ context.Context, view, qualifier string, gen uint64, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", view, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[view] != gen {
		return nil
	}
	if m.views[view] == nil {
		m.views[view] = make(map[string]memoryEntry)
	}
	m.views[view][qualifier] = memoryEntry{raw: raw, gen: gen, expires: m.now().Add(m.ttl)}
	return nil
}

// Invalidate advances the generation of the named views and drops their entries.
func (m *Memory) Invalidate(_ context.Context, views ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range views {
		m.gens[v]++
		delete(m.views, v)
	}
	return nil
}

func entryKey(prefix, view string, gen uint64, qualifier string) string {
	return prefix + view + "|" + strconv.FormatUint(gen, 10) + "|" + qualifier
}

// genKey holds the generation counter of view. It lives outside the
// view|... key space so viewPattern never matches it.
func genKey(prefix, view string) string {
	return prefix + "gen:" + view
}

// viewPattern matches every key of view, escaping glob metacharacters.
func viewPattern(prefix, view string) string {
	var b strings.Builder
	for _, r := range prefix + view {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteString("|*")
	return b.String()
}

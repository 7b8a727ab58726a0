package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	MaxItems        int           // Maximum number of keys (default: 10000)
	CleanupInterval time.Duration // Interval for expired entry cleanup (default: 1 minute)
}

// DefaultMemoryConfig returns default memory store configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxItems:        10000,
		CleanupInterval: time.Minute,
	}
}

type memoryEntry struct {
	value     []byte
	hash      map[string][]byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is a Store backed by an LRU with per-key expiry.
// It is used for single-instance deployments and in tests.
type MemoryStore struct {
	// mu serializes compound operations; the LRU itself is already safe for single calls.
	mu    sync.Mutex
	items *lru.Cache[string, *memoryEntry]
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewMemoryStore creates a memory store and starts its cleanup loop.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 10000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	items, err := lru.New[string, *memoryEntry](cfg.MaxItems)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create lru")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &MemoryStore{
		items:  items,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}

	s.wg.Add(1)
	go s.cleanupLoop(cfg.CleanupInterval)

	return s, nil
}

// lookup returns a live entry, evicting it if expired. Caller holds mu.
func (s *MemoryStore) lookup(key string) (*memoryEntry, bool) {
	entry, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	if entry.expired(s.now()) {
		s.items.Remove(key)
		return nil, false
	}
	return entry, true
}

func (s *MemoryStore) checkOpen() error {
	if s.closed {
		return unavailable(errors.New("memory store closed"), "memory")
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	return s.get(key)
}

func (s *MemoryStore) get(key string) ([]byte, bool, error) {
	entry, ok := s.lookup(key)
	if !ok || entry.hash != nil {
		return nil, false, nil
	}
	return cloneBytes(entry.value), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.set(key, value, ttl)
	return nil
}

func (s *MemoryStore) set(key string, value []byte, ttl time.Duration) {
	entry := &memoryEntry{value: cloneBytes(value)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.items.Add(key, entry)
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, key := range keys {
		s.items.Remove(key)
	}
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, key := range s.items.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.items.Remove(key)
		}
	}
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	result := make(map[string][]byte)
	entry, ok := s.lookup(key)
	if !ok {
		return result, nil
	}
	for field, value := range entry.hash {
		result[field] = cloneBytes(value)
	}
	return result, nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.hset(key, field, value)
	return nil
}

func (s *MemoryStore) hset(key, field string, value []byte) {
	entry, ok := s.lookup(key)
	if !ok || entry.hash == nil {
		entry = &memoryEntry{hash: make(map[string][]byte)}
		s.items.Add(key, entry)
	}
	entry.hash[field] = cloneBytes(value)
}

func (s *MemoryStore) HDel(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.hdel(key, fields...)
	return nil
}

func (s *MemoryStore) hdel(key string, fields ...string) {
	entry, ok := s.lookup(key)
	if !ok || entry.hash == nil {
		return
	}
	for _, field := range fields {
		delete(entry.hash, field)
	}
	if len(entry.hash) == 0 {
		s.items.Remove(key)
	}
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.expire(key, ttl)
	return nil
}

func (s *MemoryStore) expire(key string, ttl time.Duration) {
	entry, ok := s.lookup(key)
	if !ok {
		return
	}
	if ttl <= 0 {
		s.items.Remove(key)
		return
	}
	entry.expiresAt = s.now().Add(ttl)
}

func (s *MemoryStore) Pipeline() Pipeline {
	return &memoryPipeline{store: s}
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkOpen()
}

// Len returns the number of keys, including expired ones not yet cleaned up.
func (s *MemoryStore) Len() int {
	return s.items.Len()
}

// Close stops the cleanup loop. Further calls fail with ErrUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

// cleanupExpired removes expired entries.
func (s *MemoryStore) cleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, key := range s.items.Keys() {
		entry, ok := s.items.Peek(key)
		if ok && entry.expired(now) {
			s.items.Remove(key)
			removed++
		}
	}
	return removed
}

// cleanupLoop periodically removes expired entries.
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// memoryPipeline replays queued commands under a single lock on Exec.
type memoryPipeline struct {
	store *MemoryStore
	cmds  []func()
}

func (p *memoryPipeline) Get(key string) *Value {
	v := &Value{}
	p.cmds = append(p.cmds, func() {
		data, found, _ := p.store.get(key)
		v.fill(data, found)
	})
	return v
}

func (p *memoryPipeline) Set(key string, value []byte, ttl time.Duration) {
	p.cmds = append(p.cmds, func() { p.store.set(key, value, ttl) })
}

func (p *memoryPipeline) Expire(key string, ttl time.Duration) {
	p.cmds = append(p.cmds, func() { p.store.expire(key, ttl) })
}

func (p *memoryPipeline) HSet(key, field string, value []byte) {
	p.cmds = append(p.cmds, func() { p.store.hset(key, field, value) })
}

func (p *memoryPipeline) HDel(key string, fields ...string) {
	p.cmds = append(p.cmds, func() { p.store.hdel(key, fields...) })
}

func (p *memoryPipeline) Exec(_ context.Context) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	if err := p.store.checkOpen(); err != nil {
		return err
	}
	for _, cmd := range p.cmds {
		cmd()
	}
	p.cmds = nil
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

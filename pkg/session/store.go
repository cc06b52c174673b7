// Package session keeps loaded uploads in memory between the upload request
// and the queries that follow it.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/insight/internal/models"
	"github.com/xhad/insight/pkg/loader"
)

// DefaultTTL is how long an upload may sit idle before the sweeper drops it.
const DefaultTTL = 30 * time.Minute

// DefaultMaxEntries bounds the number of uploads held at once.
const DefaultMaxEntries = 64

// Entry is a loaded upload.
type Entry struct {
	ID           string
	Name         string
	Type         models.FileType
	Size         int
	UploadedAt   time.Time
	LastAccessed time.Time
	Loaded       loader.Loaded

	seq uint64
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
	Logger     *zap.Logger
	// OnRemove is called, outside the store lock, for every entry that is
	// deleted, evicted or expired.
	OnRemove func(Entry)
}

// Store is an in-memory, size- and age-bounded registry of uploads.
// It is safe for concurrent use.
type Store struct {
	config  Config
	mu      sync.RWMutex
	entries map[string]*Entry
	seq     uint64
	log     *zap.Logger
	now     func() time.Time
}

func NewWithConfig(config Config) *Store {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Store{
		config:  config,
		entries: make(map[string]*Entry),
		log:     config.Logger,
		now:     time.Now,
	}
}

// Put registers a loaded upload and returns its entry. When the store is full
// the least recently accessed entry is evicted first.
func (s *Store) Put(name string, size int, loaded loader.Loaded) Entry {
	now := s.now()
	e := &Entry{
		ID:           uuid.New().String(),
		Name:         name,
		Type:         loaded.Type,
		Size:         size,
		UploadedAt:   now,
		LastAccessed: now,
		Loaded:       loaded,
	}

	var evicted []Entry
	s.mu.Lock()
	s.seq++
	e.seq = s.seq
	for len(s.entries) >= s.config.MaxEntries {
		victim := s.leastRecentlyUsedLocked()
		evicted = append(evicted, *victim)
		delete(s.entries, victim.ID)
	}
	s.entries[e.ID] = e
	out := *e
	s.mu.Unlock()

	for _, v := range evicted {
		s.log.Info("evicted upload", zap.String("file_id", v.ID), zap.String("file_name", v.Name))
		s.removed(v)
	}
	return out
}

func (s *Store) leastRecentlyUsedLocked() *Entry {
	var victim *Entry
	for _, e := range s.entries {
		if victim == nil || e.LastAccessed.Before(victim.LastAccessed) ||
			(e.LastAccessed.Equal(victim.LastAccessed) && e.ID < victim.ID) {
			victim = e
		}
	}
	return victim
}

// Get returns the entry with the given id and marks it as accessed.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	e.LastAccessed = s.now()
	return *e, true
}

// FindByName returns the most recent upload with the given filename and
// marks it as accessed.
func (s *Store) FindByName(name string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Entry
	for _, e := range s.entries {
		if e.Name != name {
			continue
		}
		if latest == nil || e.seq > latest.seq {
			latest = e
		}
	}
	if latest == nil {
		return Entry{}, false
	}
	latest.LastAccessed = s.now()
	return *latest, true
}

// Delete removes an entry. It reports whether the entry existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if ok {
		s.removed(*e)
	}
	return ok
}

// List returns all entries, oldest upload first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Cleanup removes entries that have not been accessed within maxAge and
// returns how many were removed.
func (s *Store) Cleanup(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)

	var expired []Entry
	s.mu.Lock()
	for id, e := range s.entries {
		if e.LastAccessed.Before(cutoff) {
			expired = append(expired, *e)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		s.removed(e)
	}
	if len(expired) > 0 {
		s.log.Info("expired uploads", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps expired entries every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.config.TTL / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup(s.config.TTL)
		}
	}
}

func (s *Store) removed(e Entry) {
	if s.config.OnRemove != nil {
		s.config.OnRemove(e)
	}
}

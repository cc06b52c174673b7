package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xhad/insight/internal/models"
	"github.com/xhad/insight/pkg/loader"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(config Config) (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewWithConfig(config)
	s.now = clock.Now
	return s, clock
}

func docLoaded(text string) loader.Loaded {
	return loader.Loaded{Type: models.FileTypePDF, Document: &models.DocumentText{Text: text}}
}

func TestPutGet(t *testing.T) {
	s, clock := newTestStore(Config{})

	e := s.Put("report.pdf", 42, docLoaded("hello"))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, models.FileTypePDF, e.Type)
	assert.Equal(t, 42, e.Size)

	clock.Advance(time.Minute)
	got, ok := s.Get(e.ID)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Loaded.Document.Text)
	assert.Equal(t, e.UploadedAt.Add(time.Minute), got.LastAccessed)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestFindByNameReturnsLatest(t *testing.T) {
	s, clock := newTestStore(Config{})

	s.Put("sales.csv", 1, docLoaded("old"))
	clock.Advance(time.Second)
	newer := s.Put("sales.csv", 1, docLoaded("new"))
	s.Put("other.csv", 1, docLoaded("other"))

	got, ok := s.FindByName("sales.csv")
	require.True(t, ok)
	assert.Equal(t, newer.ID, got.ID)

	_, ok = s.FindByName("nope.csv")
	assert.False(t, ok)
}

func TestDeleteCallsOnRemove(t *testing.T) {
	var removed []string
	s, _ := newTestStore(Config{OnRemove: func(e Entry) { removed = append(removed, e.ID) }})

	e := s.Put("a.pdf", 1, docLoaded("a"))
	assert.True(t, s.Delete(e.ID))
	assert.False(t, s.Delete(e.ID))
	assert.Equal(t, []string{e.ID}, removed)
	assert.Zero(t, s.Len())
}

func TestMaxEntriesEvictsLeastRecentlyUsed(t *testing.T) {
	var removed []string
	s, clock := newTestStore(Config{MaxEntries: 2, OnRemove: func(e Entry) { removed = append(removed, e.Name) }})

	a := s.Put("a.pdf", 1, docLoaded("a"))
	clock.Advance(time.Second)
	s.Put("b.pdf", 1, docLoaded("b"))
	clock.Advance(time.Second)
	_, ok := s.Get(a.ID) // a is now the most recently used
	require.True(t, ok)
	clock.Advance(time.Second)
	s.Put("c.pdf", 1, docLoaded("c"))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"b.pdf"}, removed)

	names := []string{}
	for _, e := range s.List() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, names)
}

func TestCleanup(t *testing.T) {
	s, clock := newTestStore(Config{TTL: 10 * time.Minute})

	stale := s.Put("stale.pdf", 1, docLoaded("x"))
	clock.Advance(8 * time.Minute)
	fresh := s.Put("fresh.pdf", 1, docLoaded("y"))
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, s.Cleanup(10*time.Minute))

	_, ok := s.Get(stale.ID)
	assert.False(t, ok)
	_, ok = s.Get(fresh.ID)
	assert.True(t, ok)
}

func TestRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewWithConfig(Config{TTL: time.Millisecond})
	s.Put("a.pdf", 1, docLoaded("a"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestConcurrentAccess(t *testing.T) {
	s := NewWithConfig(Config{MaxEntries: 8})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := s.Put("f.pdf", 1, docLoaded("x"))
			s.Get(e.ID)
			s.FindByName("f.pdf")
			s.List()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 8)
}

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoad_CachesResult(t *testing.T) {
	l := NewLoader(NewMemoryCache(time.Minute, time.Minute))
	var calls int32
	load := func() ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"p1", "p2"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Load(l, Key("players", "org-1"), time.Minute, load)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 items, got %v", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 load, got %d", calls)
	}
}

func TestLoad_ErrorsNotCached(t *testing.T) {
	l := NewLoader(NewMemoryCache(time.Minute, time.Minute))
	boom := errors.New("roster unavailable")
	calls := 0
	load := func() (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 42, nil
	}

	if _, err := Load(l, "k", 0, load); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	got, err := Load(l, "k", 0, load)
	if err != nil || got != 42 {
		t.Fatalf("expected 42 after retry, got %d, %v", got, err)
	}
}

func TestLoad_CollapsesConcurrentMisses(t *testing.T) {
	l := NewLoader(NewMemoryCache(time.Minute, time.Minute))
	var calls int32
	release := make(chan struct{})
	load := func() (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "snapshot", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := Load(l, "org", time.Minute, load); err != nil || v != "snapshot" {
				t.Errorf("unexpected result %q, %v", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected concurrent misses to share 1 load, got %d", n)
	}
}

func TestLoad_Clear(t *testing.T) {
	l := NewLoader(NewMemoryCache(time.Minute, time.Minute))
	n := 0
	load := func() (int, error) { n++; return n, nil }

	first, _ := Load(l, "k", 0, load)
	_ = l.Clear()
	second, _ := Load(l, "k", 0, load)
	if first != 1 || second != 2 {
		t.Errorf("expected reload after Clear, got %d then %d", first, second)
	}
}

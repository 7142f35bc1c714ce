package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if Key("q", "ctx") != Key("q", "ctx") {
		t.Error("Key is not deterministic")
	}
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("Key ignores the question/context boundary")
	}
}

func TestGetPut(t *testing.T) {
	c := New()
	if _, ok := c.Get("k"); ok {
		t.Fatal("empty cache hit")
	}
	c.Put("k", "first")
	c.Put("k", "second")
	if v, ok := c.Get("k"); !ok || v != "first" {
		t.Errorf("Get = %q, %v; entries are append-only", v, ok)
	}
}

func TestDoCallsOnce(t *testing.T) {
	c := New()
	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		return "answer", nil
	}
	for i := 0; i < 3; i++ {
		v, hit, err := c.Do(context.Background(), "k", fn)
		if err != nil || v != "answer" {
			t.Fatalf("Do = %q, %v", v, err)
		}
		if (i > 0) != hit {
			t.Errorf("call %d hit = %v", i, hit)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fn called %d times, want 1", calls.Load())
	}
}

func TestDoDoesNotCacheErrors(t *testing.T) {
	c := New()
	boom := errors.New("boom")
	if _, _, err := c.Do(context.Background(), "k", func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.Len() != 0 {
		t.Error("failed call was cached")
	}
	v, _, err := c.Do(context.Background(), "k", func(context.Context) (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Errorf("retry = %q, %v", v, err)
	}
}

func TestDoCoalescesConcurrentCalls(t *testing.T) {
	c := New()
	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "answer", nil
	}
	var wg sync.WaitGroup
	var misses atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, hit, err := c.Do(context.Background(), "k", fn)
			if err != nil || v != "answer" {
				t.Errorf("Do = %q, %v", v, err)
			}
			if !hit {
				misses.Add(1)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("fn called %d times, want 1", calls.Load())
	}
	if misses.Load() != 1 {
		t.Errorf("%d callers reported a miss, want only the one that ran fn", misses.Load())
	}
}

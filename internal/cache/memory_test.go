package cache

import (
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if err := c.Set("a", []string{"x"}, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	v, ok := c.Get("a")
	if !ok {
		t.Fatal("expected cached value")
	}
	if got := v.([]string); len(got) != 1 || got[0] != "x" {
		t.Errorf("unexpected value: %v", got)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("short", 1, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("expected value to expire")
	}
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("a", 1, 0)
	_ = c.Set("b", 2, 0)

	_ = c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be deleted")
	}

	_ = c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d items", c.Len())
	}
}

func TestKey(t *testing.T) {
	if got := Key("players", "org1"); got != "rollcall:v1:players:org1" {
		t.Errorf("unexpected key: %s", got)
	}
}

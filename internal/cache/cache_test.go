package cache

import (
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, found := c.Get("missing"); found {
		t.Error("expected miss for unknown key")
	}

	if err := c.Set("key", []byte("value"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, found := c.Get("key")
	if !found || string(got) != "value" {
		t.Errorf("expected hit with value, got %q found=%v", got, found)
	}

	if err := c.Delete("key"); err != nil {
		t.Fatal(err)
	}
	if _, found := c.Get("key"); found {
		t.Error("expected miss after delete")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	if err := c.Set("key", []byte("value"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, found := c.Get("key"); found {
		t.Error("expected entry to expire")
	}
}

func TestResponses_UsesFixedTTL(t *testing.T) {
	r := NewResponses(NewMemoryCache(time.Minute, time.Minute), time.Minute)
	if err := r.Set("key", []byte("completion")); err != nil {
		t.Fatal(err)
	}
	got, found := r.Get("key")
	if !found || string(got) != "completion" {
		t.Errorf("expected stored completion, got %q found=%v", got, found)
	}
}

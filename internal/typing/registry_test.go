package typing

import (
	"testing"
	"time"
)

var base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestRegistrySetIgnoresLocalUser(t *testing.T) {
	r := NewRegistry("me")

	if r.Set("c-1", "me", "Me", base) {
		t.Error("Expected local user to be ignored")
	}
	if got := len(r.List("c-1")); got != 0 {
		t.Errorf("Expected 0 entries, got %d", got)
	}
}

func TestRegistrySetRefreshes(t *testing.T) {
	r := NewRegistry("me")

	r.Set("c-1", "u-1", "Alice", base)
	r.Set("c-1", "u-2", "Bob", base)
	r.Set("c-1", "u-1", "", base.Add(time.Second))

	list := r.List("c-1")
	if len(list) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(list))
	}
	if list[0].UserID != "u-1" || !list[0].At.Equal(base.Add(time.Second)) {
		t.Errorf("Expected u-1 refreshed in place, got %+v", list[0])
	}
	if list[0].DisplayName != "Alice" {
		t.Errorf("Expected display name kept, got '%s'", list[0].DisplayName)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry("me")
	r.Set("c-1", "u-1", "Alice", base)
	r.Set("c-1", "u-2", "Bob", base)

	if !r.Remove("c-1", "u-1") {
		t.Error("Expected remove to succeed")
	}
	if r.Remove("c-1", "u-1") {
		t.Error("Expected second remove to be a no-op")
	}
	if list := r.List("c-1"); len(list) != 1 || list[0].UserID != "u-2" {
		t.Errorf("Expected only u-2 left, got %+v", list)
	}
}

func TestRegistryRemoveIfAt(t *testing.T) {
	r := NewRegistry("me")
	r.Set("c-1", "u-1", "Alice", base)
	r.Set("c-1", "u-1", "Alice", base.Add(2*time.Second))

	if r.RemoveIfAt("c-1", "u-1", base) {
		t.Error("Expected stale timer not to remove refreshed entry")
	}
	if !r.RemoveIfAt("c-1", "u-1", base.Add(2*time.Second)) {
		t.Error("Expected current timer to remove entry")
	}
}

func TestRegistryClearChannel(t *testing.T) {
	r := NewRegistry("me")
	r.Set("c-1", "u-1", "Alice", base)
	r.Set("c-2", "u-2", "Bob", base)

	if n := r.ClearChannel("c-1"); n != 1 {
		t.Errorf("Expected 1 removed, got %d", n)
	}
	if r.Count() != 1 {
		t.Errorf("Expected 1 entry left, got %d", r.Count())
	}
}

func TestRegistryExpire(t *testing.T) {
	r := NewRegistry("me")
	r.Set("c-1", "u-1", "Alice", base)
	r.Set("c-1", "u-2", "Bob", base.Add(2*time.Second))

	removed := r.Expire(base.Add(3*time.Second), 3*time.Second)
	if len(removed) != 1 || removed[0].UserID != "u-1" {
		t.Errorf("Expected u-1 expired, got %+v", removed)
	}
	if _, ok := r.Get("c-1", "u-2"); !ok {
		t.Error("Expected u-2 kept")
	}

	r.Expire(base.Add(10*time.Second), 3*time.Second)
	if r.Count() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Count())
	}
}

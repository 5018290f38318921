package util

import (
	"fmt"
	"sync"
	"testing"
)

func TestSafeMap_SetAndGet(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  int
		wantOk bool
	}{
		{"set and get value", "key1", 42, true},
		{"get non-existent key", "missing", 0, false},
		{"set zero value", "zero", 0, true},
	}

	m := NewSafeMap[int]()
	m.Set("key1", 42)
	m.Set("zero", 0)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Get(tt.key)
			if ok != tt.wantOk {
				t.Errorf("Get(%q) ok = %v, want %v", tt.key, ok, tt.wantOk)
			}
			if ok && got != tt.value {
				t.Errorf("Get(%q) = %v, want %v", tt.key, got, tt.value)
			}
		})
	}
}

func TestSafeMap_DeleteKeysLen(t *testing.T) {
	m := NewSafeMap[string]()
	m.Set("b", "2")
	m.Set("a", "1")
	m.Set("c", "3")
	m.Delete("c")
	m.Delete("missing")

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}
}

func TestSafeMap_ConcurrentAccess(t *testing.T) {
	m := NewSafeMap[int]()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			m.Set(fmt.Sprintf("key%d", n), n)
		}(i)
		go func(n int) {
			defer wg.Done()
			m.Get(fmt.Sprintf("key%d", n))
		}(i)
	}
	wg.Wait()

	if m.Len() != 50 {
		t.Errorf("Len() = %d, want 50", m.Len())
	}
}

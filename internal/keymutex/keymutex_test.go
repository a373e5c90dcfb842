package keymutex

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	var m Map
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("sku@loc")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Fatalf("expected 100 increments, got %d", counter)
	}
	if m.Len() != 0 {
		t.Fatalf("expected no held keys, got %d", m.Len())
	}
}

func TestLockIndependentKeys(t *testing.T) {
	var m Map
	unlockA := m.Lock("a")
	unlockB := m.Lock("b") // must not block on a
	if m.Len() != 2 {
		t.Fatalf("expected 2 held keys, got %d", m.Len())
	}
	unlockA()
	unlockB()
	if m.Len() != 0 {
		t.Fatalf("expected no held keys, got %d", m.Len())
	}
}

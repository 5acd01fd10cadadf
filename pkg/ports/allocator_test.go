package ports

import (
	"errors"
	"sync"
	"testing"
)

func TestAllocator_DistinctPorts(t *testing.T) {
	a, err := NewAllocator(9000, 9009)
	if err != nil {
		t.Fatalf("NewAllocator failed: %v", err)
	}

	seen := make(map[int]bool)
	for i := 0; i < 10; i++ {
		port, err := a.Reserve()
		if err != nil {
			t.Fatalf("Reserve %d failed: %v", i, err)
		}
		if port < 9000 || port > 9009 {
			t.Errorf("Port %d outside range", port)
		}
		if seen[port] {
			t.Errorf("Port %d handed out twice", port)
		}
		seen[port] = true
	}
}

func TestAllocator_Exhaustion(t *testing.T) {
	a, _ := NewAllocator(9000, 9001)

	if _, err := a.Reserve(); err != nil {
		t.Fatalf("first Reserve failed: %v", err)
	}
	if _, err := a.Reserve(); err != nil {
		t.Fatalf("second Reserve failed: %v", err)
	}
	if _, err := a.Reserve(); !errors.Is(err, ErrPortExhausted) {
		t.Errorf("Expected ErrPortExhausted, got %v", err)
	}
}

func TestAllocator_ReleaseMakesReReservable(t *testing.T) {
	a, _ := NewAllocator(9000, 9000)

	port, err := a.Reserve()
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if _, err := a.Reserve(); !errors.Is(err, ErrPortExhausted) {
		t.Fatal("Expected pool exhausted before release")
	}

	a.Release(port)

	again, err := a.Reserve()
	if err != nil {
		t.Fatalf("Reserve after release failed: %v", err)
	}
	if again != port {
		t.Errorf("Expected released port %d, got %d", port, again)
	}
}

func TestAllocator_ConcurrentReserve(t *testing.T) {
	const k = 50
	a, _ := NewAllocator(9000, 9000+k-1)

	var mu sync.Mutex
	seen := make(map[int]bool)
	var wg sync.WaitGroup

	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := a.Reserve()
			if err != nil {
				t.Errorf("Reserve failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[port] {
				t.Errorf("Port %d reserved twice concurrently", port)
			}
			seen[port] = true
		}()
	}
	wg.Wait()

	if a.Reserved() != k {
		t.Errorf("Expected %d reservations, got %d", k, a.Reserved())
	}
}

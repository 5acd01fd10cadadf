package ports

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPortExhausted is returned when no port in the configured range
// is free.
var ErrPortExhausted = errors.New("port pool exhausted")

// Allocator hands out local ports for engine processes from a fixed
// range. Reservations are exclusive: no two live reservations share a
// port, including across concurrent callers.
//
// A reservation survives until Release is called. The process
// supervisor releases a crashed process's port when it observes the
// exit, so leaked reservations are eventually reclaimed.
type Allocator struct {
	min int
	max int

	mu       sync.Mutex
	reserved map[int]bool
	next     int
}

// NewAllocator creates an allocator over the inclusive range
// [min, max].
func NewAllocator(min, max int) (*Allocator, error) {
	if min <= 0 || max <= 0 || min > max {
		return nil, fmt.Errorf("invalid port range %d-%d", min, max)
	}
	return &Allocator{
		min:      min,
		max:      max,
		reserved: make(map[int]bool),
		next:     min,
	}, nil
}

// Reserve returns a currently-unused port and marks it reserved.
// Returns ErrPortExhausted when every port in the range is reserved.
func (a *Allocator) Reserve() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.max - a.min + 1
	for i := 0; i < size; i++ {
		port := a.next
		a.next++
		if a.next > a.max {
			a.next = a.min
		}
		if !a.reserved[port] {
			a.reserved[port] = true
			return port, nil
		}
	}
	return 0, ErrPortExhausted
}

// Release returns a port to the free pool. Releasing a port that is
// not reserved is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reserved, port)
}

// Reserved reports the number of currently reserved ports.
func (a *Allocator) Reserved() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reserved)
}

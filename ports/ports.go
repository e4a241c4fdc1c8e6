// Package ports hands out ports from a fixed range to managed worlds.
package ports

import (
	"sort"
	"sync"

	"emperror.dev/errors"
)

var ErrNoFreePorts = errors.Sentinel("ports: no free port left in range")

// Allocator tracks which ports of an inclusive range are taken. Allocation
// always returns the lowest free port.
type Allocator struct {
	mu       sync.Mutex
	start    int
	end      int
	taken    map[int]struct{}
	reserved map[int]struct{}
}

// New returns an allocator for the inclusive range [start, end]. Reserved
// ports are never handed out, which is how the proxy's own listen port is kept
// out of the pool when it falls inside the range.
func New(start, end int, reserved ...int) (*Allocator, error) {
	if start <= 0 || end < start || end > 65535 {
		return nil, errors.Errorf("ports: invalid range %d-%d", start, end)
	}
	a := &Allocator{
		start:    start,
		end:      end,
		taken:    make(map[int]struct{}),
		reserved: make(map[int]struct{}, len(reserved)),
	}
	for _, p := range reserved {
		a.reserved[p] = struct{}{}
	}
	return a, nil
}

// Allocate takes the lowest free port in the range. The lookup and the
// insertion happen under one lock, so concurrent callers never receive the
// same port.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p := a.start; p <= a.end; p++ {
		if _, ok := a.reserved[p]; ok {
			continue
		}
		if _, ok := a.taken[p]; ok {
			continue
		}
		a.taken[p] = struct{}{}
		return p, nil
	}
	return 0, ErrNoFreePorts
}

// Release returns the port to the pool. Releasing a free port, or one outside
// the range, does nothing.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	delete(a.taken, port)
	a.mu.Unlock()
}

// InUse reports whether the port is currently allocated.
func (a *Allocator) InUse(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.taken[port]
	return ok
}

// Taken returns the allocated ports in ascending order.
func (a *Allocator) Taken() []int {
	a.mu.Lock()
	out := make([]int, 0, len(a.taken))
	for p := range a.taken {
		out = append(out, p)
	}
	a.mu.Unlock()
	sort.Ints(out)
	return out
}

// Capacity returns how many ports this allocator can hand out in total.
func (a *Allocator) Capacity() int {
	n := a.end - a.start + 1
	for p := range a.reserved {
		if p >= a.start && p <= a.end {
			n--
		}
	}
	return n
}

package persist

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Guard admits one save or restore at a time without queuing.
type Guard struct {
	sem *semaphore.Weighted
}

// NewGuard returns an unheld guard.
func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// TryAcquire takes the guard if it is free. The returned release function
// may be called any number of times.
func (g *Guard) TryAcquire() (release func(), ok bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { g.sem.Release(1) }) }, true
}

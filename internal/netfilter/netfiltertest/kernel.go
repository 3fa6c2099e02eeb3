// Package netfiltertest provides an in-memory rule table kernel for tests.
package netfiltertest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

// ErrNoSuchTable is returned by Open for a table that was never loaded.
var ErrNoSuchTable = errors.New("no such table")

type stored struct {
	info netfilter.Info
	blob []byte
}

// Kernel keeps tables as encoded entry blobs, so every Open exercises the
// decoder and every Replace the encoder.
type Kernel struct {
	mu       sync.Mutex
	tables   map[string]stored
	failures map[string]int
	opens    map[string]int
	replaces map[string]int
}

// NewKernel returns an empty kernel.
func NewKernel() *Kernel {
	return &Kernel{
		tables:   map[string]stored{},
		failures: map[string]int{},
		opens:    map[string]int{},
		replaces: map[string]int{},
	}
}

// Load installs t as if it had been committed.
func (k *Kernel) Load(t *netfilter.Table) error {
	info, blob, err := netfilter.Encode(t)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tables[t.Name] = stored{info: info, blob: blob}
	return nil
}

// FailOpen makes the next n opens of name fail.
func (k *Kernel) FailOpen(name string, n int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.failures[name] = n
}

// Opens returns the number of Open calls made for name.
func (k *Kernel) Opens(name string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.opens[name]
}

// Replaces returns the number of successful Replace calls made for name.
func (k *Kernel) Replaces(name string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.replaces[name]
}

// Names lists the loaded tables in name order.
func (k *Kernel) Names() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	names := make([]string, 0, len(k.tables))
	for name := range k.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open implements netfilter.Kernel.
func (k *Kernel) Open(ctx context.Context, name string) (*netfilter.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	k.opens[name]++
	if k.failures[name] > 0 {
		k.failures[name]--
		return nil, fmt.Errorf("open %s: injected failure", name)
	}
	s, ok := k.tables[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, ErrNoSuchTable)
	}
	t, err := netfilter.Decode(s.info, s.blob)
	if err != nil {
		return nil, err
	}
	t.NumEntries = s.info.NumEntries
	return t, nil
}

// Replace implements netfilter.Kernel.
func (k *Kernel) Replace(ctx context.Context, t *netfilter.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, blob, err := netfilter.Encode(t)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	old, ok := k.tables[t.Name]
	if !ok {
		return fmt.Errorf("replace %s: %w", t.Name, ErrNoSuchTable)
	}
	if old.info.NumEntries != t.NumEntries {
		return fmt.Errorf("replace %s: counters for %d entries, table has %d", t.Name, t.NumEntries, old.info.NumEntries)
	}
	k.tables[t.Name] = stored{info: info, blob: blob}
	k.replaces[t.Name]++
	return nil
}

// Loader is a recording netfilter.ModuleLoader. Load runs OnLoad when set.
type Loader struct {
	mu     sync.Mutex
	calls  int
	Err    error
	OnLoad func()
}

// Load implements netfilter.ModuleLoader.
func (l *Loader) Load(context.Context) error {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.OnLoad != nil {
		l.OnLoad()
	}
	return l.Err
}

// Calls returns the number of Load calls.
func (l *Loader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

package xtables

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/denniswebb/fwkeeper/internal/netfilter"
)

// ErrUnresolvedExtension reports a match or target with parameters but no
// registered serializer.
var ErrUnresolvedExtension = errors.New("unresolved extension")

// hostOrder is the byte order of extension parameter blobs.
var hostOrder = binary.NativeEndian

// Extension serializes one match or target revision.
type Extension interface {
	Name() string
	Revision() uint8
	// Size is the number of parameter bytes Save reads.
	Size() int
	// Save prints the options for data to standard output, each preceded by
	// a space.
	Save(ip *netfilter.IPTIP, data []byte)
}

// Kind tells matches and targets apart; they live in separate namespaces.
type Kind string

const (
	KindMatch  Kind = "match"
	KindTarget Kind = "target"
)

// UnresolvedError names the extension that could not be found. It matches
// ErrUnresolvedExtension.
type UnresolvedError struct {
	Kind     Kind
	Name     string
	Revision uint8
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s %s (revision %d): %v", e.Kind, e.Name, e.Revision, ErrUnresolvedExtension)
}

func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnresolvedExtension
}

type key struct {
	kind     Kind
	name     string
	revision uint8
}

// Registry maps extension names and revisions to serializers.
type Registry struct {
	mu         sync.RWMutex
	extensions map[key]Extension
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{extensions: map[key]Extension{}}
}

// Default holds the built-in extensions.
var Default = NewRegistry()

// RegisterMatch adds a match. It panics if the name and revision are taken.
func (r *Registry) RegisterMatch(ext Extension) {
	r.register(KindMatch, ext)
}

// RegisterTarget adds a target. It panics if the name and revision are taken.
func (r *Registry) RegisterTarget(ext Extension) {
	r.register(KindTarget, ext)
}

func (r *Registry) register(kind Kind, ext Extension) {
	k := key{kind: kind, name: ext.Name(), revision: ext.Revision()}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.extensions[k]; ok {
		panic(fmt.Sprintf("multiple %s extensions named %s revision %d", kind, k.name, k.revision))
	}
	r.extensions[k] = ext
}

// Match looks up a match serializer.
func (r *Registry) Match(name string, revision uint8) (Extension, error) {
	return r.lookup(KindMatch, name, revision)
}

// Target looks up a target serializer.
func (r *Registry) Target(name string, revision uint8) (Extension, error) {
	return r.lookup(KindTarget, name, revision)
}

func (r *Registry) lookup(kind Kind, name string, revision uint8) (Extension, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.extensions[key{kind: kind, name: name, revision: revision}]
	if !ok {
		return nil, &UnresolvedError{Kind: kind, Name: name, Revision: revision}
	}
	return ext, nil
}

func init() {
	for _, m := range []Extension{
		tcpMatch{},
		udpMatch{},
		icmpMatch{},
		commentMatch{},
		stateMatch{},
		markMatch{},
		multiportMatch{},
		limitMatch{},
		conntrackMatch{revision: 1},
		conntrackMatch{revision: 2},
		conntrackMatch{revision: 3},
		addrtypeMatch{revision: 0},
		addrtypeMatch{revision: 1},
	} {
		Default.RegisterMatch(m)
	}
	for _, t := range []Extension{
		logTarget{},
		rejectTarget{},
		natTarget{name: "DNAT", option: "--to-destination"},
		natTarget{name: "SNAT", option: "--to-source"},
		portsTarget{name: "MASQUERADE"},
		portsTarget{name: "REDIRECT"},
		markTarget{},
		connmarkTarget{},
	} {
		Default.RegisterTarget(t)
	}
}

package rules

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultMethod is the provider method used when a relation names none
const DefaultMethod = "rules"

var (
	// ErrNoProvider is returned when no provider is registered under a ref
	ErrNoProvider = errors.New("no rules provider")
	// ErrNoMethod is returned when a provider does not expose a method
	ErrNoMethod = errors.New("rules provider has no such method")
)

// Mode tells a provider which operation the rules are for
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// ModeFor returns the mode of an operation
func ModeFor(creating bool) Mode {
	if creating {
		return ModeCreate
	}
	return ModeUpdate
}

// RuleFunc returns the direct attribute rules of a resource for a mode
type RuleFunc func(mode Mode) (RuleMap, error)

// Providers is the rules provider namespace: ref -> method -> RuleFunc. The default
// ref of a resource is its name. Safe for concurrent use.
type Providers struct {
	mu        sync.RWMutex
	providers map[string]map[string]RuleFunc
}

// NewProviders creates an empty provider namespace
func NewProviders() *Providers {
	return &Providers{providers: make(map[string]map[string]RuleFunc)}
}

// Register adds fn as method of the provider ref
func (p *Providers) Register(ref, method string, fn RuleFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	methods, ok := p.providers[ref]
	if !ok {
		methods = make(map[string]RuleFunc)
		p.providers[ref] = methods
	}
	methods[method] = fn
}

// RegisterModes adds a static provider under ref whose default method returns the
// rule map of the requested mode. A mode without rules yields an empty map.
func (p *Providers) RegisterModes(ref string, modes map[Mode]RuleMap) {
	p.Register(ref, DefaultMethod, func(mode Mode) (RuleMap, error) {
		if m, ok := modes[mode]; ok {
			return m, nil
		}
		return RuleMap{}, nil
	})
}

// Lookup returns the method of a provider
func (p *Providers) Lookup(ref, method string) (RuleFunc, error) {
	if p == nil {
		return nil, fmt.Errorf("%w %q", ErrNoProvider, ref)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	methods, ok := p.providers[ref]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoProvider, ref)
	}
	fn, ok := methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoMethod, ref, method)
	}
	return fn, nil
}

// Refs returns the registered provider refs in sorted order
func (p *Providers) Refs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	refs := make([]string, 0, len(p.providers))
	for ref := range p.providers {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

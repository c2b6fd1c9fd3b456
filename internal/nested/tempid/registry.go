// Package tempid tracks temporary id tokens: caller-chosen names for records that do
// not exist yet, so that several branches of one payload can share a single new
// record. A Registry lives for exactly one top-level operation.
package tempid

import (
	"fmt"
	"sort"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/orm/crud"
	"github.com/google/go-cmp/cmp"
)

// Entry is the accumulated knowledge about one token
type Entry struct {
	Token    string
	Resource string
	// Data is the create payload, without the token attribute
	Data map[string]interface{}
	// Record is set once the record has been created
	Record          *crud.Record
	Created         bool
	AllowedToCreate bool
	// Key is the path of the first sighting
	Key nested.Key

	creating bool
}

// Sighting is one occurrence of a token in a payload
type Sighting struct {
	Key        nested.Key
	Token      string
	Descriptor *relation.Descriptor
	// Data is the node payload without the token attribute
	Data map[string]interface{}
}

// Registry accumulates sightings of every token in one operation. It is not safe for
// concurrent use.
type Registry struct {
	entries map[string]*Entry
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// See records a sighting and checks it against the earlier ones
func (r *Registry) See(s Sighting) error {
	desc := s.Descriptor
	invalid := func(format string, args ...interface{}) error {
		return &nested.InvalidDataError{Key: s.Key, Token: s.Token, Message: fmt.Sprintf(format, args...)}
	}

	if desc.RelatedKeyGenerated {
		if _, ok := s.Data[desc.RelatedPrimaryKey]; ok {
			return invalid("generated key %s cannot be set on a record that does not exist yet", desc.RelatedPrimaryKey)
		}
	}

	entry, seen := r.entries[s.Token]
	if !seen {
		entry = &Entry{Token: s.Token, Resource: desc.RelatedType, Key: s.Key}
		r.entries[s.Token] = entry
	} else if entry.Resource != desc.RelatedType {
		return invalid("used for both %s and %s", entry.Resource, desc.RelatedType)
	}

	if len(s.Data) > 0 {
		if entry.Data == nil {
			entry.Data = s.Data
		} else if !cmp.Equal(entry.Data, s.Data) {
			return invalid("payload differs from the one given at %s", entry.Key)
		}
	}

	entry.AllowedToCreate = entry.AllowedToCreate || desc.CreateAllowed
	return nil
}

// Check verifies, once the whole payload has been seen, that every token can be
// created: it has a payload and at least one sighting allows creation
func (r *Registry) Check() error {
	for _, token := range r.Tokens() {
		entry := r.entries[token]
		if entry.Data == nil {
			return &nested.InvalidDataError{Key: entry.Key, Token: token, Message: "no data given to create the record"}
		}
		if !entry.AllowedToCreate {
			return &nested.InvalidDataError{Key: entry.Key, Token: token, Message: "no relation referencing it allows creating records"}
		}
	}
	return nil
}

// Get returns the entry of a token
func (r *Registry) Get(token string) (*Entry, bool) {
	entry, ok := r.entries[token]
	return entry, ok
}

// Begin marks a token as being created. It fails if the token is already being
// created, which happens when a payload refers to its own token.
func (r *Registry) Begin(key nested.Key, token string) error {
	entry, ok := r.entries[token]
	if !ok {
		return &nested.InvalidDataError{Key: key, Token: token, Message: "unknown temporary id"}
	}
	if entry.creating {
		return &nested.InvalidDataError{Key: key, Token: token, Message: "payload refers to its own temporary id"}
	}
	entry.creating = true
	return nil
}

// MarkCreated stores the record created for a token
func (r *Registry) MarkCreated(token string, record *crud.Record) {
	if entry, ok := r.entries[token]; ok {
		entry.Record = record
		entry.Created = true
		entry.creating = false
	}
}

// Tokens returns every token seen, in sorted order
func (r *Registry) Tokens() []string {
	tokens := make([]string, 0, len(r.entries))
	for token := range r.entries {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// Len returns the number of tokens seen
func (r *Registry) Len() int {
	return len(r.entries)
}

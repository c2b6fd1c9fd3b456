package crud

import (
	"sort"

	"github.com/conduit-lang/nestwrite/internal/orm/schema"
	"github.com/google/go-cmp/cmp"
)

// Record is one row of a resource held as an attribute map. It remembers the values
// it was loaded (or last saved) with so that Save only writes what changed.
type Record struct {
	Resource   *schema.ResourceSchema
	Attributes map[string]interface{}

	original map[string]interface{}
	exists   bool
}

// newRecord creates an unsaved record
func newRecord(resource *schema.ResourceSchema) *Record {
	return &Record{
		Resource:   resource,
		Attributes: make(map[string]interface{}),
		original:   make(map[string]interface{}),
	}
}

// NewReference returns a record standing for an existing row whose attributes have
// not been loaded. Only the primary key is set.
func NewReference(resource *schema.ResourceSchema, key interface{}) *Record {
	r := newRecord(resource)
	r.Attributes[resource.PrimaryKey] = key
	r.original[resource.PrimaryKey] = key
	r.exists = true
	return r
}

// Key returns the primary key value
func (r *Record) Key() interface{} {
	return r.Attributes[r.Resource.PrimaryKey]
}

// Get returns an attribute value
func (r *Record) Get(name string) interface{} {
	return r.Attributes[name]
}

// Set assigns an attribute value
func (r *Record) Set(name string, value interface{}) {
	r.Attributes[name] = value
}

// Exists returns true once the record has been loaded from or written to storage
func (r *Record) Exists() bool {
	return r.exists
}

// Dirty returns the sorted names of attributes that differ from the stored row
func (r *Record) Dirty() []string {
	var dirty []string
	for name, value := range r.Attributes {
		old, loaded := r.original[name]
		if !loaded || !sameValue(old, value) {
			dirty = append(dirty, name)
		}
	}
	sort.Strings(dirty)
	return dirty
}

// markPersisted records the current attributes as the stored state
func (r *Record) markPersisted() {
	r.exists = true
	r.original = make(map[string]interface{}, len(r.Attributes))
	for k, v := range r.Attributes {
		r.original[k] = v
	}
}

// sameValue compares attribute values, treating keys of different numeric types
// ("5" from a path, 5 from JSON) as equal.
func sameValue(a, b interface{}) bool {
	if cmp.Equal(a, b) {
		return true
	}
	if !IsScalar(a) || !IsScalar(b) {
		return false
	}
	return KeyString(a) == KeyString(b)
}

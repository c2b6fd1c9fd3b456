// Package nested holds the vocabulary shared by the nested write and nested
// validation traversals: node paths, actions, results, options and errors.
package nested

import (
	"strconv"
)

// Key is the dot-and-index path of a node inside a payload, e.g. "comments.2.author".
// The empty Key is the top level.
type Key string

// Child returns the path of an attribute below k
func (k Key) Child(attribute string) Key {
	if k == "" {
		return Key(attribute)
	}
	return k + "." + Key(attribute)
}

// Index returns the path of an array item below k
func (k Key) Index(i int) Key {
	return k.Child(strconv.Itoa(i))
}

// IsTop returns true for the top level of a payload
func (k Key) IsTop() bool {
	return k == ""
}

// String returns the path, or "(root)" for the top level
func (k Key) String() string {
	if k == "" {
		return "(root)"
	}
	return string(k)
}

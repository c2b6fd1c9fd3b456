package nested

import (
	"github.com/conduit-lang/nestwrite/internal/orm/crud"
)

// DefaultTempIDAttribute is the reserved attribute carrying a temporary id token
const DefaultTempIDAttribute = "_tmp_id"

// Action is the fate decided for one node of a payload
type Action int

const (
	// ActionDissociate drops the relation
	ActionDissociate Action = iota
	// ActionTemporary routes the node through the temporary id registry
	ActionTemporary
	// ActionLink points the relation at an existing record without writing it
	ActionLink
	// ActionCreate creates a new record
	ActionCreate
	// ActionUpdate updates an existing record
	ActionUpdate
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionDissociate:
		return "dissociate"
	case ActionTemporary:
		return "temporary"
	case ActionLink:
		return "link"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Result is the outcome of writing one node. A nil Record with Success means the
// relation was deliberately dissociated.
type Result struct {
	Record  *crud.Record
	Success bool
	Action  Action
}

// Dissociated returns the result of a dissociated node
func Dissociated() *Result {
	return &Result{Success: true, Action: ActionDissociate}
}

// Options tune both traversals
type Options struct {
	// TempIDAttribute is the reserved attribute name for temporary id tokens
	TempIDAttribute string
	// TolerateMissingRules turns a missing rules provider into an empty rule set
	TolerateMissingRules bool
}

// WithDefaults returns o with unset fields filled in
func (o Options) WithDefaults() Options {
	if o.TempIDAttribute == "" {
		o.TempIDAttribute = DefaultTempIDAttribute
	}
	return o
}

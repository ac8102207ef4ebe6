package models

import "github.com/surrealdb/entitygraph/pkg/constants"

// Role is the viewer role graph resolution filters by.
type Role string

const (
	RoleGuest Role = constants.RoleGuest
	RoleUser  Role = constants.RoleUser
	RoleSuper Role = constants.RoleSuper
)

// Children configures child expansion: either a fixed Depth or one Query
// Selector expression per depth level. The zero value disables expansion.
type Children struct {
	Depth   int
	Queries []string
}

// Limit returns the number of expansion levels.
func (c Children) Limit() int {
	if len(c.Queries) > 0 {
		return len(c.Queries)
	}
	if c.Depth < 0 {
		return 0
	}
	return c.Depth
}

// Enabled reports whether any expansion is requested.
func (c Children) Enabled() bool {
	return c.Limit() > 0
}

// ChildDepth expands every reference up to depth levels.
func ChildDepth(depth int) Children {
	return Children{Depth: depth}
}

// ChildQueries expands the references selected by one expression per level.
func ChildQueries(queries ...string) Children {
	return Children{Queries: queries}
}

// Parents configures reverse-reference expansion at depth 0.
type Parents struct {
	Enabled bool
	Queries []string
}

// WithParents enables parent expansion, optionally projecting each parent.
func WithParents(queries ...string) Parents {
	return Parents{Enabled: true, Queries: queries}
}

// ReadOptions is the option object accepted by list, read, search and find.
type ReadOptions struct {
	Select   string
	Children Children
	Parents  Parents
	Role     Role
}

// IsGuest reports whether the options describe an anonymous viewer. An unset
// role is treated as guest.
func (o ReadOptions) IsGuest() bool {
	return o.Role == RoleGuest || o.Role == ""
}

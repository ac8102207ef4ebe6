package constants

// Document types
const (
	TypeEntity   = "entity"
	TypeOption   = "option"
	TypeFile     = "file"
	TypeSchema   = "schema"
	TypeTaxonomy = "taxonomy"
)

// Roles
const (
	RoleGuest = "guest"
	RoleUser  = "user"
	RoleSuper = "super"
)

// Design documents, views and indexes served by every document store adapter.
const (
	DesignEntity = "entity"

	ViewChildren = "children"
	ViewSchema   = "schema"
	ViewTrashed  = "trashed"
	ViewTaxonomy = "taxonomy"

	IndexSearch = "search"
)

// PrivatePrefix marks internal attributes (`_id`, `_rev`, ...) that are never spliced
// into references during child expansion.
const PrivatePrefix = "_"

// Limits
const (
	DefaultChunkSize   = 1000
	DefaultConcurrency = 4
	MaxSearchPage      = 200
	DefaultFetchBatch  = 200
)

// TrashedSelector is the id list value that selects every soft-deleted entity on delete.
const TrashedSelector = "trashed"

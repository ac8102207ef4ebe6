// Package entitygraph is the entity engine of a headless content store.
//
// Entities are documents with schema-typed fields. Some fields hold
// references to other entities, which embed a copy of the referenced entity's
// title, slug, published flag and thumbnail.
//
// # Writes
//
// [Client.Create] and [Client.Update] normalize entities against their schema
// before writing: title, slug and thumbnail are derived, timestamps stamped
// and field values converted to their storage form. Documents are written in
// chunks with optimistic concurrency. After an update, changes to the copied
// attributes are propagated to every entity that references the updated one.
// [Client.Delete] trashes entities, or removes them for good after unlinking
// the references other entities hold to them.
//
// Write paths return a *[constants.Error] carrying a numeric code.
//
// # Reads
//
// [Client.Read], [Client.List], [Client.Search] and [Client.Find] accept
// [models.ReadOptions]. Children expansion replaces reference stubs with the
// referenced entities, up to a fixed depth or following one selector
// expression per level. Parents expansion attaches the entities referencing
// each result. The viewer role hides unpublished entities from guests, and
// a final selector reshapes each result.
//
// References that cannot be resolved are dropped instead of failing the read.
//
// # Stores
//
// The client runs against any [docstore.Store]. The
// [github.com/surrealdb/entitygraph/pkg/docstore/memory] adapter keeps
// everything in process; the
// [github.com/surrealdb/entitygraph/pkg/docstore/surrealstore] adapter keeps
// documents in SurrealDB.
package entitygraph

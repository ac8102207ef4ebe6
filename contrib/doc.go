// Package contrib holds tooling built on top of the entitygraph client.
//
// [github.com/surrealdb/entitygraph/contrib/entitydump] writes a store to a
// JSON lines file with a checksummed manifest and restores it.
// [github.com/surrealdb/entitygraph/contrib/testenv] provides the stores and
// logger the package tests run against.
//
// Packages under contrib may change without notice.
package contrib

// Package testenv provides document stores for tests.
//
// NewStore returns an in-memory store unless ENTITYGRAPH_SURREALDB_URL is
// set, in which case it connects to that SurrealDB instance and gives every
// test its own tables.
package testenv

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/surrealdb/entitygraph/config"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/docstore/memory"
	"github.com/surrealdb/entitygraph/pkg/docstore/surrealstore"
)

const (
	// EnvSurrealDBURL is the SurrealDB endpoint integration tests run against.
	EnvSurrealDBURL = config.EnvPrefix + "SURREALDB_URL"

	DefaultNamespace = "entitygraph_test"
	DefaultDatabase  = "entitygraph_test"
)

// SurrealDBURL returns the configured endpoint, or "" when integration tests
// are disabled.
func SurrealDBURL() string {
	return config.GetEnvOrDefault(EnvSurrealDBURL, "")
}

// NewStore returns a fresh store for t.
func NewStore(t testing.TB, opts ...memory.Option) docstore.Store {
	t.Helper()
	if SurrealDBURL() == "" {
		return memory.New(opts...)
	}
	return NewSurrealStore(t)
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9_]+`)

// tableName derives a table name unique to the running test.
func tableName(t testing.TB, suffix string) string {
	name := unsafeChars.ReplaceAllString(strings.ToLower(t.Name()), "_")
	return "t_" + strings.Trim(name, "_") + "_" + suffix
}

// NewSurrealStore connects to the SurrealDB instance named by
// ENTITYGRAPH_SURREALDB_URL, skipping the test when it is unset. The tables
// are reset before the test and dropped after it.
func NewSurrealStore(t testing.TB) *surrealstore.Store {
	t.Helper()
	url := SurrealDBURL()
	if url == "" {
		t.Skipf("%s is not set", EnvSurrealDBURL)
	}

	ctx := context.Background()
	s, err := surrealstore.Open(ctx, surrealstore.Config{
		URL:       url,
		Namespace: config.GetEnvOrDefault(config.EnvPrefix+"SURREALDB_NAMESPACE", DefaultNamespace),
		Database:  config.GetEnvOrDefault(config.EnvPrefix+"SURREALDB_DATABASE", DefaultDatabase),
		Username:  config.GetEnvOrDefault(config.EnvPrefix+"SURREALDB_USERNAME", "root"),
		Password:  config.GetEnvOrDefault(config.EnvPrefix+"SURREALDB_PASSWORD", "root"),
	}, surrealstore.WithTables(tableName(t, "doc"), tableName(t, "rev")))
	if err != nil {
		t.Fatalf("open surrealdb store: %v", err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset tables: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Drop(ctx); err != nil {
			t.Logf("drop tables: %v", err)
		}
		_ = s.Close(ctx)
	})
	return s
}

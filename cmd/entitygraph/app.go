package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/surrealdb/entitygraph"
	"github.com/surrealdb/entitygraph/config"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/docstore/memory"
	"github.com/surrealdb/entitygraph/pkg/docstore/surrealstore"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/metrics"
	"github.com/surrealdb/entitygraph/pkg/schema"
)

// app holds what a command needs once the configuration is loaded.
type app struct {
	open func(ctx context.Context, conf *config.Config, log logger.Logger) (docstore.Store, error)

	conf     *config.Config
	logData  *logger.LogData
	store    docstore.Store
	client   *entitygraph.Client
	registry *prometheus.Registry
	stop     context.CancelFunc
}

func newApp() *app {
	return &app{open: openStore}
}

// openStore connects the store named by conf.Store.Driver.
func openStore(ctx context.Context, conf *config.Config, log logger.Logger) (docstore.Store, error) {
	switch conf.Store.Driver {
	case config.DriverMemory:
		return memory.New(memory.WithLogger(log)), nil
	case config.DriverSurrealDB:
		sdb := conf.Store.SurrealDB
		return surrealstore.Open(ctx, surrealstore.Config{
			URL:       sdb.URL,
			Namespace: sdb.Namespace,
			Database:  sdb.Database,
			Username:  sdb.Username,
			Password:  sdb.Password,
		}, surrealstore.WithLogger(log))
	default:
		return nil, fmt.Errorf("unknown store driver %q", conf.Store.Driver)
	}
}

// start loads the configuration at path and builds the client.
func (a *app) start(ctx context.Context, path string) error {
	conf, err := config.Load(path)
	if err != nil {
		return err
	}
	a.conf = conf

	build := logger.New().Level(conf.Log.Level)
	if conf.Log.Path != "" {
		build = build.FromPath(conf.Log.Path)
	}
	if a.logData, err = build.Make(); err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	log := a.logData.Handler()

	if a.store, err = a.open(ctx, conf, log); err != nil {
		return fmt.Errorf("failed to open %s store: %w", conf.Store.Driver, err)
	}

	a.registry = prometheus.NewRegistry()
	opts := []entitygraph.Option{
		entitygraph.WithLogger(log),
		entitygraph.WithMetrics(metrics.New(a.registry)),
		entitygraph.WithChunkSize(conf.Bulk.ChunkSize),
		entitygraph.WithConcurrency(conf.Bulk.Concurrency),
		entitygraph.WithPageSize(conf.Search.PageSize),
		entitygraph.WithFetchBatch(conf.Resolver.FetchBatch),
	}
	if conf.Schemas.Dir != "" {
		source, err := a.fileSchemas(ctx, log)
		if err != nil {
			return err
		}
		opts = append(opts, entitygraph.WithSchemas(source))
	}
	a.client = entitygraph.New(a.store, opts...)
	return nil
}

// fileSchemas reads the schema directory through an LRU cache that is purged
// on every reload.
func (a *app) fileSchemas(ctx context.Context, log logger.Logger) (schema.Source, error) {
	var cache *schema.Cache
	files, err := schema.NewFileSource(a.conf.Schemas.Dir,
		schema.WithPattern(a.conf.Schemas.Pattern),
		schema.WithFileLogger(log),
		schema.OnReload(func([]string) {
			if cache != nil {
				cache.Purge()
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	if cache, err = schema.NewCache(files, a.conf.Schemas.CacheSize); err != nil {
		return nil, err
	}

	if a.conf.Schemas.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		a.stop = cancel
		if err := files.Watch(watchCtx); err != nil {
			return nil, fmt.Errorf("failed to watch schemas: %w", err)
		}
	}
	return cache, nil
}

func (a *app) close(ctx context.Context) error {
	if a.stop != nil {
		a.stop()
	}
	var err error
	if closer, ok := a.store.(docstore.Closer); ok {
		err = closer.Close(ctx)
	}
	if a.logData != nil {
		if cerr := a.logData.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

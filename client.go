package entitygraph

import (
	"context"
	"time"

	"github.com/surrealdb/entitygraph/pkg/bulk"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/fieldtype"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/metrics"
	"github.com/surrealdb/entitygraph/pkg/normalize"
	"github.com/surrealdb/entitygraph/pkg/propagate"
	"github.com/surrealdb/entitygraph/pkg/resolve"
	"github.com/surrealdb/entitygraph/pkg/schema"
	"github.com/surrealdb/entitygraph/pkg/search"
)

// Client runs entity operations against a document store.
type Client struct {
	store   docstore.Store
	types   *fieldtype.Registry
	schemas schema.Source
	files   propagate.FileRemover
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	chunkSize   int
	concurrency int
	fetchBatch  int
	pageSize    int

	normalizer *normalize.Normalizer
	writer     *bulk.Writer
	resolver   *resolve.Resolver
	searcher   *search.Searcher
	propagator *propagate.Propagator
}

type Option func(*Client)

func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithSchemas sets the schema source. By default schemas are read from the
// store.
func WithSchemas(s schema.Source) Option {
	return func(c *Client) {
		c.schemas = s
	}
}

// WithTypes sets the field type registry. The default is fieldtype.Default().
func WithTypes(r *fieldtype.Registry) Option {
	return func(c *Client) {
		c.types = r
	}
}

// WithFileRemover receives the names of media files that are no longer
// referenced after an update or a permanent delete.
func WithFileRemover(f propagate.FileRemover) Option {
	return func(c *Client) {
		c.files = f
	}
}

func WithChunkSize(n int) Option {
	return func(c *Client) {
		c.chunkSize = n
	}
}

func WithConcurrency(n int) Option {
	return func(c *Client) {
		c.concurrency = n
	}
}

func WithFetchBatch(n int) Option {
	return func(c *Client) {
		c.fetchBatch = n
	}
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		c.pageSize = n
	}
}

// WithClock replaces time.Now for modification stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New returns a Client over store.
func New(store docstore.Store, opts ...Option) *Client {
	c := &Client{
		store:       store,
		logger:      logger.Nop(),
		now:         time.Now,
		chunkSize:   constants.DefaultChunkSize,
		concurrency: constants.DefaultConcurrency,
		fetchBatch:  constants.DefaultFetchBatch,
		pageSize:    constants.MaxSearchPage,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.types == nil {
		c.types = fieldtype.Default()
	}
	if c.schemas == nil {
		c.schemas = schema.NewStoreSource(store)
	}

	c.normalizer = normalize.New(c.types, c.schemas, normalize.WithLogger(c.logger))
	c.writer = bulk.New(store,
		bulk.WithChunkSize(c.chunkSize),
		bulk.WithConcurrency(c.concurrency),
		bulk.WithLogger(c.logger),
		bulk.WithMetrics(c.metrics),
	)
	c.resolver = resolve.New(store,
		resolve.WithBatchSize(c.fetchBatch),
		resolve.WithConcurrency(c.concurrency),
		resolve.WithLogger(c.logger),
		resolve.WithMetrics(c.metrics),
	)
	c.searcher = search.New(store,
		search.WithPageSize(c.pageSize),
		search.WithLogger(c.logger),
		search.WithMetrics(c.metrics),
	)
	propagateOpts := []propagate.Option{
		propagate.WithLogger(c.logger),
		propagate.WithMetrics(c.metrics),
	}
	if c.files != nil {
		propagateOpts = append(propagateOpts, propagate.WithFileRemover(c.files))
	}
	c.propagator = propagate.New(store, c.writer, c.types, propagateOpts...)
	return c
}

// Store returns the underlying document store.
func (c *Client) Store() docstore.Store {
	return c.store
}

type actorKey struct{}

// WithActor returns a context whose writes are stamped with actor as
// createdBy and modifiedBy.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor, or "".
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

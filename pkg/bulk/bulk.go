// Package bulk writes document sets in fixed-size chunks and reconciles the
// returned revision tokens onto the written documents.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/metrics"
	"github.com/surrealdb/entitygraph/pkg/models"
)

// Writer is the bulk write coordinator.
type Writer struct {
	store       docstore.Store
	chunkSize   int
	concurrency int
	logger      logger.Logger
	metrics     *metrics.Metrics
}

// Option configures a Writer.
type Option func(*Writer)

// WithChunkSize sets the number of documents per bulk call.
func WithChunkSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.chunkSize = n
		}
	}
}

// WithConcurrency bounds the number of chunks in flight.
func WithConcurrency(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) {
		w.metrics = m
	}
}

// New returns a Writer over store.
func New(store docstore.Store, opts ...Option) *Writer {
	w := &Writer{
		store:       store,
		chunkSize:   constants.DefaultChunkSize,
		concurrency: constants.DefaultConcurrency,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Failure describes a document the store did not accept.
type Failure struct {
	Index int
	ID    string
	Err   error
}

// Result is the outcome of a chunked write. Docs are the input documents, with
// `_id` and `_rev` updated for every successful write.
type Result struct {
	Docs   []models.Document
	Failed []Failure
}

// Err summarises the failures, wrapping constants.ErrPartialBulk and each
// document's error. It is nil when every document was written.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed)+1)
	errs = append(errs, fmt.Errorf("%w: %d of %d documents", constants.ErrPartialBulk, len(r.Failed), len(r.Docs)))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.ID, f.Err))
	}
	return errors.Join(errs...)
}

// Conflicts returns the indexes of documents rejected with a stale revision.
func (r *Result) Conflicts() []int {
	var out []int
	for _, f := range r.Failed {
		if errors.Is(f.Err, constants.ErrConflict) {
			out = append(out, f.Index)
		}
	}
	return out
}

type chunk struct {
	start   int
	docs    []models.Document
	results []docstore.DocResult
	err     error
}

// ChunkedWrite writes docs in chunks, dispatching up to the configured number
// of chunks concurrently. Per-document failures are reported in the result
// and leave the document's revision untouched. The returned error joins the
// errors of chunks that failed as a whole; their documents are also reported
// as failures.
func (w *Writer) ChunkedWrite(ctx context.Context, docs []models.Document) (*Result, error) {
	res := &Result{Docs: docs}
	if len(docs) == 0 {
		return res, nil
	}

	var chunks []*chunk
	for start := 0; start < len(docs); start += w.chunkSize {
		end := min(start+w.chunkSize, len(docs))
		chunks = append(chunks, &chunk{start: start, docs: docs[start:end]})
	}

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, c := range chunks {
		g.Go(func() error {
			begin := time.Now()
			c.results, c.err = w.store.Bulk(ctx, c.docs)
			if c.err == nil && len(c.results) != len(c.docs) {
				c.err = fmt.Errorf("bulk returned %d results for %d documents", len(c.results), len(c.docs))
			}
			failed := 0
			for _, r := range c.results {
				if !r.OK() {
					failed++
				}
			}
			if c.err != nil {
				failed = len(c.docs)
			}
			w.metrics.ObserveBulkChunk(len(c.docs)-failed, failed, time.Since(begin))
			return nil
		})
	}
	_ = g.Wait()

	var chunkErrs []error
	for _, c := range chunks {
		if c.err != nil {
			w.logger.Error("bulk chunk failed", "offset", c.start, "size", len(c.docs), "error", c.err)
			chunkErrs = append(chunkErrs, fmt.Errorf("chunk at %d: %w", c.start, c.err))
			for i, doc := range c.docs {
				res.Failed = append(res.Failed, Failure{Index: c.start + i, ID: models.DocID(doc), Err: c.err})
			}
			continue
		}
		for i, r := range c.results {
			doc := c.docs[i]
			if !r.OK() {
				res.Failed = append(res.Failed, Failure{Index: c.start + i, ID: r.ID, Err: resultErr(r)})
				continue
			}
			doc["_id"] = r.ID
			doc["_rev"] = r.Rev
		}
	}

	if len(res.Failed) > 0 {
		w.logger.Warn("bulk write incomplete", "failed", len(res.Failed), "total", len(docs))
	}
	return res, errors.Join(chunkErrs...)
}

func resultErr(r docstore.DocResult) error {
	if r.Err != nil {
		return r.Err
	}
	return errors.New(r.Error)
}

// CreateOrUpdate inserts doc. When the store reports a stale revision it
// re-reads the current revision, stamps it onto doc and retries exactly once.
// On success doc carries the new `_id` and `_rev`.
func (w *Writer) CreateOrUpdate(ctx context.Context, doc models.Document) (docstore.DocResult, error) {
	res, err := w.store.Insert(ctx, doc)
	if errors.Is(err, constants.ErrConflict) {
		id := models.DocID(doc)
		w.logger.Warn("revision conflict, retrying", "id", id)

		current, getErr := w.store.Get(ctx, id)
		switch {
		case errors.Is(getErr, constants.ErrNotFound):
			delete(doc, "_rev")
		case getErr != nil:
			return res, fmt.Errorf("refetch %s: %w", id, getErr)
		default:
			doc["_rev"] = current["_rev"]
		}

		res, err = w.store.Insert(ctx, doc)
		w.metrics.Conflict("insert", err == nil)
	}
	if err != nil {
		return res, err
	}
	doc["_id"] = res.ID
	doc["_rev"] = res.Rev
	return res, nil
}

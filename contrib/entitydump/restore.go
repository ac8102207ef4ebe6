package entitydump

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/surrealdb/entitygraph/pkg/bulk"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/models"
)

const (
	// restoreBatch is the number of lines buffered before a bulk write.
	restoreBatch = 5000
	maxLineSize  = 64 << 20
)

// RestoreResult reports what a restore wrote.
type RestoreResult struct {
	Restored int
	Failed   []bulk.Failure
}

// Err summarises the failures, or returns nil.
func (r *RestoreResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := []error{fmt.Errorf("%w: %d documents not restored", constants.ErrPartialBulk, len(r.Failed))}
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.ID, f.Err))
	}
	return errors.Join(errs...)
}

// Restore reads JSON lines from r and writes them through writer. Dumped
// revisions are discarded; documents that already exist are overwritten.
func Restore(ctx context.Context, writer *bulk.Writer, r io.Reader, opts ...Option) (*RestoreResult, error) {
	o := newOptions(opts)
	res := &RestoreResult{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var batch []models.Document
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := restoreBatchDocs(ctx, writer, batch, res)
		batch = batch[:0]
		return err
	}

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var doc models.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if models.DocID(doc) == "" {
			return res, fmt.Errorf("line %d: document has no _id", line)
		}
		delete(doc, "_rev")
		batch = append(batch, doc)

		if len(batch) >= restoreBatch {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("failed to read dump: %w", err)
	}
	if err := flush(); err != nil {
		return res, err
	}

	o.logger.Info("restore finished", "restored", res.Restored, "failed", len(res.Failed))
	return res, nil
}

func restoreBatchDocs(ctx context.Context, writer *bulk.Writer, docs []models.Document, res *RestoreResult) error {
	written, err := writer.ChunkedWrite(ctx, docs)
	if err != nil {
		return err
	}

	conflicts := map[int]bool{}
	for _, i := range written.Conflicts() {
		conflicts[i] = true
	}
	for _, f := range written.Failed {
		if conflicts[f.Index] {
			continue
		}
		res.Failed = append(res.Failed, f)
	}
	res.Restored += len(docs) - len(written.Failed)

	for i := range conflicts {
		if _, err := writer.CreateOrUpdate(ctx, docs[i]); err != nil {
			res.Failed = append(res.Failed, bulk.Failure{Index: i, ID: models.DocID(docs[i]), Err: err})
			continue
		}
		res.Restored++
	}
	return nil
}

// RestoreFile checks the dump at path against its manifest and restores it.
func RestoreFile(ctx context.Context, writer *bulk.Writer, path string, opts ...Option) (*RestoreResult, error) {
	manifest, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	if err := verify(path, manifest); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump file: %w", err)
	}
	defer f.Close()

	res, err := Restore(ctx, writer, f, opts...)
	if err != nil {
		return res, err
	}
	return res, res.Err()
}

func verify(path string, manifest *Manifest) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open dump file: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return fmt.Errorf("failed to hash dump file: %w", err)
	}
	if sum := hex.EncodeToString(hash.Sum(nil)); sum != manifest.SHA256 {
		return fmt.Errorf("checksum mismatch for %s: manifest %s, file %s", path, manifest.SHA256, sum)
	}
	return nil
}

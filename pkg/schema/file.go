package schema

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/models"
)

// DefaultPattern matches every yaml file below the schema directory.
const DefaultPattern = "**/*.yaml"

const debounce = 200 * time.Millisecond

// FileSource loads one schema per yaml file from a directory.
type FileSource struct {
	*Static

	dir      string
	pattern  string
	logger   logger.Logger
	onReload func(slugs []string)
}

type FileOption func(*FileSource)

// WithPattern sets the doublestar glob, relative to the directory, selecting
// schema files.
func WithPattern(pattern string) FileOption {
	return func(f *FileSource) {
		if pattern != "" {
			f.pattern = pattern
		}
	}
}

func WithFileLogger(l logger.Logger) FileOption {
	return func(f *FileSource) {
		f.logger = l
	}
}

// OnReload registers a callback run after every successful reload.
func OnReload(fn func(slugs []string)) FileOption {
	return func(f *FileSource) {
		f.onReload = fn
	}
}

// NewFileSource loads the schemas found in dir.
func NewFileSource(dir string, opts ...FileOption) (*FileSource, error) {
	f := &FileSource{
		Static:  NewStatic(),
		dir:     dir,
		pattern: DefaultPattern,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.Load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Load re-reads every schema file. On error the previous schemas stay in place.
func (f *FileSource) Load() error {
	paths, err := doublestar.FilepathGlob(filepath.Join(f.dir, f.pattern))
	if err != nil {
		return fmt.Errorf("glob schemas in %s: %w", f.dir, err)
	}

	schemas := make([]*models.Schema, 0, len(paths))
	seen := map[string]string{}
	for _, path := range paths {
		schema, err := readSchema(path)
		if err != nil {
			return err
		}
		if prev, dup := seen[schema.Slug]; dup {
			return fmt.Errorf("schema %s defined in both %s and %s", schema.Slug, prev, path)
		}
		seen[schema.Slug] = path
		schemas = append(schemas, schema)
	}

	f.Replace(schemas...)
	f.logger.Info("schemas loaded", "dir", f.dir, "count", len(schemas))
	if f.onReload != nil {
		f.onReload(f.Slugs())
	}
	return nil
}

func readSchema(path string) (*models.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	var schema models.Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	if schema.Slug == "" {
		return nil, fmt.Errorf("schema %s has no slug", path)
	}
	for i, field := range schema.Fields {
		if field.Slug == "" || field.Type == "" {
			return nil, fmt.Errorf("schema %s field %d needs a slug and a type", schema.Slug, i)
		}
	}
	return &schema, nil
}

// Watch reloads the schemas whenever a matching file changes, until ctx is
// done. It returns once the watcher is running.
func (f *FileSource) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("schema watcher: %w", err)
	}
	err = filepath.WalkDir(f.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", f.dir, err)
	}

	go f.watch(ctx, w)
	return nil
}

func (f *FileSource) watch(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.Add(event.Name); err != nil {
						f.logger.Warn("watch new schema directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if f.matches(event.Name) {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Error("schema watcher", "error", err)
		case <-timer.C:
			if err := f.Load(); err != nil {
				f.logger.Error("reloading schemas", "dir", f.dir, "error", err)
			}
		}
	}
}

func (f *FileSource) matches(path string) bool {
	rel, err := filepath.Rel(f.dir, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(f.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// Package file provides a principals.Store loaded from a JSON document on
// disk. The document is an array of objects:
//
//	[{"id": 42, "name": "Ann", "email": "ann@example.com"}]
//
// Numeric and string ids are both accepted. Watch keeps the store in sync with
// the file using fsnotify; a reload that fails to parse keeps the previous
// snapshot so a half-written file never empties the store.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/authguard/principals"
	"github.com/ggoodman/authguard/principals/memory"
)

type record struct {
	ID        any       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a principals.Store whose contents mirror a JSON file.
type Store struct {
	path string
	mem  *memory.Store
	log  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report reload outcomes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open reads path and returns a Store holding its principals.
func Open(path string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve principals file: %w", err)
	}
	s := &Store{path: abs, mem: memory.New(), log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// FindByID implements principals.Store.
func (s *Store) FindByID(ctx context.Context, id principals.ID) (principals.Principal, error) {
	return s.mem.FindByID(ctx, id)
}

// Reload re-reads the file. On error the current contents are left untouched.
func (s *Store) Reload() error {
	ps, err := load(s.path)
	if err != nil {
		return err
	}
	s.mem.Replace(ps)
	return nil
}

func load(path string) ([]principals.Principal, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read principals file: %w", err)
	}
	var recs []record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("decode principals file: %w", err)
	}
	out := make([]principals.Principal, 0, len(recs))
	for i, r := range recs {
		id, err := principals.ParseID(r.ID)
		if err != nil {
			return nil, fmt.Errorf("principals file entry %d: %w", i, err)
		}
		out = append(out, principals.Principal{ID: id, Name: r.Name, Email: r.Email, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

// Watch reloads the store whenever the file changes until ctx is done. The
// parent directory is watched so that editors replacing the file via rename
// are observed.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify unavailable: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch principals dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				s.log.WarnContext(ctx, "principals.reload.fail", slog.String("path", s.path), slog.String("err", err.Error()))
				continue
			}
			s.log.InfoContext(ctx, "principals.reload.ok", slog.String("path", s.path), slog.Int("count", s.mem.Len()))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.DebugContext(ctx, "fsnotify error", slog.String("err", err.Error()))
		}
	}
}

// Compile-time interface check
var _ principals.Store = (*Store)(nil)

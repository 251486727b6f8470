// Package spool holds transient print documents on local disk.
//
// Every document lives in the store's scratch directory only for the
// duration of one dispatch: Persist writes it under a name that is unique per
// call, Release removes it. Names combine a nanosecond timestamp with a random
// UUID and files are created with O_EXCL, so two concurrent jobs can never end
// up sharing a file even when their clocks read the same instant.
package spool

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

const (
	filePrefix = "tspl-"
	fileSuffix = ".tspl"
)

// Document is a persisted payload awaiting dispatch.
type Document struct {
	ID     string
	Path   string
	Size   int
	Digest string
}

// SweepReport summarizes a Sweep run.
type SweepReport struct {
	Removed int
}

// Store writes documents into a scratch directory and removes them again.
type Store struct {
	dir    string
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for swallowed release failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the timestamp source used in document names.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a store rooted at dir, creating the directory if needed.
func NewStore(dir string, opts ...Option) (*Store, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("spool directory is empty")
	}

	s := &Store{
		dir:    filepath.Clean(trimmed),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	return s, nil
}

// Dir returns the scratch directory.
func (s *Store) Dir() string { return s.dir }

// Persist writes content to a freshly named file and returns its handle.
func (s *Store) Persist(ctx context.Context, content []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	id := s.newID()
	name := fmt.Sprintf("%s%d-%s%s", filePrefix, s.now().UnixNano(), id, fileSuffix)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Document{}, fmt.Errorf("create document: %w", err)
	}

	n, werr := f.Write(content)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return Document{}, fmt.Errorf("write document %s: %w", name, werr)
	}

	return Document{
		ID:     id,
		Path:   path,
		Size:   n,
		Digest: Digest(content),
	}, nil
}

// Release removes the document. Failures are logged and never returned.
func (s *Store) Release(doc Document) {
	if doc.Path == "" {
		return
	}
	if err := os.Remove(doc.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove spool document", "path", doc.Path, "error", err)
	}
}

// Sweep removes documents older than olderThan left behind by a previous run.
func (s *Store) Sweep(ctx context.Context, olderThan time.Duration) (SweepReport, error) {
	if err := ctx.Err(); err != nil {
		return SweepReport{}, err
	}
	if olderThan <= 0 {
		return SweepReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return SweepReport{}, nil
	}
	if err != nil {
		return SweepReport{}, fmt.Errorf("read spool directory: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	report := SweepReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.Type().IsRegular() || !isDocumentName(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return report, fmt.Errorf("read spool entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return report, fmt.Errorf("remove stale document %q: %w", entry.Name(), err)
		}
		report.Removed++
	}

	return report, nil
}

// Pending lists document files currently present in the spool directory.
func (s *Store) Pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read spool directory: %w", err)
	}
	var out []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && isDocumentName(entry.Name()) {
			out = append(out, filepath.Join(s.dir, entry.Name()))
		}
	}
	return out, nil
}

func isDocumentName(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}

// Digest returns a short BLAKE3 fingerprint of content for logs and events.
func Digest(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:8])
}

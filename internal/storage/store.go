// Package storage persists the documents a storage node owns. Every file is
// kept as three siblings in the data directory: the canonical serialisation
// under the bare filename, a YAML metadata sidecar with the .meta suffix, and
// an optional .backup snapshot consumed by UNDO.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/lexfs/lexfs/internal/document"
	"github.com/lexfs/lexfs/internal/wire"
)

var (
	ErrFileExists   = errors.New("file already exists")
	ErrFileNotFound = errors.New("file not found")
	ErrNoBackup     = errors.New("no backup available")
	ErrStorageFull  = errors.New("storage full")
	ErrFileTooLarge = errors.New("file too large")
	ErrBadFilename  = errors.New("invalid filename")
)

const (
	metaSuffix   = ".meta"
	backupSuffix = ".backup"
)

// Store owns a data directory. All operations are serialised by one mutex;
// contention is negligible at the file counts a single node carries.
type Store struct {
	mu  sync.Mutex
	dir string

	// now is swapped out by tests.
	now func() time.Time
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Create materialises an empty document plus metadata.
func (s *Store) Create(name, owner string) error {
	if !wire.ValidFilename(name) {
		return ErrBadFilename
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(name)); err == nil {
		return ErrFileExists
	}

	names, err := s.list()
	if err != nil {
		return err
	}
	if len(names) >= wire.MaxFilesPerNode {
		return ErrStorageFull
	}

	if err := atomic.WriteFile(s.path(name), bytes.NewReader(nil)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	now := s.now()
	return s.saveMeta(Metadata{
		Filename: name,
		Owner:    owner,
		Created:  now,
		Modified: now,
		Accessed: now,
	})
}

// Read returns the serialised content and touches the access time.
func (s *Store) Read(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := s.read(name)
	if err != nil {
		return "", err
	}

	if m, err := s.loadMeta(name); err == nil {
		m.Accessed = s.now()
		_ = s.saveMeta(m)
	}
	return content, nil
}

func (s *Store) read(name string) (string, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrFileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

// Load parses the stored content into the sentence model.
func (s *Store) Load(name string) (*document.Document, error) {
	content, err := s.Read(name)
	if err != nil {
		return nil, err
	}
	return document.Parse(content), nil
}

// Snapshot captures the current content as the UNDO backup. Called when a
// write session opens, so the backup always holds the pre-edit image.
func (s *Store) Snapshot(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := s.read(name)
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path(name)+backupSuffix, strings.NewReader(content))
}

// Commit persists doc and refreshes the metadata counters and modified time.
func (s *Store) Commit(name string, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content := doc.Serialize()
	if len(content) > wire.MaxDocumentLen {
		return ErrFileTooLarge
	}

	if _, err := os.Stat(s.path(name)); errors.Is(err, os.ErrNotExist) {
		return ErrFileNotFound
	}

	if err := atomic.WriteFile(s.path(name), strings.NewReader(content)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return s.refreshMeta(name, content)
}

// Undo restores the backup snapshot and consumes it: a second Undo without an
// intervening write finds nothing to restore.
func (s *Store) Undo(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.path(name) + backupSuffix
	data, err := os.ReadFile(backup)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoBackup
	}
	if err != nil {
		return fmt.Errorf("read backup for %s: %w", name, err)
	}

	if _, err := os.Stat(s.path(name)); errors.Is(err, os.ErrNotExist) {
		return ErrFileNotFound
	}

	if err := atomic.WriteFile(s.path(name), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	if err := s.refreshMeta(name, string(data)); err != nil {
		return err
	}
	return os.Remove(backup)
}

// Delete removes content, metadata, and any snapshot.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrFileNotFound
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	_ = os.Remove(s.path(name) + metaSuffix)
	_ = os.Remove(s.path(name) + backupSuffix)
	return nil
}

// List returns the stored filenames, sidecars excluded, in directory order.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *Store) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasSuffix(n, metaSuffix) || strings.HasSuffix(n, backupSuffix) {
			continue
		}
		names = append(names, n)
	}
	return names, nil
}

// Exists reports whether the file is present.
func (s *Store) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Info returns the file's metadata without touching timestamps.
func (s *Store) Info(name string) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadMeta(name)
}

// refreshMeta recomputes the counters after content changed.
func (s *Store) refreshMeta(name, content string) error {
	m, err := s.loadMeta(name)
	if err != nil {
		return err
	}

	st := document.ComputeStats(content)
	m.Size = len(content)
	m.Words = st.Words
	m.Chars = st.Chars
	m.Sentences = st.Sentences
	m.Modified = s.now()
	return s.saveMeta(m)
}

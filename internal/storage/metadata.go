package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// Metadata is the per-file sidecar record.
type Metadata struct {
	Filename  string    `yaml:"filename"`
	Owner     string    `yaml:"owner"`
	Size      int       `yaml:"size"`
	Words     int       `yaml:"words"`
	Chars     int       `yaml:"characters"`
	Sentences int       `yaml:"sentences"`
	Created   time.Time `yaml:"created"`
	Modified  time.Time `yaml:"modified"`
	Accessed  time.Time `yaml:"accessed"`
}

const infoTimeFormat = "2006-01-02 15:04:05"

// Block renders the INFO response body. The line labels are parsed by
// clients; keep them stable.
func (m Metadata) Block() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filename: %s\n", m.Filename)
	fmt.Fprintf(&b, "Owner: %s\n", m.Owner)
	fmt.Fprintf(&b, "Size: %d bytes\n", m.Size)
	fmt.Fprintf(&b, "Words: %d\n", m.Words)
	fmt.Fprintf(&b, "Characters: %d\n", m.Chars)
	fmt.Fprintf(&b, "Sentences: %d\n", m.Sentences)
	fmt.Fprintf(&b, "Created: %s\n", m.Created.Format(infoTimeFormat))
	fmt.Fprintf(&b, "Modified: %s\n", m.Modified.Format(infoTimeFormat))
	fmt.Fprintf(&b, "Accessed: %s", m.Accessed.Format(infoTimeFormat))
	return b.String()
}

func (s *Store) metaPath(name string) string {
	return s.path(name) + metaSuffix
}

func (s *Store) loadMeta(name string) (Metadata, error) {
	data, err := os.ReadFile(s.metaPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return Metadata{}, ErrFileNotFound
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata for %s: %w", name, err)
	}

	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata for %s: %w", name, err)
	}
	return m, nil
}

func (s *Store) saveMeta(m Metadata) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", m.Filename, err)
	}
	if err := atomic.WriteFile(s.metaPath(m.Filename), strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("write metadata for %s: %w", m.Filename, err)
	}
	return nil
}

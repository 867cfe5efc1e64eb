package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfs/lexfs/internal/document"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestCreateAndRead(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Create("notes.txt", "alice"))

	content, err := s.Read("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "", content)

	m, err := s.Info("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", m.Filename)
	assert.Equal(t, "alice", m.Owner)
	assert.Equal(t, 0, m.Size)
}

func TestCreateDuplicate(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Create("a.txt", "alice"))
	assert.ErrorIs(t, s.Create("a.txt", "bob"), ErrFileExists)
}

func TestCreateInvalidName(t *testing.T) {
	s := newTestStore(t)

	assert.ErrorIs(t, s.Create("", "alice"), ErrBadFilename)
	assert.ErrorIs(t, s.Create("a/b", "alice"), ErrBadFilename)
	assert.ErrorIs(t, s.Create(`a*b`, "alice"), ErrBadFilename)
}

func TestCommitUpdatesMetadata(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("a.txt", "alice"))

	doc := document.Parse("Hello world. Bye!")
	require.NoError(t, s.Commit("a.txt", doc))

	content, err := s.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello world.\nBye!", content)

	m, err := s.Info("a.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, m.Words)
	assert.Equal(t, 2, m.Sentences)
	assert.Equal(t, len(content), m.Size)
	assert.Equal(t, len(content), m.Chars)
}

func TestCommitMissingFile(t *testing.T) {
	s := newTestStore(t)
	err := s.Commit("ghost.txt", document.Parse("x."))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestCommitTooLarge(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("big.txt", "alice"))

	doc := document.Parse(strings.Repeat("word ", 8*1024))
	assert.ErrorIs(t, s.Commit("big.txt", doc), ErrFileTooLarge)
}

func TestUndoRestoresSnapshot(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("a.txt", "alice"))
	require.NoError(t, s.Commit("a.txt", document.Parse("before edit.")))

	// A write session snapshots the pre-edit image, then commits.
	require.NoError(t, s.Snapshot("a.txt"))
	require.NoError(t, s.Commit("a.txt", document.Parse("after edit.")))

	require.NoError(t, s.Undo("a.txt"))
	content, err := s.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "before edit.", content)

	// The snapshot is consumed: no chain.
	assert.ErrorIs(t, s.Undo("a.txt"), ErrNoBackup)
}

func TestUndoWithoutSnapshot(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("a.txt", "alice"))
	assert.ErrorIs(t, s.Undo("a.txt"), ErrNoBackup)
}

func TestDeleteRemovesSidecars(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("a.txt", "alice"))
	require.NoError(t, s.Snapshot("a.txt"))

	require.NoError(t, s.Delete("a.txt"))

	assert.False(t, s.Exists("a.txt"))
	_, err := s.Info("a.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.ErrorIs(t, s.Delete("a.txt"), ErrFileNotFound)

	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestListSkipsSidecars(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("a.txt", "alice"))
	require.NoError(t, s.Create("b.txt", "bob"))
	require.NoError(t, s.Snapshot("a.txt"))

	names, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestReadTouchesAccessTime(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.Create("a.txt", "alice"))

	s.now = func() time.Time { return base.Add(time.Hour) }
	_, err := s.Read("a.txt")
	require.NoError(t, err)

	m, err := s.Info("a.txt")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), m.Accessed.UTC())
	assert.Equal(t, base, m.Created.UTC())
}

func TestMetadataBlockLabels(t *testing.T) {
	m := Metadata{
		Filename:  "a.txt",
		Owner:     "alice",
		Size:      12,
		Words:     2,
		Chars:     12,
		Sentences: 1,
		Created:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Modified:  time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Accessed:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	block := m.Block()
	lines := strings.Split(block, "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "Filename: a.txt", lines[0])
	assert.Equal(t, "Owner: alice", lines[1])
	assert.Equal(t, "Size: 12 bytes", lines[2])
	assert.Equal(t, "Words: 2", lines[3])
	assert.Equal(t, "Characters: 12", lines[4])
	assert.Equal(t, "Sentences: 1", lines[5])
	assert.Equal(t, "Created: 2026-03-01 10:00:00", lines[6])
	assert.Equal(t, "Accessed: 2026-03-01 12:00:00", lines[8])
}

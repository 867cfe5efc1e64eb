// Package server implements the client-facing command loop of a storage
// node. Each accepted connection runs its own session reading framed commands
// until the peer disconnects or sends QUIT.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/lexfs/lexfs/internal/document"
	"github.com/lexfs/lexfs/internal/logger"
	"github.com/lexfs/lexfs/internal/metrics"
	"github.com/lexfs/lexfs/internal/storage"
	"github.com/lexfs/lexfs/internal/storage/lock"
	"github.com/lexfs/lexfs/internal/wire"
	"github.com/lexfs/lexfs/pkg/adapter"
)

// Notifier pushes file events toward the name node. Implementations must be
// safe for concurrent use; failures are logged and otherwise ignored so a
// control-channel outage never blocks client traffic.
type Notifier interface {
	FileCreated(name string)
	FileUpdated(name string)
	FileDeleted(name string)
}

// Handler bundles the shared state behind every client session.
type Handler struct {
	Store    *storage.Store
	Locks    *lock.Table
	Notifier Notifier
	Log      *slog.Logger
	Metrics  *metrics.StorageNodeMetrics

	// StreamDelay overrides the inter-word pacing of STREAM; zero means the
	// protocol default.
	StreamDelay time.Duration
}

func (h *Handler) streamDelay() time.Duration {
	if h.StreamDelay > 0 {
		return h.StreamDelay
	}
	return wire.StreamDelay
}

// Factory adapts Handler to the generic TCP server.
type Factory struct {
	Handler *Handler

	// Timeout bounds each write toward the client. Reads block until the
	// peer speaks: an idle write session keeps its lock and its unsaved
	// edits until the client commits, aborts, or disconnects.
	Timeout time.Duration
}

func (f *Factory) NewConnection(raw net.Conn) adapter.ConnectionHandler {
	conn := wire.NewConn(raw, f.Timeout)
	conn.SetReadTimeout(0)
	return &session{
		conn: conn,
		h:    f.Handler,
	}
}

// session serves one client connection.
type session struct {
	conn *wire.Conn
	h    *Handler

	// users that opened write sessions on this connection; any locks they
	// still hold are dropped on teardown.
	users []string
}

func (s *session) Serve(ctx context.Context) {
	defer s.conn.Close()
	defer s.releaseLocks()

	log := s.h.Log.With(logger.ClientIP(s.conn.RemoteAddr().String()))
	ctx = logger.WithLogger(ctx, log)

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := s.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				log.Debug("session closed", logger.Err(err))
			}
			return
		}
		if msg.Verb == "" {
			continue
		}

		start := time.Now()
		done := s.dispatch(ctx, msg)
		s.h.Metrics.ObserveCommand(msg.Verb, time.Since(start))

		if done {
			return
		}
	}
}

// dispatch handles one command; a true return ends the session.
func (s *session) dispatch(ctx context.Context, msg wire.Message) bool {
	log := logger.FromContext(ctx)

	switch msg.Verb {
	case wire.VerbQuit, wire.VerbExit:
		_ = s.conn.WriteSuccess("Goodbye")
		return true

	case wire.VerbCreate:
		s.handleCreate(log, msg)
	case wire.VerbRead:
		s.handleRead(log, msg)
	case wire.VerbCleanRead:
		// One-shot: the reply has no terminator frame, so the connection
		// closes to mark the end of content.
		s.handleCleanRead(log, msg)
		return true
	case wire.VerbWrite:
		if !s.handleWrite(ctx, log, msg) {
			return true
		}
	case wire.VerbUndo:
		s.handleUndo(log, msg)
	case wire.VerbDelete:
		s.handleDelete(log, msg)
	case wire.VerbInfo:
		s.handleInfo(log, msg)
	case wire.VerbList:
		s.handleList(log)
	case wire.VerbStream:
		s.handleStream(ctx, log, msg)
	default:
		log.Warn("unknown command", slog.String(logger.KeyVerb, msg.Verb))
		_ = s.conn.WriteError("Unknown command")
	}
	return false
}

func (s *session) handleCreate(log *slog.Logger, msg wire.Message) {
	name, owner := msg.Field(0), msg.Field(1)
	if name == "" || owner == "" {
		_ = s.conn.WriteError("Missing parameters")
		return
	}

	if err := s.h.Store.Create(name, owner); err != nil {
		log.Error("create failed", logger.Filename(name), logger.Err(err))
		_ = s.conn.WriteError("%s", errText(err))
		return
	}

	log.Info("file created", logger.Filename(name), logger.User(owner))
	s.h.Metrics.SetFilesStored(s.fileCount())
	_ = s.conn.WriteSuccess("File '%s' created", name)
	s.h.Notifier.FileCreated(name)
}

func (s *session) handleRead(log *slog.Logger, msg wire.Message) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}

	doc, err := s.h.Store.Load(name)
	if err != nil {
		_ = s.conn.WriteError("%s", errText(err))
		return
	}

	_ = s.conn.WriteLine(wire.PrefixSuccess + wire.Delimiter)
	for i, sent := range doc.Sentences {
		if len(sent.Words) == 0 {
			continue
		}
		_ = s.conn.WriteLine(fmt.Sprintf("[%d] %s", i, sent.String()))
	}
	_ = s.conn.WriteStop()
	log.Info("file read", logger.Filename(name), logger.Entries(doc.Len()))
}

func (s *session) handleCleanRead(log *slog.Logger, msg wire.Message) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}

	content, err := s.h.Store.Read(name)
	if err != nil {
		_ = s.conn.WriteError("%s", errText(err))
		return
	}

	_ = s.conn.WriteLine(wire.PrefixSuccess + wire.Delimiter)
	for _, line := range strings.Split(content, "\n") {
		if line != "" {
			_ = s.conn.WriteLine(line)
		}
	}
	log.Info("clean read served", logger.Filename(name))
}

func (s *session) handleUndo(log *slog.Logger, msg wire.Message) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}

	if err := s.h.Store.Undo(name); err != nil {
		log.Warn("undo failed", logger.Filename(name), logger.Err(err))
		_ = s.conn.WriteError("%s", errText(err))
		return
	}

	log.Info("undo applied", logger.Filename(name))
	_ = s.conn.WriteSuccess("Undo successful")
	s.h.Notifier.FileUpdated(name)
}

func (s *session) handleDelete(log *slog.Logger, msg wire.Message) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}

	if err := s.h.Store.Delete(name); err != nil {
		_ = s.conn.WriteError("%s", errText(err))
		return
	}
	s.h.Locks.ReleaseFile(name)

	log.Info("file deleted", logger.Filename(name))
	s.h.Metrics.SetFilesStored(s.fileCount())
	_ = s.conn.WriteSuccess("File '%s' deleted", name)
	s.h.Notifier.FileDeleted(name)
}

func (s *session) handleInfo(log *slog.Logger, msg wire.Message) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}

	m, err := s.h.Store.Info(name)
	if err != nil {
		_ = s.conn.WriteError("%s", errText(err))
		return
	}

	_ = s.conn.WriteLine(wire.PrefixSuccess + wire.Delimiter)
	for _, line := range strings.Split(m.Block(), "\n") {
		_ = s.conn.WriteLine(line)
	}
	_ = s.conn.WriteStop()
	log.Info("info served", logger.Filename(name))
}

func (s *session) handleList(log *slog.Logger) {
	names, err := s.h.Store.List()
	if err != nil {
		_ = s.conn.WriteError("%s", errText(err))
		return
	}

	_ = s.conn.WriteSuccess("Files:")
	for _, n := range names {
		_ = s.conn.WriteLine(n)
	}
	_ = s.conn.WriteStop()
	log.Info("list served", logger.Entries(len(names)))
}

func (s *session) handleStream(ctx context.Context, log *slog.Logger, msg wire.Message) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}

	content, err := s.h.Store.Read(name)
	if err != nil {
		_ = s.conn.WriteError("%s", errText(err))
		return
	}

	_ = s.conn.WriteSuccess("Starting stream")

	words := strings.Fields(content)
	for _, w := range words {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.h.streamDelay()):
		}
		if s.conn.WriteWord(w) != nil {
			return
		}
	}
	_ = s.conn.WriteStop()
	log.Info("stream completed", logger.Filename(name), logger.Entries(len(words)))
}

func (s *session) fileCount() int {
	names, err := s.h.Store.List()
	if err != nil {
		return 0
	}
	return len(names)
}

// releaseLocks frees every sentence lock still held by this connection's
// write users, whether the session ended cleanly or not.
func (s *session) releaseLocks() {
	for _, u := range s.users {
		s.h.Locks.ReleaseUser(u)
	}
	s.users = nil
}

// errText maps storage errors onto the wire error vocabulary.
func errText(err error) string {
	switch {
	case errors.Is(err, storage.ErrFileNotFound):
		return "File not found"
	case errors.Is(err, storage.ErrFileExists):
		return "File already exists"
	case errors.Is(err, storage.ErrNoBackup):
		return "No backup available"
	case errors.Is(err, storage.ErrStorageFull):
		return "Storage full"
	case errors.Is(err, storage.ErrFileTooLarge):
		return "File too large"
	case errors.Is(err, storage.ErrBadFilename):
		return "Invalid filename"
	case errors.Is(err, document.ErrSentenceIndex):
		return "Sentence index out of range"
	case errors.Is(err, document.ErrWordIndex):
		return "Word index out of range"
	case errors.Is(err, document.ErrOpenSentence):
		return "Previous sentence has no terminator"
	default:
		return err.Error()
	}
}

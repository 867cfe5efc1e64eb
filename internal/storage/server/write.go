package server

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/lexfs/lexfs/internal/document"
	"github.com/lexfs/lexfs/internal/logger"
	"github.com/lexfs/lexfs/internal/wire"
)

// handleWrite runs the write subprotocol: lock the target sentence, accept
// word_index|content frames against an in-memory copy of the document, and
// persist only on the ETIRW sentinel. A false return means the client dropped
// mid-session and the connection is gone; the in-memory mutation is
// discarded.
func (s *session) handleWrite(ctx context.Context, log *slog.Logger, msg wire.Message) bool {
	name := msg.Field(0)
	idxStr := msg.Field(1)
	user := msg.Field(2)
	if name == "" || idxStr == "" || user == "" {
		_ = s.conn.WriteError("Missing parameters")
		return true
	}

	sentenceIdx, err := strconv.Atoi(idxStr)
	if err != nil || sentenceIdx < 0 {
		_ = s.conn.WriteError("Sentence number must be >= 0")
		return true
	}

	log = log.With(logger.Filename(name), logger.User(user), logger.Sentence(sentenceIdx))

	if err := s.h.Locks.TryLock(name, sentenceIdx, user); err != nil {
		log.Warn("lock contention", logger.LockHolder(s.h.Locks.Holder(name, sentenceIdx)))
		_ = s.conn.WriteError("Sentence locked by another user")
		return true
	}
	if !slices.Contains(s.users, user) {
		s.users = append(s.users, user)
	}
	unlock := func() {
		s.h.Locks.Unlock(name, sentenceIdx, user)
	}

	doc, err := s.h.Store.Load(name)
	if err != nil {
		unlock()
		_ = s.conn.WriteError("%s", errText(err))
		return true
	}

	if err := doc.EnsureSentence(sentenceIdx); err != nil {
		unlock()
		_ = s.conn.WriteError("%s", sentenceRangeText(sentenceIdx, doc, err))
		return true
	}

	// Snapshot the pre-edit image so UNDO can roll this session back.
	if err := s.h.Store.Snapshot(name); err != nil {
		unlock()
		_ = s.conn.WriteError("%s", errText(err))
		return true
	}

	_ = s.conn.WriteSuccess("Sentence %d locked for '%s'. Send word updates (word_index|content), then ETIRW",
		sentenceIdx, user)
	log.Info("write session opened")

	current := sentenceIdx
	updates := 0

	for {
		if ctx.Err() != nil {
			unlock()
			return false
		}

		line, err := s.conn.ReadLine()
		if err != nil {
			// Abort: lock released, nothing persisted.
			log.Warn("client dropped during write session", logger.Err(err))
			unlock()
			return false
		}

		if line == wire.VerbCommit {
			if err := s.h.Store.Commit(name, doc); err != nil {
				log.Error("commit failed", logger.Err(err))
				unlock()
				_ = s.conn.WriteError("%s", errText(err))
				return true
			}
			unlock()
			_ = s.conn.WriteSuccess("Write complete")
			s.h.Notifier.FileUpdated(name)
			s.h.Metrics.IncWriteSessions()
			log.Info("write session committed", logger.Entries(updates))
			return true
		}

		idxStr, content, ok := strings.Cut(line, wire.Delimiter)
		if !ok || idxStr == "" || content == "" {
			_ = s.conn.WriteError("Invalid format. Use: word_index|content")
			continue
		}
		wordIdx, err := strconv.Atoi(idxStr)
		if err != nil {
			_ = s.conn.WriteError("Invalid format. Use: word_index|content")
			continue
		}
		if len(content) > wire.MaxSentenceLen {
			_ = s.conn.WriteError("Content too long")
			continue
		}
		if longestWord(content) > wire.MaxWordLen {
			_ = s.conn.WriteError("Word too long")
			continue
		}

		next, err := doc.InsertWords(current, wordIdx, content)
		if err != nil {
			log.Warn("word update rejected", logger.Word(wordIdx), logger.Err(err))
			_ = s.conn.WriteError("%s", errText(err))
			continue
		}

		updates++
		_ = s.conn.WriteSuccess("Word updated")

		if next > current {
			current = next
			_ = s.conn.WriteInfo("Sentence ended. Now editing sentence %d", current)
		}
	}
}

// longestWord returns the byte length of the longest whitespace-separated
// token in content.
func longestWord(content string) int {
	longest := 0
	for _, w := range strings.Fields(content) {
		if len(w) > longest {
			longest = len(w)
		}
	}
	return longest
}

// sentenceRangeText renders the validation failure for a WRITE target index.
func sentenceRangeText(idx int, doc *document.Document, err error) string {
	hint := ""
	if err == document.ErrOpenSentence {
		hint = " Last sentence must end with delimiter (. ! ?) to create new sentence."
	}
	return "Sentence " + strconv.Itoa(idx) + " does not exist. File has " +
		strconv.Itoa(doc.Len()) + " sentence(s)." + hint
}

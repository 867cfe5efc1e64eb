package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/lexfs/lexfs/internal/logger"
	"github.com/lexfs/lexfs/internal/namenode/acl"
	"github.com/lexfs/lexfs/internal/namenode/membership"
	"github.com/lexfs/lexfs/internal/namenode/sessions"
	"github.com/lexfs/lexfs/internal/wire"
	"github.com/lexfs/lexfs/pkg/adapter"
)

// ClientFactory builds a session handler per accepted client connection.
type ClientFactory struct {
	Core *Core

	// Timeout bounds each write toward the client. Reads are unbounded:
	// sessions are long-lived and a client merely idle between commands
	// must stay connected.
	Timeout time.Duration
}

func (f *ClientFactory) NewConnection(raw net.Conn) adapter.ConnectionHandler {
	conn := wire.NewConn(raw, f.Timeout)
	conn.SetReadTimeout(0)
	return &clientSession{
		conn: conn,
		core: f.Core,
	}
}

type clientSession struct {
	conn *wire.Conn
	core *Core
	user string
}

func (s *clientSession) Serve(ctx context.Context) {
	defer s.conn.Close()

	log := s.core.Log.With(logger.ClientIP(s.conn.RemoteAddr().String()))

	if !s.handshake(log) {
		return
	}
	defer func() {
		s.core.Sessions.Remove(s.user)
		s.core.Metrics.SetActiveSessions(s.core.Sessions.Count())
	}()

	log = log.With(logger.User(s.user))
	log.Info("client session started")

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := s.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				log.Info("client session ended", logger.Err(err))
			}
			return
		}
		if msg.Verb == "" {
			continue
		}

		start := time.Now()
		done := s.dispatch(log, msg)
		s.core.Metrics.ObserveCommand(msg.Verb, time.Since(start))

		if done {
			log.Info("client session closed")
			return
		}
	}
}

// handshake enforces the INIT contract and registers the session.
func (s *clientSession) handshake(log *slog.Logger) bool {
	msg, err := s.conn.ReadMessage()
	if err != nil {
		return false
	}

	if msg.Verb != wire.VerbInit {
		_ = s.conn.WriteError("First message must be INIT|username")
		return false
	}
	user := msg.Field(0)
	if user == "" {
		_ = s.conn.WriteError("Missing username")
		return false
	}

	if err := s.core.Sessions.Add(user); err != nil {
		log.Warn("init refused", logger.User(user), logger.Err(err))
		switch {
		case errors.Is(err, sessions.ErrDuplicate):
			_ = s.conn.WriteError("User already connected")
		case errors.Is(err, sessions.ErrFull):
			_ = s.conn.WriteError("Too many users")
		default:
			_ = s.conn.WriteError("Invalid username")
		}
		return false
	}

	s.user = user
	s.core.Metrics.SetActiveSessions(s.core.Sessions.Count())
	_ = s.conn.WriteSuccess("Welcome %s! Connected to LexFS name node.", user)
	return true
}

// dispatch handles one command; a true return ends the session.
func (s *clientSession) dispatch(log *slog.Logger, msg wire.Message) bool {
	log = log.With(logger.Command(msg.Verb))

	switch msg.Verb {
	case wire.VerbQuit, wire.VerbExit:
		_ = s.conn.WriteSuccess("Goodbye!")
		return true

	case wire.VerbCreate:
		s.handleCreate(log, msg)
	case wire.VerbView:
		s.handleView(msg)
	case wire.VerbRead:
		s.redirect(log, msg, acl.Read)
	case wire.VerbWrite:
		s.redirect(log, msg, acl.Write)
	case wire.VerbStream:
		s.redirect(log, msg, acl.Read)
	case wire.VerbUndo:
		s.redirect(log, msg, acl.Write)
	case wire.VerbDelete:
		s.handleDelete(log, msg)
	case wire.VerbInfo:
		s.handleInfo(log, msg)
	case wire.VerbList:
		s.handleList()
	case wire.VerbAddAccess:
		s.handleAddAccess(log, msg)
	case wire.VerbRemAccess:
		s.handleRemAccess(log, msg)
	case wire.VerbExec:
		s.handleExec(log, msg)
	default:
		_ = s.conn.WriteError("Unknown command: %s", msg.Verb)
	}
	return false
}

// node resolves a filename to its live primary, writing the protocol error
// when it cannot.
func (s *clientSession) node(name string) (membership.Node, bool) {
	id, ok := s.core.Directory.Lookup(name)
	if !ok {
		_ = s.conn.WriteError("File not found")
		return membership.Node{}, false
	}
	n, ok := s.core.Members.Get(id)
	if !ok {
		_ = s.conn.WriteError("SS not available")
		return membership.Node{}, false
	}
	return n, true
}

func (s *clientSession) handleCreate(log *slog.Logger, msg wire.Message) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}
	if !wire.ValidFilename(name) {
		_ = s.conn.WriteError("Invalid filename")
		return
	}
	if _, exists := s.core.Directory.Lookup(name); exists {
		_ = s.conn.WriteError("File already exists")
		return
	}

	n, ok := s.core.Members.Pick()
	if !ok {
		_ = s.conn.WriteError("No storage server available")
		return
	}

	reply, err := s.core.forward(n, wire.Join(wire.VerbCreate, name, s.user))
	if err != nil {
		log.Error("create forward failed", logger.Filename(name), logger.NodeID(n.ID), logger.Err(err))
		_ = s.conn.WriteError("No response from SS")
		return
	}
	if !wire.IsPositive(reply) {
		_ = s.conn.WriteError("%s", wire.ErrorText(reply))
		return
	}

	s.core.Directory.Put(name, n.ID)
	if err := s.core.ACL.Add(name, s.user); err != nil {
		log.Error("acl add failed", logger.Filename(name), logger.Err(err))
	}
	s.core.saveACL()

	log.Info("file created", logger.Filename(name), logger.NodeID(n.ID))
	_ = s.conn.WriteSuccess("File created successfully!")
}

func (s *clientSession) handleView(msg wire.Message) {
	showAll := strings.Contains(msg.Field(0), "a")

	_ = s.conn.WriteLine(wire.PrefixSuccess + wire.Delimiter)
	for _, name := range s.core.Directory.Files() {
		if !showAll && !s.core.ACL.Check(name, s.user, acl.Read) {
			continue
		}
		_ = s.conn.WriteLine("--> " + name)
	}
	_ = s.conn.WriteStop()
}

// redirect answers READ/WRITE/STREAM/UNDO with the primary's address after
// an access check.
func (s *clientSession) redirect(log *slog.Logger, msg wire.Message, required acl.Level) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}
	if !s.core.ACL.Check(name, s.user, required) {
		log.Warn("access denied", logger.Filename(name))
		_ = s.conn.WriteError("Access denied")
		return
	}

	n, ok := s.node(name)
	if !ok {
		return
	}

	s.core.Metrics.IncRedirect()
	log.Debug("redirect issued", logger.Filename(name), logger.NodeID(n.ID))
	_ = s.conn.WriteRedirect(n.IP, n.ClientPort)
}

func (s *clientSession) handleDelete(log *slog.Logger, msg wire.Message) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}

	owner, ok := s.core.ACL.Owner(name)
	if !ok {
		_ = s.conn.WriteError("File not found")
		return
	}
	if owner != s.user {
		log.Warn("delete refused", logger.Filename(name))
		_ = s.conn.WriteError("Only owner can delete")
		return
	}

	n, ok := s.node(name)
	if !ok {
		return
	}

	reply, err := s.core.forward(n, wire.VerbDelete+wire.Delimiter+name)
	if err != nil {
		log.Error("delete forward failed", logger.Filename(name), logger.NodeID(n.ID), logger.Err(err))
		_ = s.conn.WriteError("No response from SS")
		return
	}
	if !wire.IsPositive(reply) {
		_ = s.conn.WriteError("%s", wire.ErrorText(reply))
		return
	}

	s.core.Directory.Remove(name)
	s.core.ACL.Remove(name)
	s.core.saveACL()

	log.Info("file deleted", logger.Filename(name), logger.NodeID(n.ID))
	_ = s.conn.WriteSuccess("File deleted successfully!")
}

func (s *clientSession) handleInfo(log *slog.Logger, msg wire.Message) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}

	n, ok := s.node(name)
	if !ok {
		return
	}

	block, err := s.core.fetchBlock(n, wire.VerbInfo+wire.Delimiter+name)
	if err != nil {
		log.Error("info fetch failed", logger.Filename(name), logger.NodeID(n.ID), logger.Err(err))
		_ = s.conn.WriteError("Failed to get info")
		return
	}

	_ = s.conn.WriteLine(wire.PrefixSuccess + wire.Delimiter)
	for _, line := range block {
		_ = s.conn.WriteLine(line)
	}
	if access := s.core.ACL.AccessBlock(name); access != "" {
		for _, line := range strings.Split(access, "\n") {
			_ = s.conn.WriteLine(line)
		}
	}
	_ = s.conn.WriteStop()
}

func (s *clientSession) handleList() {
	_ = s.conn.WriteSuccess("Users:")
	users := s.core.Sessions.List()
	if len(users) == 0 {
		_ = s.conn.WriteLine("(No users connected)")
	}
	for _, u := range users {
		_ = s.conn.WriteLine("--> " + u)
	}
	_ = s.conn.WriteStop()
}

func (s *clientSession) handleAddAccess(log *slog.Logger, msg wire.Message) {
	flag, name, user := msg.Field(0), msg.Field(1), msg.Field(2)
	if flag == "" || name == "" || user == "" {
		_ = s.conn.WriteError("Missing parameters")
		return
	}

	var level acl.Level
	switch flag {
	case wire.FlagRead:
		level = acl.Read
	case wire.FlagWrite:
		level = acl.Write
	default:
		_ = s.conn.WriteError("Invalid access type (use -R or -W)")
		return
	}

	owner, ok := s.core.ACL.Owner(name)
	if !ok {
		_ = s.conn.WriteError("File not found")
		return
	}
	if owner != s.user {
		_ = s.conn.WriteError("Only owner can grant access")
		return
	}

	if err := s.core.ACL.Grant(name, user, level); err != nil {
		if errors.Is(err, acl.ErrOwnerChange) {
			_ = s.conn.WriteError("Cannot change owner access")
			return
		}
		_ = s.conn.WriteError("%s", err.Error())
		return
	}
	s.core.saveACL()

	log.Info("access granted", logger.Filename(name), slog.String("grantee", user), slog.String("level", level.String()))
	_ = s.conn.WriteSuccess("Access granted successfully!")
}

func (s *clientSession) handleRemAccess(log *slog.Logger, msg wire.Message) {
	name, user := msg.Field(0), msg.Field(1)
	if name == "" || user == "" {
		_ = s.conn.WriteError("Missing parameters")
		return
	}

	owner, ok := s.core.ACL.Owner(name)
	if !ok {
		_ = s.conn.WriteError("File not found")
		return
	}
	if owner != s.user {
		_ = s.conn.WriteError("Only owner can revoke access")
		return
	}

	if err := s.core.ACL.Revoke(name, user); err != nil {
		if errors.Is(err, acl.ErrOwnerChange) {
			_ = s.conn.WriteError("Cannot change owner access")
			return
		}
		_ = s.conn.WriteError("%s", err.Error())
		return
	}
	s.core.saveACL()

	log.Info("access revoked", logger.Filename(name), slog.String("grantee", user))
	_ = s.conn.WriteSuccess("Access removed successfully!")
}

// handleExec fetches the file body from its primary and returns it verbatim.
// Running the content as a shell command is deliberately not done here; the
// caller decides what to do with the text.
func (s *clientSession) handleExec(log *slog.Logger, msg wire.Message) {
	name := msg.Field(0)
	if name == "" {
		_ = s.conn.WriteError("Missing filename")
		return
	}
	if !s.core.ACL.Check(name, s.user, acl.Read) {
		_ = s.conn.WriteError("Access denied")
		return
	}

	n, ok := s.node(name)
	if !ok {
		return
	}

	content, err := s.core.fetchContent(n, name)
	if err != nil {
		log.Error("exec fetch failed", logger.Filename(name), logger.NodeID(n.ID), logger.Err(err))
		_ = s.conn.WriteError("Failed to read file")
		return
	}

	_ = s.conn.WriteLine(wire.PrefixSuccess + wire.Delimiter)
	for _, line := range strings.Split(content, "\n") {
		if line != "" {
			_ = s.conn.WriteLine(line)
		}
	}
	_ = s.conn.WriteStop()
	log.Info("exec content served", logger.Filename(name))
}

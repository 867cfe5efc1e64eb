package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/lexfs/lexfs/internal/logger"
	"github.com/lexfs/lexfs/internal/namenode/membership"
	"github.com/lexfs/lexfs/internal/wire"
	"github.com/lexfs/lexfs/pkg/adapter"
)

// StorageFactory builds a control-channel handler per storage-node
// connection.
type StorageFactory struct {
	Core *Core

	// Timeout is the control read timeout, which doubles as the heartbeat
	// probe cadence: every window with no inbound traffic triggers one
	// HEARTBEAT. Zero means the protocol default.
	Timeout time.Duration
}

func (f *StorageFactory) NewConnection(raw net.Conn) adapter.ConnectionHandler {
	timeout := f.Timeout
	if timeout == 0 {
		timeout = wire.ControlTimeout
	}
	return &storageSession{
		conn: wire.NewConn(raw, timeout),
		core: f.Core,
	}
}

type storageSession struct {
	conn *wire.Conn
	core *Core
	node membership.Node
}

func (s *storageSession) Serve(ctx context.Context) {
	defer s.conn.Close()

	log := s.core.Log.With(logger.ClientIP(s.conn.RemoteAddr().String()))

	if !s.handshake(log) {
		return
	}
	log = log.With(logger.NodeID(s.node.ID))

	defer func() {
		// Connection loss counts as failure; the node re-registers on
		// reconnect.
		s.core.failNode(s.node.ID)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := s.conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				// Silent window: probe.
				if s.conn.WriteLine(wire.VerbHeartbeat) != nil {
					return
				}
				continue
			}
			if ctx.Err() == nil {
				log.Warn("control connection lost", logger.Err(err))
			}
			return
		}

		s.core.Members.Touch(s.node.ID)

		switch msg.Verb {
		case wire.VerbHeartbeatAck:
			// Liveness already recorded above.
		case wire.VerbFileCreated:
			s.core.Directory.Put(msg.Field(0), s.node.ID)
			log.Info("file registered", logger.Filename(msg.Field(0)))
		case wire.VerbFileDeleted:
			s.core.Directory.Remove(msg.Field(0))
			s.core.ACL.Remove(msg.Field(0))
			s.core.saveACL()
			log.Info("file unregistered", logger.Filename(msg.Field(0)))
		case wire.VerbFileUpdated:
			log.Debug("file updated", logger.Filename(msg.Field(0)))
		case "":
		default:
			log.Debug("unexpected control frame", slog.String(logger.KeyVerb, msg.Verb))
		}
	}
}

// handshake enforces the REGISTER contract and admits the node.
func (s *storageSession) handshake(log *slog.Logger) bool {
	msg, err := s.conn.ReadMessage()
	if err != nil {
		return false
	}

	if msg.Verb != wire.VerbRegister {
		_ = s.conn.WriteError("First message must be REGISTER")
		return false
	}

	ip := msg.Field(0)
	controlPort, err1 := strconv.Atoi(msg.Field(1))
	clientPort, err2 := strconv.Atoi(msg.Field(2))
	if ip == "" || err1 != nil || err2 != nil {
		_ = s.conn.WriteError("Missing parameters")
		return false
	}

	node, err := s.core.Members.Register(ip, controlPort, clientPort)
	if err != nil {
		log.Warn("registration refused", logger.Err(err))
		_ = s.conn.WriteError("Too many storage servers")
		return false
	}
	s.node = node
	s.core.Metrics.SetLiveNodes(s.core.Members.Count())

	// Re-announced files re-enter the routing table, so a restarted node
	// recovers its placement.
	files := 0
	if list := msg.Field(3); list != "" {
		for _, name := range strings.Split(list, ",") {
			if name == "" {
				continue
			}
			s.core.Directory.Put(name, node.ID)
			files++
		}
	}

	log.Info("storage node registered",
		logger.NodeID(node.ID),
		logger.Address(ip),
		logger.Port(clientPort),
		logger.Entries(files))

	_ = s.conn.WriteSuccess("SS_ID=%d", node.ID)
	return true
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Monitor scans the membership list on a fixed cadence and expels nodes
// whose last heartbeat is older than grace.
func Monitor(ctx context.Context, core *Core, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, n := range core.Members.Expired(grace) {
				core.Metrics.IncHeartbeatFailure()
				core.Log.Warn("heartbeat timeout",
					logger.NodeID(n.ID),
					logger.Address(n.IP))
				core.failNode(n.ID)
			}
		}
	}
}

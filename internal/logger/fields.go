package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently across
// all log statements so records can be grepped and aggregated.
const (
	// Client identification
	KeyClientIP   = "client_ip"
	KeyClientPort = "client_port"
	KeyUser       = "user"

	// Protocol
	KeyCommand = "command"
	KeyVerb    = "verb"

	// File operations
	KeyFilename = "filename"
	KeySentence = "sentence"
	KeyWord     = "word"
	KeySize     = "size"
	KeyEntries  = "entries"

	// Cluster topology
	KeyNodeID  = "node_id"
	KeyAddress = "address"
	KeyPort    = "port"

	// Locking
	KeyLockHolder = "lock_holder"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// ----------------------------------------------------------------------------
// Field constructors for type safety
// ----------------------------------------------------------------------------

// ClientIP returns a slog.Attr for the client IP address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for the client source port.
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// User returns a slog.Attr for a user name.
func User(name string) slog.Attr {
	return slog.String(KeyUser, name)
}

// Command returns a slog.Attr for a command verb.
func Command(verb string) slog.Attr {
	return slog.String(KeyCommand, verb)
}

// Filename returns a slog.Attr for a file name.
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Sentence returns a slog.Attr for a sentence index.
func Sentence(i int) slog.Attr {
	return slog.Int(KeySentence, i)
}

// Word returns a slog.Attr for a word index.
func Word(i int) slog.Attr {
	return slog.Int(KeyWord, i)
}

// Size returns a slog.Attr for a byte size.
func Size(n int) slog.Attr {
	return slog.Int(KeySize, n)
}

// Entries returns a slog.Attr for an entry count.
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// NodeID returns a slog.Attr for a storage-node identifier.
func NodeID(id int) slog.Attr {
	return slog.Int(KeyNodeID, id)
}

// Address returns a slog.Attr for a network address.
func Address(addr string) slog.Attr {
	return slog.String(KeyAddress, addr)
}

// Port returns a slog.Attr for a listening port.
func Port(p int) slog.Attr {
	return slog.Int(KeyPort, p)
}

// LockHolder returns a slog.Attr for the user holding a sentence lock.
func LockHolder(user string) slog.Attr {
	return slog.String(KeyLockHolder, user)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

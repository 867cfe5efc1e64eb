// Package wire implements the newline-framed, pipe-delimited protocol spoken
// between clients, the name node, and storage nodes. Every frame is a UTF-8
// line terminated by '\n' whose fields are separated by '|', the first field
// being the verb.
package wire

import (
	"strings"
	"time"
)

// Request verbs.
const (
	VerbInit         = "INIT"
	VerbRegister     = "REGISTER"
	VerbHeartbeat    = "HEARTBEAT"
	VerbHeartbeatAck = "HEARTBEAT_ACK"
	VerbCreate       = "CREATE"
	VerbRead         = "READ"
	VerbCleanRead    = "CLEANREAD"
	VerbWrite        = "WRITE"
	VerbCommit       = "ETIRW"
	VerbUndo         = "UNDO"
	VerbDelete       = "DELETE"
	VerbInfo         = "INFO"
	VerbView         = "VIEW"
	VerbList         = "LIST"
	VerbStream       = "STREAM"
	VerbAddAccess    = "ADDACCESS"
	VerbRemAccess    = "REMACCESS"
	VerbExec         = "EXEC"
	VerbQuit         = "QUIT"
	VerbExit         = "EXIT"

	// Control-channel notifications pushed by storage nodes.
	VerbFileCreated = "FILE_CREATED"
	VerbFileUpdated = "FILE_UPDATED"
	VerbFileDeleted = "FILE_DELETED"
)

// Response prefixes.
const (
	PrefixSuccess  = "SUCCESS"
	PrefixError    = "ERROR"
	PrefixAck      = "ACK"
	PrefixRedirect = "REDIRECT"
	PrefixWord     = "WORD"
	PrefixStop     = "STOP"
	PrefixInfo     = "INFO"
)

// Access flags used by ADDACCESS.
const (
	FlagRead  = "-R"
	FlagWrite = "-W"
	FlagAll   = "-a"
	FlagLong  = "-l"
)

// Protocol limits.
const (
	MaxFilenameLen  = 255
	MaxUsernameLen  = 63
	MaxSentenceLen  = 2048
	MaxWordLen      = 256
	MaxDocumentLen  = 16 * 1024
	MaxFilesPerNode = 1000
	MaxStorageNodes = 50
	MaxUsers        = 500
)

// Timing constants.
const (
	// ClientTimeout bounds recv/send on client-facing sockets.
	ClientTimeout = 30 * time.Second

	// ControlTimeout is the control-channel read timeout; an expiry doubles
	// as the heartbeat probe trigger.
	ControlTimeout = 5 * time.Second

	// HeartbeatGrace is the silence threshold after which the name node
	// declares a storage node failed.
	HeartbeatGrace = 15 * time.Second

	// StreamDelay is the target inter-word delay for STREAM playback.
	StreamDelay = 100 * time.Millisecond
)

// Delimiter separates frame fields.
const Delimiter = "|"

// Message is a parsed frame.
type Message struct {
	Verb   string
	Fields []string
}

// Parse splits a frame (without its trailing newline) into verb and fields.
// An empty line parses to an empty verb.
func Parse(line string) Message {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Message{}
	}
	parts := strings.Split(line, Delimiter)
	return Message{Verb: parts[0], Fields: parts[1:]}
}

// Field returns the i-th field or "" when absent.
func (m Message) Field(i int) string {
	if i < 0 || i >= len(m.Fields) {
		return ""
	}
	return m.Fields[i]
}

// Join renders fields into a frame body (no trailing newline).
func Join(fields ...string) string {
	return strings.Join(fields, Delimiter)
}

// IsPositive reports whether a response line signals success. ACK is accepted
// as a legacy synonym on the parsing side; it is never emitted.
func IsPositive(line string) bool {
	return strings.HasPrefix(line, PrefixSuccess) || strings.HasPrefix(line, PrefixAck)
}

// IsError reports whether a response line is an error frame.
func IsError(line string) bool {
	return strings.HasPrefix(line, PrefixError)
}

// ErrorText extracts the message of an ERROR|<text> frame.
func ErrorText(line string) string {
	line = strings.TrimRight(line, "\r\n")
	if rest, ok := strings.CutPrefix(line, PrefixError+Delimiter); ok {
		return rest
	}
	return line
}

const invalidFilenameChars = `/\:*?"<>|`

// ValidFilename reports whether name is acceptable: non-empty, at most
// MaxFilenameLen bytes, and free of path and shell metacharacters.
func ValidFilename(name string) bool {
	if name == "" || len(name) > MaxFilenameLen {
		return false
	}
	return !strings.ContainsAny(name, invalidFilenameChars)
}

// ValidUsername reports whether name is acceptable: non-empty, at most
// MaxUsernameLen bytes, alphanumeric plus underscore.
func ValidUsername(name string) bool {
	if name == "" || len(name) > MaxUsernameLen {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return false
		}
	}
	return true
}

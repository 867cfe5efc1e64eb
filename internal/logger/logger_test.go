package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewWithWriter(buf, "WARN", "text", false)
	ctx := WithLogger(context.Background(), l)

	Debug(ctx, "debug message")
	Info(ctx, "info message")
	Warn(ctx, "warn message")
	Error(ctx, "error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestTextFormat(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewWithWriter(buf, "INFO", "text", false)
	ctx := WithLogger(context.Background(), l)

	Info(ctx, "file created", KeyFilename, "notes.txt", KeySize, 42)

	out := buf.String()
	assert.Contains(t, out, "[INFO] file created")
	assert.Contains(t, out, "filename=notes.txt")
	assert.Contains(t, out, "size=42")
	// [timestamp] prefix
	assert.True(t, strings.HasPrefix(out, "["))
}

func TestJSONFormat(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewWithWriter(buf, "INFO", "json", false)
	ctx := WithLogger(context.Background(), l)

	Info(ctx, "registered", KeyNodeID, 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "registered", record["msg"])
	assert.Equal(t, float64(3), record[KeyNodeID])
}

func TestContextFieldsAppended(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewWithWriter(buf, "DEBUG", "text", false)

	lc := NewContext("10.0.0.7", 4455).WithUser("alice").WithCommand("CREATE")
	ctx := WithContext(WithLogger(context.Background(), l), lc)

	Info(ctx, "command received")

	out := buf.String()
	assert.Contains(t, out, "client_ip=10.0.0.7")
	assert.Contains(t, out, "client_port=4455")
	assert.Contains(t, out, "user=alice")
	assert.Contains(t, out, "command=CREATE")
}

func TestFromContextWithoutLogger(t *testing.T) {
	// Must not panic and must not write anywhere.
	Info(context.Background(), "dropped")
	Error(context.Background(), "dropped too")
}

func TestContextClone(t *testing.T) {
	lc := NewContext("127.0.0.1", 9)
	clone := lc.WithUser("bob").WithNodeID(2)

	assert.Empty(t, lc.User)
	assert.Equal(t, -1, lc.NodeID)
	assert.Equal(t, "bob", clone.User)
	assert.Equal(t, 2, clone.NodeID)
}

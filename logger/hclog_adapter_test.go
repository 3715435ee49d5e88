package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHCLogAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewHCLogAdapter(newJSONLogger(&buf, DebugLevel))

	adapter.Trace("dropped")
	adapter.Debug("retrying", "attempt", 2, "err", errors.New("refused"))
	adapter.Log(hclog.Error, "gave up", "url", "http://x")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, float64(2), lines[0]["attempt"])
	assert.Equal(t, "refused", lines[0]["err"])
	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "http://x", lines[1]["url"])

	assert.Equal(t, hclog.Debug, adapter.GetLevel())
	assert.False(t, adapter.IsTrace())
}

func TestHCLogAdapter_NamedAndWith(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewHCLogAdapter(newJSONLogger(&buf, InfoLevel))

	child := adapter.Named("api").Named("client").With("addr", "127.0.0.1")
	assert.Equal(t, "api.client", child.Name())
	assert.Equal(t, []any{"addr", "127.0.0.1"}, child.ImpliedArgs())

	// odd trailing key is ignored
	child.Info("request", "method", "GET", "dangling")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "api.client", lines[0]["module"])
	assert.Equal(t, "127.0.0.1", lines[0]["addr"])
	assert.Equal(t, "GET", lines[0]["method"])
	assert.NotContains(t, lines[0], "dangling")
}

func TestHCLogAdapter_StandardLogger(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewHCLogAdapter(newJSONLogger(&buf, InfoLevel))

	adapter.StandardLogger(nil).Println("from stdlib")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "from stdlib", lines[0]["message"])
}

package helpers

import (
	"bytes"
	"testing"

	"github.com/stephnangue/vortex/logger"
	"github.com/stretchr/testify/assert"
)

func TestMaskConfigFields(t *testing.T) {
	masked := MaskConfigFields(StorageSensitiveFields, map[string]string{
		"type":           "postgres",
		"connection_url": "postgres://user:secret@db/vortex",
		"table":          "creds",
	})
	assert.Equal(t, map[string]string{
		"type":           "postgres",
		"connection_url": MaskValue,
		"table":          "creds",
	}, masked)
}

func TestPrintMapAsTable(t *testing.T) {
	var buf bytes.Buffer
	PrintMapAsTable(&buf, map[string]any{"subject": "alice", "roles": "ADMIN"})

	out := buf.String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "ADMIN")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("roles")), bytes.Index(buf.Bytes(), []byte("subject")))
}

func TestPrintTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"ID"}, nil)
	assert.Equal(t, "No data to display\n", buf.String())
}

func TestClientLogger(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewHCLogAdapter(clientLogger("debug", &buf))

	l.Debug("retrying request", "attempt", 2)
	assert.Contains(t, buf.String(), "retrying request")

	buf.Reset()
	quiet := logger.NewHCLogAdapter(clientLogger("error", &buf))
	quiet.Debug("retrying request")
	assert.Empty(t, buf.String())
}

package logger

import (
	"bytes"
	"io"
	"sync"
)

// GatedWriter is an io.Writer that buffers output until its gate is opened.
// The server uses it so nothing is printed before configuration is known to
// be valid; on a failed start the buffer is flushed so the cause is visible.
type GatedWriter struct {
	mu         sync.Mutex
	underlying io.Writer
	buffer     bytes.Buffer
	open       bool
	maxBuffer  int
}

// NewGatedWriter creates a closed gate in front of w. A maxBuffer of zero
// means unlimited; otherwise the oldest bytes are dropped once it is reached.
func NewGatedWriter(w io.Writer, maxBuffer int) *GatedWriter {
	if w == nil {
		w = io.Discard
	}
	return &GatedWriter{underlying: w, maxBuffer: maxBuffer}
}

func (gw *GatedWriter) Write(p []byte) (int, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.open {
		return gw.underlying.Write(p)
	}
	if gw.maxBuffer > 0 && gw.buffer.Len()+len(p) > gw.maxBuffer {
		gw.buffer.Next(gw.buffer.Len() + len(p) - gw.maxBuffer)
	}
	return gw.buffer.Write(p)
}

// Open flushes buffered output and lets later writes pass straight through.
func (gw *GatedWriter) Open() error {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.open {
		return nil
	}
	gw.open = true
	if gw.buffer.Len() == 0 {
		return nil
	}
	_, err := gw.underlying.Write(gw.buffer.Bytes())
	gw.buffer.Reset()
	return err
}

func (gw *GatedWriter) IsOpen() bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.open
}

// Buffered returns the number of bytes waiting behind the gate.
func (gw *GatedWriter) Buffered() int {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.buffer.Len()
}

// GatedLogger is a Logger whose console output sits behind a GatedWriter.
type GatedLogger struct {
	Logger
	gate *GatedWriter
}

// NewGatedLogger builds a logger from config with its first output gated.
func NewGatedLogger(config *Config, maxBuffer int) *GatedLogger {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	var out io.Writer
	if len(cfg.Outputs) > 0 {
		out = cfg.Outputs[0]
	}
	gate := NewGatedWriter(out, maxBuffer)
	cfg.Outputs = []io.Writer{gate}

	return &GatedLogger{
		Logger: NewZerologLogger(&cfg),
		gate:   gate,
	}
}

func (gl *GatedLogger) OpenGate() error {
	return gl.gate.Open()
}

func (gl *GatedLogger) Gate() *GatedWriter {
	return gl.gate
}

package audit

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Sink receives formatted audit lines.
type Sink interface {
	Write(line []byte) error
	Close() error
	Type() string
}

// FileSinkConfig contains configuration for file sink
type FileSinkConfig struct {
	Path       string
	MaxSizeMB  int // rotate when the file reaches this size
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileSink appends audit lines to a file rotated by lumberjack.
type FileSink struct {
	mu sync.Mutex
	lj *lumberjack.Logger
}

func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, errors.New("file path is required")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	return &FileSink{lj: &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}}, nil
}

func (s *FileSink) Write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lj.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lj.Close()
}

func (s *FileSink) Type() string { return "file" }

// WriterSink writes audit lines to an arbitrary writer such as stdout.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(append(line, '\n'))
	return err
}

func (s *WriterSink) Close() error { return nil }

func (s *WriterSink) Type() string { return "stdout" }

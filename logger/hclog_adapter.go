package logger

import (
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
)

// HCLogAdapter lets libraries that expect an hclog.Logger (the retrying
// HTTP client, for one) write through a Logger.
type HCLogAdapter struct {
	logger Logger
	name   string
	args   []any
}

var _ hclog.Logger = (*HCLogAdapter)(nil)

func NewHCLogAdapter(l Logger) hclog.Logger {
	return &HCLogAdapter{logger: l}
}

func (a *HCLogAdapter) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace:
		a.Trace(msg, args...)
	case hclog.Debug:
		a.Debug(msg, args...)
	case hclog.Warn:
		a.Warn(msg, args...)
	case hclog.Error:
		a.Error(msg, args...)
	default:
		a.Info(msg, args...)
	}
}

func (a *HCLogAdapter) Trace(msg string, args ...any) { a.logger.Trace(msg, a.fields(args)...) }
func (a *HCLogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, a.fields(args)...) }
func (a *HCLogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, a.fields(args)...) }
func (a *HCLogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, a.fields(args)...) }
func (a *HCLogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, a.fields(args)...) }

// fields turns hclog's alternating key/value args into TypedFields. A
// trailing key without a value is dropped, as are non-string keys.
func (a *HCLogAdapter) fields(args []any) []TypedField {
	all := make([]any, 0, len(a.args)+len(args))
	all = append(all, a.args...)
	all = append(all, args...)

	out := make([]TypedField, 0, len(all)/2)
	for i := 0; i+1 < len(all); i += 2 {
		key, ok := all[i].(string)
		if !ok {
			continue
		}
		if err, ok := all[i+1].(error); ok {
			out = append(out, String(key, err.Error()))
			continue
		}
		out = append(out, Any(key, all[i+1]))
	}
	return out
}

func (a *HCLogAdapter) Named(name string) hclog.Logger {
	full := name
	if a.name != "" {
		full = a.name + "." + name
	}
	return &HCLogAdapter{logger: a.logger.WithSubsystem(name), name: full, args: a.args}
}

func (a *HCLogAdapter) ResetNamed(name string) hclog.Logger {
	return &HCLogAdapter{logger: a.logger.WithSystem(name), name: name, args: a.args}
}

func (a *HCLogAdapter) With(args ...any) hclog.Logger {
	merged := make([]any, 0, len(a.args)+len(args))
	merged = append(merged, a.args...)
	merged = append(merged, args...)
	return &HCLogAdapter{logger: a.logger, name: a.name, args: merged}
}

func (a *HCLogAdapter) Name() string        { return a.name }
func (a *HCLogAdapter) ImpliedArgs() []any { return a.args }

func (a *HCLogAdapter) IsTrace() bool { return a.logger.IsLevelEnabled(TraceLevel) }
func (a *HCLogAdapter) IsDebug() bool { return a.logger.IsLevelEnabled(DebugLevel) }
func (a *HCLogAdapter) IsInfo() bool  { return a.logger.IsLevelEnabled(InfoLevel) }
func (a *HCLogAdapter) IsWarn() bool  { return a.logger.IsLevelEnabled(WarnLevel) }
func (a *HCLogAdapter) IsError() bool { return a.logger.IsLevelEnabled(ErrorLevel) }

func (a *HCLogAdapter) GetLevel() hclog.Level {
	switch {
	case a.IsTrace():
		return hclog.Trace
	case a.IsDebug():
		return hclog.Debug
	case a.IsInfo():
		return hclog.Info
	case a.IsWarn():
		return hclog.Warn
	case a.IsError():
		return hclog.Error
	}
	return hclog.Off
}

// SetLevel is a no-op; the level comes from Config.
func (a *HCLogAdapter) SetLevel(hclog.Level) {}

func (a *HCLogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(a.StandardWriter(opts), "", 0)
}

func (a *HCLogAdapter) StandardWriter(*hclog.StandardLoggerOptions) io.Writer {
	return &stdWriter{adapter: a}
}

type stdWriter struct {
	adapter *HCLogAdapter
}

func (w *stdWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.adapter.Info(msg)
	return len(p), nil
}

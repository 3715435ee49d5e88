package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const moduleField = "module"

// ZerologLogger implements Logger using zerolog
type ZerologLogger struct {
	logger     zerolog.Logger
	config     *Config
	root       zerolog.Logger
	subsystem  string
	fileWriter *lumberjack.Logger
}

// NewZerologLogger creates a new ZerologLogger from config
func NewZerologLogger(config *Config) Logger {
	if config == nil {
		config = DefaultConfig()
	}

	var writers []io.Writer
	var fileWriter *lumberjack.Logger

	if config.File != nil && config.File.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(config.File.Filename), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		} else {
			fileWriter = &lumberjack.Logger{
				Filename:   config.File.Filename,
				MaxSize:    config.File.MaxSize,
				MaxAge:     config.File.MaxAge,
				MaxBackups: config.File.MaxBackups,
				Compress:   config.File.Compress,
				LocalTime:  true,
			}
			// files always get JSON
			writers = append(writers, fileWriter)
		}
	}

	for _, output := range config.Outputs {
		if config.Format == JSONFormat {
			writers = append(writers, output)
			continue
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
			NoColor:    config.NoColor,
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				moduleField,
				zerolog.MessageFieldName,
			},
			FieldsExclude: []string{moduleField},
		})
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	root := zerolog.New(writer).Level(config.Level.zerolog()).With().Timestamp().Logger()
	if config.EnableCaller {
		root = root.With().CallerWithSkipFrameCount(4).Logger()
	}

	zl := &ZerologLogger{
		config:     config,
		root:       root,
		fileWriter: fileWriter,
	}
	zl.logger = zl.withModule(config.Subsystem)
	zl.subsystem = config.Subsystem
	return zl
}

func (zl *ZerologLogger) withModule(name string) zerolog.Logger {
	if name == "" {
		return zl.root
	}
	return zl.root.With().Str(moduleField, name).Logger()
}

func (zl *ZerologLogger) log(event *zerolog.Event, msg string, fields []TypedField) {
	if event == nil {
		return
	}
	for _, f := range fields {
		event = f.applyEvent(event)
	}
	event.Msg(msg)
}

func (zl *ZerologLogger) Trace(msg string, fields ...TypedField) {
	zl.log(zl.logger.Trace(), msg, fields)
}

func (zl *ZerologLogger) Debug(msg string, fields ...TypedField) {
	zl.log(zl.logger.Debug(), msg, fields)
}

func (zl *ZerologLogger) Info(msg string, fields ...TypedField) {
	zl.log(zl.logger.Info(), msg, fields)
}

func (zl *ZerologLogger) Warn(msg string, fields ...TypedField) {
	zl.log(zl.logger.Warn(), msg, fields)
}

func (zl *ZerologLogger) Error(msg string, fields ...TypedField) {
	zl.log(zl.logger.Error(), msg, fields)
}

// Fatal logs at fatal level and exits the process
func (zl *ZerologLogger) Fatal(msg string, fields ...TypedField) {
	zl.log(zl.logger.Fatal(), msg, fields)
}

func (zl *ZerologLogger) Infof(format string, args ...any) {
	zl.logger.Info().Msgf(format, args...)
}

func (zl *ZerologLogger) Errorf(format string, args ...any) {
	zl.logger.Error().Msgf(format, args...)
}

func (zl *ZerologLogger) WithSubsystem(name string) Logger {
	sub := name
	if zl.subsystem != "" {
		sub = zl.subsystem + "." + name
	}
	return zl.derive(sub)
}

func (zl *ZerologLogger) WithSystem(name string) Logger {
	return zl.derive(name)
}

func (zl *ZerologLogger) derive(subsystem string) *ZerologLogger {
	return &ZerologLogger{
		logger:     zl.withModule(subsystem),
		config:     zl.config,
		root:       zl.root,
		subsystem:  subsystem,
		fileWriter: zl.fileWriter,
	}
}

func (zl *ZerologLogger) WithFields(fields ...TypedField) Logger {
	if len(fields) == 0 {
		return zl
	}
	ctx := zl.logger.With()
	for _, f := range fields {
		ctx = f.apply(ctx)
	}
	return &ZerologLogger{
		logger:     ctx.Logger(),
		config:     zl.config,
		root:       zl.root,
		subsystem:  zl.subsystem,
		fileWriter: zl.fileWriter,
	}
}

func (zl *ZerologLogger) IsLevelEnabled(level LogLevel) bool {
	return zl.logger.GetLevel() <= level.zerolog()
}

// Close releases the rotating file, if any
func (zl *ZerologLogger) Close() error {
	if zl.fileWriter != nil {
		return zl.fileWriter.Close()
	}
	return nil
}

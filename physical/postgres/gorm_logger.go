package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/stephnangue/vortex/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// GormLogger routes gorm's log output into a logger.Logger. SQL text is
// only logged at trace level.
type GormLogger struct {
	logger logger.Logger
	level  gormlogger.LogLevel
}

var _ gormlogger.Interface = (*GormLogger)(nil)

func NewGormLogger(l logger.Logger) *GormLogger {
	return &GormLogger{logger: l.WithSubsystem("gorm"), level: gormlogger.Warn}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *g
	c.level = level
	return &c
}

func (g *GormLogger) Info(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Info {
		g.logger.Info(msg, logger.Any("args", args))
	}
}

func (g *GormLogger) Warn(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Warn {
		g.logger.Warn(msg, logger.Any("args", args))
	}
}

func (g *GormLogger) Error(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Error {
		g.logger.Error(msg, logger.Any("args", args))
	}
}

func (g *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		_, rows := fc()
		g.logger.Error("query failed", logger.Err(err), logger.Duration("elapsed", elapsed), logger.Int64("rows", rows))
	case elapsed > slowQuery:
		_, rows := fc()
		g.logger.Warn("slow query", logger.Duration("elapsed", elapsed), logger.Int64("rows", rows))
	case g.logger.IsLevelEnabled(logger.TraceLevel):
		sql, rows := fc()
		g.logger.Trace("query", logger.String("sql", sql), logger.Duration("elapsed", elapsed), logger.Int64("rows", rows))
	}
}

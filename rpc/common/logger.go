package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/rs/zerolog"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// dShardLogger implements the ILogger interface on top of zerolog
type dShardLogger struct {
	name  string
	level logger.LogLevel
	zl    zerolog.Logger
}

func (l *dShardLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *dShardLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.zl.Debug().Msgf(format, args...)
	}
}

func (l *dShardLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.zl.Info().Msgf(format, args...)
	}
}

func (l *dShardLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.zl.Warn().Msgf(format, args...)
	}
}

func (l *dShardLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.zl.Error().Msgf(format, args...)
	}
}

func (l *dShardLogger) Panicf(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
	panic(fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// baseLogger is the zerolog sink shared by all package loggers
var baseLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}).
	With().Timestamp().Logger()

// CreateLogger implements dragonboats logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	return &dShardLogger{
		name:  pkgName,
		level: logger.INFO,
		zl:    baseLogger.With().Str("component", pkgName).Logger(),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// raftLoggers are the loggers dragonboat creates
var raftLoggers = []string{"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb"}

// projectLoggers are the loggers of this module
var projectLoggers = []string{"sharding", "dao", "memdb", "store", "health", "admin", "bundle"}

// InitLoggers installs the zerolog backed factory and sets the level of all loggers.
// Loggers that already wrote a message keep their backend, so call it before anything logs.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger.SetLoggerFactory(CreateLogger)

	for _, name := range raftLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	for _, name := range projectLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}

package utils

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

var (
	// zerologger is the process logger, built lazily by Logger()
	zeroLogger      *zerolog.Logger
	zeroLoggerLevel = zerolog.InfoLevel
	zeroLoggerLock  sync.Mutex

	logWriters = []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
	}
	logContext = map[string]string{}
)

// SetLogContext used to print the node name and network in every log line.
func SetLogContext(network, node string) {
	zeroLoggerLock.Lock()
	defer zeroLoggerLock.Unlock()

	logContext = map[string]string{}
	if network != "" {
		logContext["network"] = network
	}
	if node != "" {
		logContext["node"] = node
	}
	zeroLogger = nil
}

// SetLogVerbosity specifies the verbosity of the process logger.
func SetLogVerbosity(verbosity log.Lvl) {
	zeroLoggerLock.Lock()
	defer zeroLoggerLock.Unlock()

	zeroLoggerLevel = zerologLevel(verbosity)
	if zeroLogger != nil {
		l := zeroLogger.Level(zeroLoggerLevel)
		zeroLogger = &l
	}
}

// GetLogVerbosity returns the go-ethereum level the logger is running at.
func GetLogVerbosity() log.Lvl {
	zeroLoggerLock.Lock()
	defer zeroLoggerLock.Unlock()

	switch zeroLoggerLevel {
	case zerolog.Disabled, zerolog.FatalLevel:
		return log.LvlCrit
	case zerolog.ErrorLevel:
		return log.LvlError
	case zerolog.WarnLevel:
		return log.LvlWarn
	case zerolog.InfoLevel:
		return log.LvlInfo
	case zerolog.DebugLevel:
		return log.LvlDebug
	default:
		return log.LvlTrace
	}
}

// AddLogFile creates a rotating log file at filepath and appends it to the logger outputs.
// Sizes are in megabytes, max age in days.
func AddLogFile(filepath string, maxSize, rotateCount, rotateMaxAge int) {
	zeroLoggerLock.Lock()
	defer zeroLoggerLock.Unlock()

	logWriters = append(logWriters, &lumberjack.Logger{
		Filename:   filepath,
		MaxSize:    maxSize,
		MaxBackups: rotateCount,
		MaxAge:     rotateMaxAge,
		Compress:   true,
	})
	zeroLogger = nil
}

// SetLogWriter replaces every log output with w. Used by tests to silence or capture logs.
func SetLogWriter(w io.Writer) {
	zeroLoggerLock.Lock()
	defer zeroLoggerLock.Unlock()

	logWriters = []io.Writer{w}
	zeroLogger = nil
}

// Logger returns a zerolog.Logger singleton
func Logger() *zerolog.Logger {
	zeroLoggerLock.Lock()
	defer zeroLoggerLock.Unlock()

	if zeroLogger == nil {
		ctx := zerolog.New(zerolog.MultiLevelWriter(logWriters...)).
			Level(zeroLoggerLevel).
			With().
			Timestamp()
		for k, v := range logContext {
			ctx = ctx.Str(k, v)
		}
		logger := ctx.Logger()
		zeroLogger = &logger
	}
	return zeroLogger
}

func zerologLevel(verbosity log.Lvl) zerolog.Level {
	switch verbosity {
	case log.LvlCrit:
		return zerolog.FatalLevel
	case log.LvlError:
		return zerolog.ErrorLevel
	case log.LvlWarn:
		return zerolog.WarnLevel
	case log.LvlInfo:
		return zerolog.InfoLevel
	case log.LvlDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

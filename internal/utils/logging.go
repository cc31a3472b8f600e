package utils

import (
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// InitLogger configures the global logger. When file is non-empty, output goes
// to a lumberjack-rotated log file; otherwise it stays on stderr.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string) {
	if file != "" {
		w := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   compress,
		}
		logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	SetLogLevel(level)
}

// SetLogLevel adjusts the minimum level. Unknown levels fall back to info.
func SetLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger = logger.Level(lvl)
}

// SetLoggerForTest replaces the global logger so tests can capture output.
func SetLoggerForTest(l zerolog.Logger) {
	logger = l
}

func emit(e *zerolog.Event, msg string, kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

// Info logs at info level with alternating key/value pairs.
func Info(msg string, kv ...any) { emit(logger.Info(), msg, kv...) }

// Warn logs at warn level with alternating key/value pairs.
func Warn(msg string, kv ...any) { emit(logger.Warn(), msg, kv...) }

// Error logs at error level with alternating key/value pairs.
func Error(msg string, kv ...any) { emit(logger.Error(), msg, kv...) }

// internal/logger/logger.go

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

type Mode int

const (
	MINIMAL Mode = iota
	NORMAL
	FULL
)

var levelMap = map[Level]zerolog.Level{
	DEBUG: zerolog.DebugLevel,
	INFO:  zerolog.InfoLevel,
	WARN:  zerolog.WarnLevel,
	ERROR: zerolog.ErrorLevel,
	FATAL: zerolog.FatalLevel,
}

// Logger is a printf-style leveled logger rendered through zerolog.
type Logger struct {
	zl      zerolog.Logger
	mode    Mode
	logFile *os.File
}

type Config struct {
	Level       Level
	Mode        Mode
	LogFilePath string
	UseColors   bool
	// JSON switches console output from the human format to one JSON object per line.
	JSON bool
	// Output overrides stdout; used by tests.
	Output io.Writer
}

func New(cfg Config) (*Logger, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	l := &Logger{mode: cfg.Mode}

	var console io.Writer = out
	if !cfg.JSON {
		cw := zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    !cfg.UseColors,
			TimeFormat: "2006-01-02 15:04:05",
		}
		if cfg.Mode == MINIMAL {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		console = cw
	}

	writers := []io.Writer{console}
	if cfg.LogFilePath != "" {
		file, err := openLogFile(cfg.LogFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to setup log file: %w", err)
		}
		l.logFile = file
		writers = append(writers, file)
	}

	l.zl = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(levelMap[cfg.Level]).
		With().Timestamp().Logger()

	return l, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), mode: NORMAL}
}

// With returns a child logger tagged with the given component name.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		zl:   l.zl.With().Str("component", component).Logger(),
		mode: l.mode,
	}
}

func (l *Logger) Close() error {
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	ev := l.zl.WithLevel(levelMap[level])
	if ev == nil {
		return
	}
	if l.mode == FULL {
		ev = ev.Caller(2)
	}
	ev.Msgf(format, args...)

	if level == FATAL {
		os.Exit(1)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
}

func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "minimal":
		return MINIMAL
	case "normal":
		return NORMAL
	case "full":
		return FULL
	default:
		return NORMAL
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
	LevelFatal: zerolog.FatalLevel,
}

// ParseLevel maps a level name to a LogLevel, falling back to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Logger is a printf-style facade over zerolog.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger writes human readable console lines to stdout.
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}, level)
}

// NewJSONLogger writes one JSON object per line to stdout.
func NewJSONLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(os.Stdout, level)
}

func NewLoggerWithWriter(w io.Writer, level LogLevel) *Logger {
	zl := zerolog.New(w).
		Level(zerologLevels[level]).
		With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()
	return &Logger{zl: zl}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.zl = l.zl.Level(zerologLevels[level])
}

// With returns a child logger that carries the given key/value fields.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{zl: l.zl.With().Fields(fields).Logger()}
}

// Zerolog exposes the underlying logger for callers that want typed fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(l.zl.Debug(), format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(l.zl.Info(), format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(l.zl.Warn(), format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(l.zl.Error(), format, args...)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(l.zl.WithLevel(zerolog.FatalLevel), format, args...)
	os.Exit(1)
}

func (l *Logger) log(ev *zerolog.Event, format string, args ...interface{}) {
	if ev == nil {
		return
	}
	ev.Msg(fmt.Sprintf(format, args...))
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitLogger replaces the global logger. format is "console" or "json".
func InitLogger(level LogLevel, format string) {
	var l *Logger
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		l = NewJSONLogger(level)
	} else {
		l = NewLogger(level)
	}
	SetLogger(l)
}

func SetLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

func GetLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo)
	}
	return globalLogger
}

func With(fields map[string]any) *Logger {
	return GetLogger().With(fields)
}

// Convenience functions. They call log directly so the caller frame depth
// matches the method form.
func Debug(format string, args ...interface{}) {
	l := GetLogger()
	l.log(l.zl.Debug(), format, args...)
}

func Info(format string, args ...interface{}) {
	l := GetLogger()
	l.log(l.zl.Info(), format, args...)
}

func Warn(format string, args ...interface{}) {
	l := GetLogger()
	l.log(l.zl.Warn(), format, args...)
}

func Error(format string, args ...interface{}) {
	l := GetLogger()
	l.log(l.zl.Error(), format, args...)
}

func Fatal(format string, args ...interface{}) {
	l := GetLogger()
	l.log(l.zl.WithLevel(zerolog.FatalLevel), format, args...)
	os.Exit(1)
}

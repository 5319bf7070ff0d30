// Package obslog provides the runtime's structured logging, routing error
// level records to stderr and everything else to stdout so containerized
// and scripted deployments can separate the two streams.
package obslog

import (
	"bytes"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Level mirrors logrus severities under runtime-specific names.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Config controls how NewLogger builds the base logrus.Logger.
type Config struct {
	Level      Level
	Format     string // "json" or "text"
	Component  string // logged on every record, e.g. "accessproc", "scheduler"
	AddCaller  bool
	TimeFormat string
}

func DefaultConfig(component string) Config {
	return Config{
		Level:      LevelInfo,
		Format:     "text",
		Component:  component,
		TimeFormat: time.RFC3339,
	}
}

// streamSplitter routes error and fatal records (text "level=error" or JSON
// "level":"error", and likewise for fatal) to stderr and everything else to
// stdout.
type streamSplitter struct{}

func (streamSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte("level=fatal")) ||
		bytes.Contains(p, []byte(`"level":"error"`)) || bytes.Contains(p, []byte(`"level":"fatal"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// NewLogger builds a logrus.Logger pre-bound with the runtime's stream
// splitter and the component field.
func NewLogger(cfg Config) *logrus.Logger {
	l := logrus.New()

	switch cfg.Level {
	case LevelDebug:
		l.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		l.SetLevel(logrus.WarnLevel)
	case LevelError:
		l.SetLevel(logrus.ErrorLevel)
	case LevelFatal:
		l.SetLevel(logrus.FatalLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.TimeFormat})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: cfg.TimeFormat, FullTimestamp: true})
	}

	l.SetReportCaller(cfg.AddCaller)
	l.SetOutput(streamSplitter{})
	return l
}

// Logger is a field-chaining wrapper over a base logrus.Logger, mirroring
// the teacher's ContextLogger idiom so components can attach identifying
// fields (appId, taskId, groupId, ...) once and reuse the result.
type Logger struct {
	base   *logrus.Logger
	fields logrus.Fields
}

func New(cfg Config) *Logger {
	fields := logrus.Fields{}
	if cfg.Component != "" {
		fields["component"] = cfg.Component
	}
	return &Logger{base: NewLogger(cfg), fields: fields}
}

func (l *Logger) clone(add logrus.Fields) *Logger {
	merged := make(logrus.Fields, len(l.fields)+len(add))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range add {
		merged[k] = v
	}
	return &Logger{base: l.base, fields: merged}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.clone(logrus.Fields{key: value})
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.clone(logrus.Fields(fields))
}

func (l *Logger) WithError(err error) *Logger {
	return l.clone(logrus.Fields{"error": err.Error()})
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.base.WithFields(l.fields).Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.base.WithFields(l.fields).Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.base.WithFields(l.fields).Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.base.WithFields(l.fields).Errorf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.base.WithFields(l.fields).Fatalf(format, args...) }

func (l *Logger) Debug(msg string) { l.base.WithFields(l.fields).Debug(msg) }
func (l *Logger) Info(msg string)  { l.base.WithFields(l.fields).Info(msg) }
func (l *Logger) Warn(msg string)  { l.base.WithFields(l.fields).Warn(msg) }
func (l *Logger) Error(msg string) { l.base.WithFields(l.fields).Error(msg) }

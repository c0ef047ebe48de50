// Package obslog provides the structured logging used by the rule engine
// and its collaborators. It wraps logrus with an output splitter that routes
// error-level lines to stderr and everything else to stdout, so
// containerized deployments can treat the two streams differently — the
// same routing strategy as the teacher module's common/logging.go, renamed
// for this domain and exposed as a small typed wrapper instead of a bare
// global *logrus.Logger.
package obslog

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// outputSplitter routes formatted log lines to stderr when they carry
// level=error, and to stdout otherwise.
type outputSplitter struct{}

func (outputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is a thin wrapper around *logrus.Logger exposing the field-pair
// calling convention the pipeline executor uses for one log line per
// (item, rule) outcome: Info("message", "key1", val1, "key2", val2, ...).
type Logger struct {
	base *logrus.Logger
}

// New creates a Logger. level is one of logrus's level names
// (debug/info/warn/error); an unrecognized level defaults to info. When json
// is true, logs are emitted as JSON lines (suited to log aggregation);
// otherwise a human-readable text formatter is used.
func New(level string, json bool) *Logger {
	base := logrus.New()
	base.SetOutput(outputSplitter{})

	if json {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	return &Logger{base: base}
}

// NewDiscard creates a Logger that drops all output; useful in tests.
func NewDiscard() *Logger {
	l := New("panic", false)
	return l
}

func (l *Logger) fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func (l *Logger) Info(msg string, kv ...any)  { l.base.WithFields(l.fields(kv)).Info(msg) }
func (l *Logger) Warn(msg string, kv ...any)  { l.base.WithFields(l.fields(kv)).Warn(msg) }
func (l *Logger) Error(msg string, kv ...any) { l.base.WithFields(l.fields(kv)).Error(msg) }
func (l *Logger) Debug(msg string, kv ...any) { l.base.WithFields(l.fields(kv)).Debug(msg) }

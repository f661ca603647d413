// Package obslog provides the narrow structured-logging surface the layout
// engine needs: a handful of warning and lifecycle notices, never gating
// correctness.
package obslog

import "github.com/sirupsen/logrus"

// Logger is a component-scoped logger.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger tagged with component, e.g. "pagemap" or "saveslot".
func New(component string) *Logger {
	return &Logger{entry: logrus.WithField("component", component)}
}

// Warn logs a non-fatal anomaly: msg plus key/value pairs.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Warn(msg)
}

// Info logs a lifecycle notice.
func (l *Logger) Info(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Info(msg)
}

func fields(kv []interface{}) logrus.Fields {
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

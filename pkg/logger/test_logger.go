package logger

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger records entries in memory. Children created by the With
// methods share the parent's record.
type TestLogger struct {
	rec    *record
	fields map[string]interface{}
	err    error
}

type record struct {
	mu      sync.Mutex
	entries []LogMessage
}

// LogMessage is one captured entry. Fields include those inherited from
// WithField and WithFields.
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Error   error
}

// NewTestLogger creates an empty recording logger
func NewTestLogger() *TestLogger {
	return &TestLogger{rec: &record{}}
}

func (l *TestLogger) child(fields map[string]interface{}, err error) *TestLogger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	if err == nil {
		err = l.err
	}
	return &TestLogger{rec: l.rec, fields: merged, err: err}
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	entry := LogMessage{Level: level, Message: msg, Fields: l.child(fields, nil).fields, Error: l.err}

	l.rec.mu.Lock()
	l.rec.entries = append(l.rec.entries, entry)
	l.rec.mu.Unlock()
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }

// Fatal records the entry without exiting
func (l *TestLogger) Fatal(msg string) { l.log("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.log("FATAL", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.child(map[string]interface{}{key: value}, nil)
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return l.child(fields, nil)
}

func (l *TestLogger) WithError(err error) Logger {
	return l.child(nil, err)
}

func (l *TestLogger) WithContext(ctx context.Context) Logger {
	return l
}

// GetZerolog returns a disabled zerolog logger
func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

// Messages returns a copy of every captured entry
func (l *TestLogger) Messages() []LogMessage {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	return append([]LogMessage(nil), l.rec.entries...)
}

// MessagesAt returns the entries logged at level, e.g. "WARN"
func (l *TestLogger) MessagesAt(level string) []LogMessage {
	var out []LogMessage
	for _, m := range l.Messages() {
		if m.Level == level {
			out = append(out, m)
		}
	}
	return out
}

// HasMessage reports whether an entry with exactly text was logged
func (l *TestLogger) HasMessage(text string) bool {
	_, ok := l.find(func(m LogMessage) bool { return m.Message == text })
	return ok
}

// HasMessageContaining reports whether any entry contains text
func (l *TestLogger) HasMessageContaining(text string) bool {
	_, ok := l.find(func(m LogMessage) bool { return strings.Contains(m.Message, text) })
	return ok
}

// FieldsOf returns the fields of the first entry with exactly text, or nil
func (l *TestLogger) FieldsOf(text string) map[string]interface{} {
	m, _ := l.find(func(m LogMessage) bool { return m.Message == text })
	return m.Fields
}

func (l *TestLogger) find(match func(LogMessage) bool) (LogMessage, bool) {
	for _, m := range l.Messages() {
		if match(m) {
			return m, true
		}
	}
	return LogMessage{}, false
}

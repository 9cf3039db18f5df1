// Package canlog wraps a structured logger for CanNm notifications and
// development-error traces, grounded on keskad-loco's use of
// sirupsen/logrus throughout its command implementations.
package canlog

import "github.com/sirupsen/logrus"

// Logger reports per-channel notifications and Det-equivalent development
// errors with structured fields rather than formatted strings, so log
// aggregation can filter on channel/from/to/det_code.
type Logger struct {
	entry *logrus.Entry
}

// New wraps the given logrus.Logger (or logrus.StandardLogger() if nil).
func New(base *logrus.Logger) *Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &Logger{entry: logrus.NewEntry(base)}
}

// Channel scopes subsequent log entries to one NM channel.
func (l *Logger) Channel(ch int) *Logger {
	return &Logger{entry: l.entry.WithField("channel", ch)}
}

// StateChange logs a channel transition at debug level.
func (l *Logger) StateChange(ch int, from, to string) {
	l.entry.WithFields(logrus.Fields{
		"channel": ch,
		"from":    from,
		"to":      to,
	}).Debug("cannm state change")
}

// Notification logs an upper-layer callback at info level.
func (l *Logger) Notification(ch int, name string) {
	l.entry.WithFields(logrus.Fields{
		"channel": ch,
		"event":   name,
	}).Info("cannm notification")
}

// DevError logs a development-error precondition violation at warn level,
// standing in for AUTOSAR's Det trace sink (spec.md's out-of-scope
// "development error tracing" collaborator, made concrete for this repo).
func (l *Logger) DevError(ch int, detCode string, err error) {
	l.entry.WithFields(logrus.Fields{
		"channel":  ch,
		"det_code": detCode,
	}).WithError(err).Warn("cannm development error")
}

// Package logging provides the structured logging interface used across
// the destination health/failure-detection core.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Logger instances provide custom logging. The destination package never
// talks to logrus directly so that a router embedding it can supply its
// own sink.
type Logger interface {
	Error(...interface{})
	Errorf(string, ...interface{})

	Warn(...interface{})
	Warnf(string, ...interface{})

	Info(...interface{})
	Infof(string, ...interface{})

	Debug(...interface{})
	Debugf(string, ...interface{})

	WithFields(map[string]interface{}) Logger
}

// DefaultLog is a logrus-backed implementation of Logger.
type DefaultLog struct {
	logger *logrus.Logger
	fields logrus.Fields
}

var _ Logger = &DefaultLog{}

// New returns a DefaultLog writing to a freshly constructed logrus.Logger.
func New() *DefaultLog {
	return &DefaultLog{logger: logrus.New(), fields: logrus.Fields{}}
}

// Default is the package-wide fallback logger used by components that were
// not explicitly given one.
var Default Logger = New()

func (dl *DefaultLog) Error(a ...interface{}) { dl.entry().Error(a...) }
func (dl *DefaultLog) Errorf(f string, a ...interface{}) {
	dl.entry().Errorf(f, a...)
}
func (dl *DefaultLog) Warn(a ...interface{}) { dl.entry().Warn(a...) }
func (dl *DefaultLog) Warnf(f string, a ...interface{}) {
	dl.entry().Warnf(f, a...)
}
func (dl *DefaultLog) Info(a ...interface{}) { dl.entry().Info(a...) }
func (dl *DefaultLog) Infof(f string, a ...interface{}) {
	dl.entry().Infof(f, a...)
}
func (dl *DefaultLog) Debug(a ...interface{}) { dl.entry().Debug(a...) }
func (dl *DefaultLog) Debugf(f string, a ...interface{}) {
	dl.entry().Debugf(f, a...)
}

func (dl *DefaultLog) entry() *logrus.Entry {
	return dl.logger.WithFields(dl.fields)
}

func (dl *DefaultLog) WithFields(fields map[string]interface{}) Logger {
	merged := make(logrus.Fields, len(dl.fields)+len(fields))
	for k, v := range dl.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &DefaultLog{logger: dl.logger, fields: merged}
}

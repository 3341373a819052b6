package logging

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// OriginField holds the frame a logged failure was first wrapped at.
const OriginField = "origin"

// Unexported but considered part of the stable interface of pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Origin returns the innermost stack recorded in the chain of err, following both pkg/errors causes and
// fmt.Errorf wrapping. It returns nil if no error in the chain recorded one.
func Origin(err error) errors.StackTrace {
	var origin errors.StackTrace
	for err != nil {
		if tracer, ok := err.(stackTracer); ok {
			origin = tracer.StackTrace()
		}
		if causer, ok := err.(interface{ Cause() error }); ok {
			err = causer.Cause()
		} else {
			err = errors.Unwrap(err)
		}
	}
	return origin
}

// WithFailure adds err to entry, plus its origin when the logger is at debug level.
func WithFailure(entry *logrus.Entry, err error) *logrus.Entry {
	entry = entry.WithError(err)
	if !entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return entry
	}
	if origin := Origin(err); len(origin) > 0 {
		entry = entry.WithField(OriginField, fmt.Sprintf("%+v", origin[0]))
	}
	return entry
}

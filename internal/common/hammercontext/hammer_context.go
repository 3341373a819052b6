package hammercontext

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Context is an extension of Go's context which also includes a logger. Every stage, batch and probe of a run
// receives one of these so that progress is narrated with the fields of the scope it belongs to.
type Context struct {
	context.Context
	Log *logrus.Entry
}

// Background creates an empty context with a default logger.  It is analogous to context.Background()
func Background() *Context {
	return &Context{
		Context: context.Background(),
		Log:     logrus.NewEntry(logrus.StandardLogger()),
	}
}

// New returns a hammer context that encapsulates both a go context and a logger
func New(ctx context.Context, log *logrus.Entry) *Context {
	return &Context{
		Context: ctx,
		Log:     log,
	}
}

// WithCancel returns a copy of parent with a new Done channel. It is analogous to context.WithCancel()
func WithCancel(parent *Context) (*Context, context.CancelFunc) {
	c, cancel := context.WithCancel(parent.Context)
	return &Context{
		Context: c,
		Log:     parent.Log,
	}, cancel
}

// WithoutCancel returns a copy of parent that is never cancelled but keeps the logger and values.
// In-flight SDK operations run under such a context: cancellation stops the orchestrator waiting on them,
// it never aborts them.
func WithoutCancel(parent *Context) *Context {
	return &Context{
		Context: context.WithoutCancel(parent.Context),
		Log:     parent.Log,
	}
}

// WithLogField returns a copy of parent with the supplied key-value added to the logger
func WithLogField(parent *Context, key string, val interface{}) *Context {
	return &Context{
		Context: parent.Context,
		Log:     parent.Log.WithField(key, val),
	}
}

// WithLogFields returns a copy of parent with the supplied key-values added to the logger
func WithLogFields(parent *Context, fields logrus.Fields) *Context {
	return &Context{
		Context: parent.Context,
		Log:     parent.Log.WithFields(fields),
	}
}

// Sleep waits for d or until ctx is done, whichever happens first. It returns ctx.Err() if ctx finished first.
func Sleep(ctx *Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

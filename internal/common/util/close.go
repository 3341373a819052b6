package util

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// CloseResource closes c, logging rather than returning a failure. Use it for resources whose close
// errors cannot change the outcome of a run.
func CloseResource(logger *log.Entry, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.WithError(err).Warnf("Failed to close %s cleanly", name)
	}
}

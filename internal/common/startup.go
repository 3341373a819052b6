package common

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/mediahammer/internal/common/logging"
)

// ConfigureCommandLineLogging narrates progress as bare lines on stderr until a verb applies its own
// logging options.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&logging.CommandLineFormatter{})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
}

// ConfigureLogging applies the logging options of a verb to the standard logger.
func ConfigureLogging(config logging.Config) error {
	return logging.Configure(log.StandardLogger(), os.Stderr, config)
}

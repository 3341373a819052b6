package logging

import (
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

const (
	FormatCommandLine = "cli"
	FormatText        = "text"
	FormatJson        = "json"
)

var validLogFormats = map[string]bool{
	FormatCommandLine: true,
	FormatText:        true,
	FormatJson:        true,
}

// Config defines how the command line logs its progress.
type Config struct {
	// Log level, e.g. info, debug
	Level string `mapstructure:"log-level"`
	// Logging format, one of cli, text or json
	Format string `mapstructure:"log-format"`
	// Whether to append fields to cli formatted lines
	Verbose bool `mapstructure:"verbose"`
}

// Configure applies c to logger, writing to out.
func Configure(logger *log.Logger, out io.Writer, c Config) error {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return err
	}
	format := c.Format
	if format == "" {
		format = FormatCommandLine
	}
	if err := validateLogFormat(format); err != nil {
		return err
	}

	logger.SetOutput(out)
	logger.SetLevel(level)
	switch format {
	case FormatText:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true})
	case FormatJson:
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		logger.SetFormatter(&CommandLineFormatter{Verbose: c.Verbose})
	}
	return nil
}

func validateLogFormat(f string) error {
	_, ok := validLogFormats[f]
	if !ok {
		keys := maps.Keys(validLogFormats)
		sort.Strings(keys)
		return errors.Errorf("unknown log format: %s.  Valid formats are %s", f, keys)
	}
	return nil
}

// ParseLevel accepts every logrus level plus "none" and "off", which silence everything but panics.
func ParseLevel(level string) (log.Level, error) {
	if level == "" {
		return log.InfoLevel, nil
	}
	switch strings.ToLower(level) {
	case "none", "off":
		return log.PanicLevel, nil
	default:
		l, err := log.ParseLevel(level)
		if err != nil {
			return log.InfoLevel, errors.Errorf("unknown level: %s", level)
		}
		return l, nil
	}
}

func sortedKeys(fields log.Fields) []string {
	keys := maps.Keys(fields)
	sort.Strings(keys)
	return keys
}

package logging

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CommandLineFormatter renders only the message, which is how progress is narrated on stderr.
// Fields are appended in key=value form when Verbose is set.
type CommandLineFormatter struct {
	Verbose bool
}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	if !f.Verbose || len(entry.Data) == 0 {
		return []byte(fmt.Sprintf("%s\n", entry.Message)), nil
	}
	var b strings.Builder
	b.WriteString(entry.Message)
	for _, key := range sortedKeys(entry.Data) {
		fmt.Fprintf(&b, " %s=%v", key, entry.Data[key])
	}
	b.WriteString("\n")
	return []byte(b.String()), nil
}

package tunnel

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process-wide structured logger, optionally also
// writing to logFile alongside stderr. It mirrors the teacher's pattern of
// threading a single *logrus.Entry down through every long-lived component
// rather than having each package fetch a global logger.
func NewLogger(logFile string) (*logrus.Entry, error) {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("tunnel: open log file %s: %w", logFile, err)
		}
		base.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	return logrus.NewEntry(base), nil
}

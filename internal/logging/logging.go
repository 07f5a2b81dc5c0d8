package logging

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// LogFilePath builds the log file path of one run, e.g.
// logs/clustermap.serve.20260212_213836.log
func LogFilePath(logsDir, command string, start time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.%s.log", ServiceName, command, start.Format("20060102_150405")),
	)
}

// NewGraylogWriter returns a GELF writer sending UDP messages to address.
// The facility is set to the service name.
func NewGraylogWriter(address string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("connecting to graylog at %s: %w", address, err)
	}
	w.Facility = ServiceName
	return w, nil
}

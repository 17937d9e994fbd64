package progress

import (
	"unicode/utf8"

	"github.com/friedman-econ/friedman/internal/logging"
)

// LogSink records progress lines in the job's debug log.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a sink that logs through log.
func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log}
}

// Publish logs line at debug level under jobID.
func (s *LogSink) Publish(jobID, line string) {
	s.log.WithJob(jobID).Debug("engine progress", map[string]any{"line": truncate(line, 200)})
}

// Tee publishes each line to every sink in order.
type Tee []interface{ Publish(jobID, line string) }

// Publish forwards to every sink.
func (t Tee) Publish(jobID, line string) {
	for _, s := range t {
		s.Publish(jobID, line)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

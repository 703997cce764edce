package logger

import "github.com/zjy-dev/coveralls/internal/coverage"

// Diagnostics forwards normalizer findings to a Logger.
type Diagnostics struct {
	Log *Logger
}

// NewDiagnostics wraps l. A nil l uses the default logger.
func NewDiagnostics(l *Logger) *Diagnostics {
	if l == nil {
		l = Default()
	}
	return &Diagnostics{Log: l}
}

// Warn logs a skipped or failed file at WARN level.
func (d *Diagnostics) Warn(kind coverage.Kind, file, detail string) {
	d.Log.Warnf("%s (%s)", detail, kind)
}

// Debug logs a dropped detail of file at DEBUG level.
func (d *Diagnostics) Debug(kind coverage.Kind, file, detail string) {
	d.Log.Debugf("%s: %s (%s)", file, detail, kind)
}

package internal

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging seam every component accepts at construction,
// following the same injected-interface shape goeip used for its bare
// *log.Logger — but shaped around logrus.FieldLogger so structured fields
// (event, state, code) travel with the message the way every sysbox-libs
// leaf module logs.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// WithFields returns a Logger carrying the given structured fields on
	// every subsequent call, mirroring logrus.FieldLogger.WithFields.
	WithFields(fields map[string]any) Logger
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)             {}
func (nopLogger) Infof(string, ...any)              {}
func (nopLogger) Warnf(string, ...any)              {}
func (nopLogger) Errorf(string, ...any)             {}
func (n nopLogger) WithFields(map[string]any) Logger { return n }

// NopLogger returns a Logger that discards everything, for silent
// construction in tests.
func NopLogger() Logger {
	return nopLogger{}
}

// logrusLogger adapts logrus.FieldLogger to the Logger interface.
type logrusLogger struct {
	entry logrus.FieldLogger
}

// NewLogger wraps a caller-supplied *logrus.Logger.
func NewLogger(l *logrus.Logger) Logger {
	if l == nil {
		return NopLogger()
	}
	return &logrusLogger{entry: l}
}

// NewConsoleLogger returns a logrus.Logger logging text-formatted lines to
// w (os.Stdout is the usual choice), replacing goeip's bare *log.Logger
// console logger with the pack-standard logrus stack.
func NewConsoleLogger(w io.Writer) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: l}
}

func (l *logrusLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

func (l *logrusLogger) WithFields(fields map[string]any) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

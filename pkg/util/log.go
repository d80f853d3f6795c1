package util

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. Every package logs through it so the
// daemon has a single level, format and destination.
var Logger = logrus.New()

// Log formats accepted by Configure.
const (
	FormatText = "text"
	FormatJSON = "json"
)

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(textFormatter())
}

func textFormatter() logrus.Formatter {
	return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"}
}

func jsonFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"}
}

// Configure sets level and format together. Nothing is changed when either
// is invalid.
func Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	var f logrus.Formatter
	switch format {
	case FormatText, "":
		f = textFormatter()
	case FormatJSON:
		f = jsonFormatter()
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	Logger.SetLevel(lvl)
	Logger.SetFormatter(f)
	return nil
}

// SetLogLevel sets the logging level
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetLogOutput redirects the logger, typically to a buffer in tests.
func SetLogOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat switches to one JSON object per line.
func SetJSONFormat() {
	Logger.SetFormatter(jsonFormatter())
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

func WithFields(fields map[string]interface{}) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithGroup tags an entry with the next-hop group id.
func WithGroup(groupID string) *logrus.Entry {
	return Logger.WithField("group", groupID)
}

// WithPort tags an entry with a watch port name.
func WithPort(port string) *logrus.Entry {
	return Logger.WithField("port", port)
}

// WithOperation tags an entry with the request operation (SET, DEL, prune...).
func WithOperation(operation string) *logrus.Entry {
	return Logger.WithField("operation", operation)
}

// Critical logs a condition that needs out-of-band intervention. The entry
// is tagged critical=true so log pipelines can alert on it.
func Critical(entry *logrus.Entry, format string, args ...interface{}) {
	if entry == nil {
		entry = logrus.NewEntry(Logger)
	}
	entry.WithField("critical", true).Errorf(format, args...)
}

func Debugf(format string, args ...interface{}) { Logger.Debugf(format, args...) }
func Info(args ...interface{})                  { Logger.Info(args...) }
func Infof(format string, args ...interface{})  { Logger.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Logger.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Logger.Errorf(format, args...) }

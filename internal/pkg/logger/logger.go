package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the shared application logger.
var Log = logrus.New()

// Init configures the shared logger from the runtime environment. Production
// environments get JSON output for log shipping, everything else a readable
// text format.
func Init(level, env string) {
	Log.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		Log.Warnf("invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	Log.SetLevel(parsed)

	switch strings.ToLower(env) {
	case "prod", "production", "staging":
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
}

// Get returns the configured shared logger.
func Get() *logrus.Logger {
	return Log
}

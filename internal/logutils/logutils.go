package logutils

import (
	"github.com/sirupsen/logrus"
)

// Log is the shared application logger. InitLogger replaces it with a logger
// configured from LOG_LEVEL; the default keeps early startup messages visible.
var Log = logrus.New()

// Fields aliases logrus.Fields so call sites don't import logrus directly.
type Fields = logrus.Fields

func InitLogger(level string) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to 'info'", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	Log = logger
}

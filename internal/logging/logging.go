package logging

import (
	"io"
	"os"

	"github.com/safar/cart-billing/internal/config"
	"github.com/sirupsen/logrus"
)

const ServiceName = "cart-billing"

// New builds the process logger. An unparseable level falls back to info.
func New(cfg config.LogConfig) *logrus.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

func NewWithWriter(cfg config.LogConfig, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

// Service returns an entry tagged with the service name, used as the root
// logger handed to every component.
func Service(logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("service", ServiceName)
}

package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/san-kum/heaterloop/internal/config"
	"github.com/sirupsen/logrus"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds the process logger. Output goes to cfg.File when set,
// otherwise to stderr. File output is JSON so it survives the terminal view.
func NewLogger(cfg config.LogConfig) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: log level %q", config.ErrInvalid, cfg.Level)
	}
	logger.SetLevel(lvl)

	if cfg.File == "" {
		logger.SetOutput(os.Stderr)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(f)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	return logger, f, nil
}

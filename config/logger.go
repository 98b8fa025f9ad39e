package config

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a logger from c. When c.File is set the log goes to
// stderr and to a size-rotated file; the returned closer closes that file.
func NewLogger(c LogConfig) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("config: log.level: %w", err)
	}
	l := logrus.New()
	l.SetLevel(level)
	if c.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if c.File == "" {
		l.SetOutput(os.Stderr)
		return l, nopCloser{}, nil
	}
	file := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   true,
	}
	l.SetOutput(io.MultiWriter(os.Stderr, file))
	return l, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

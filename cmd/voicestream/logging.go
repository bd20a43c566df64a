package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// setupLogging applies the log level and output. The returned function
// restores stderr and closes the log file.
func setupLogging(level, file string) (func(), error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if file == "" {
		logrus.SetOutput(os.Stderr)
		return func() {}, nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)

	var once sync.Once
	return func() {
		once.Do(func() {
			logrus.SetOutput(os.Stderr)
			_ = f.Close()
		})
	}, nil
}

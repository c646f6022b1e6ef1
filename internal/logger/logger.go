package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	log "github.com/sirupsen/logrus"
)

// New builds the agent logger. When file is set, output goes to a rotating
// log file in addition to stdout.
func New(level, file string) *log.Logger {
	l := log.New()
	l.SetLevel(parseLevel(level))
	l.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if file == "" {
		l.SetOutput(os.Stdout)
		return l
	}
	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 7,
		MaxAge:     7, // days
		Compress:   true,
	}
	l.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return l
}

func parseLevel(raw string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

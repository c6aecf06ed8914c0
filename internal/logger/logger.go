package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// output is shared by every logger so component loggers created at
	// package init pick up the writers chosen later in Setup.
	output = &switchWriter{w: os.Stdout}

	// Global logger instance
	Logger = zerolog.New(output).With().Timestamp().Logger()
)

type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

// Options controls where log output goes besides the console.
type Options struct {
	// Level is one of debug, info, warn, error. Anything else means info.
	Level string
	// FilePath enables a rotating JSON log file alongside console output.
	FilePath string
	// NoColor disables ANSI colors on the console writer.
	NoColor bool
}

// Initialize sets up the global logger with console output only.
func Initialize(logLevel string) {
	Setup(Options{Level: logLevel})
}

// Setup sets up the global logger with appropriate configuration
func Setup(opts Options) {
	// Set time format to be more human-readable
	zerolog.TimeFieldFormat = time.RFC3339

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    opts.NoColor,
	}

	var w io.Writer = consoleWriter
	if opts.FilePath != "" {
		w = zerolog.MultiLevelWriter(consoleWriter, FileWriter(opts.FilePath))
	}
	output.set(w)

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	// Replace standard log with zerolog
	log.Logger = Logger
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(logLevel string) zerolog.Level {
	switch logLevel {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter returns a size-rotated log file writer for use alongside console logging
func FileWriter(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
}

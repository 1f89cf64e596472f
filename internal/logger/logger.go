package logger

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

var log zerolog.Logger

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger based on the given configuration
func Init(debug, verbose, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(WarnLevel) // Default log level

	if debug {
		SetLogLevel(DebugLevel)
	} else if verbose {
		SetLogLevel(InfoLevel)
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// ParseLevel maps a configured level name to a LogLevel. Unknown names map to WarnLevel.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "error":
		return ErrorLevel
	default:
		return WarnLevel
	}
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return unix.Getpgrp() == unix.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Error().
		Str("error_code", string(err.Code())).
		Err(err)}
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Fatal().
		Str("error_code", string(err.Code())).
		Err(err)}
}

type componentLogger struct {
	component string
}

// With returns a Logger that tags every event with the component name.
func With(component string) Logger {
	return componentLogger{component: component}
}

func (c componentLogger) Debug() *LogEvent {
	return &LogEvent{log.Debug().Str("component", c.component)}
}

func (c componentLogger) Info() *LogEvent {
	return &LogEvent{log.Info().Str("component", c.component)}
}

func (c componentLogger) Warn() *LogEvent {
	return &LogEvent{log.Warn().Str("component", c.component)}
}

func (c componentLogger) Error() *LogEvent {
	return &LogEvent{log.Error().Str("component", c.component)}
}

func (c componentLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Error().
		Str("component", c.component).
		Str("error_code", string(err.Code())).
		Err(err)}
}

type nopLogger struct{}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug() *LogEvent { return &LogEvent{} }
func (nopLogger) Info() *LogEvent { return &LogEvent{} }
func (nopLogger) Warn() *LogEvent { return &LogEvent{} }
func (nopLogger) Error() *LogEvent { return &LogEvent{} }
func (nopLogger) ErrorWithCode(_ errors.Error) *LogEvent { return &LogEvent{} }

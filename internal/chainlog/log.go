// Package chainlog provides structured logging for the chain-state
// engine: a global zerolog.Logger plus one pre-configured logger per
// component.
package chainlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for each part of the engine.
var (
	Engine   zerolog.Logger
	Ingest   zerolog.Logger
	UTXO     zerolog.Logger
	Unstable zerolog.Logger
	RPC      zerolog.Logger
	Store    zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init initializes the logger with the given configuration. When file
// is non-empty, logs go to both the console (colored or JSON per
// jsonOutput) and the file (always JSON).
func Init(level string, jsonOutput bool, file string) error {
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}

		lvl := parseLevel(level)

		var consoleWriter io.Writer
		if jsonOutput {
			consoleWriter = os.Stdout
		} else {
			consoleWriter = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		}

		multi := zerolog.MultiLevelWriter(consoleWriter, f)
		Logger = zerolog.New(multi).Level(lvl).With().Timestamp().Logger()
	} else if jsonOutput {
		Logger = NewJSONLogger(os.Stdout, level)
	} else {
		Logger = NewConsoleLogger(os.Stdout, level)
	}

	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(output).Level(parseLevel(level)).With().Timestamp().Logger()
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
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

func initComponentLoggers() {
	Engine = Logger.With().Str("component", "engine").Logger()
	Ingest = Logger.With().Str("component", "ingest").Logger()
	UTXO = Logger.With().Str("component", "utxo").Logger()
	Unstable = Logger.With().Str("component", "unstable").Logger()
	RPC = Logger.With().Str("component", "rpc").Logger()
	Store = Logger.With().Str("component", "store").Logger()
}

// WithComponent returns a logger tagged with an arbitrary component name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

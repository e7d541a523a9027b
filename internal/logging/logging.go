// Package logging initializes and configures the global zerolog instance.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/leka/craftwatch/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger based on the provided configuration.
// It sets the log level, output destination (stdout, stderr, or file) and
// format (JSON or console).
func Setup(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr", "":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			tempLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			tempLogger.Error().Err(err).Str("path", cfg.Output).Msg("Failed to open log file, falling back to stderr")
			writer = os.Stderr
		} else {
			writer = file
		}
	}

	if cfg.Format == "json" {
		log.Logger = zerolog.New(writer).With().Timestamp().Logger()
		return
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        writer,
		TimeFormat: time.RFC3339,
	}
	if f, ok := writer.(*os.File); ok {
		if os.Getenv("NO_COLOR") != "" || !isTerminal(f) {
			consoleWriter.NoColor = true
		}
	}
	log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()
}

// isTerminal checks if the file descriptor refers to a character device.
func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

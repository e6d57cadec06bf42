package transfer

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global console logger. Debug mode turns on the
// per-component trace the engine emits around retries, probes, and chunk
// state transitions.
func InitLogger(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
}

// SetLogOutput redirects engine logs to w. Tests use this to discard or
// capture log output.
func SetLogOutput(w io.Writer) {
	log.Logger = zerolog.New(consoleWriter(w)).With().Timestamp().Logger()
}

// GetLogger returns a logger tagged with the engine component it serves.
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.DateTime,
	}
}

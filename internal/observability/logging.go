package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// NewLogger returns a component-tagged JSON logger on stdout. The level is
// read from PERP_LOG_LEVEL (zerolog level names); unset or unparsable
// values fall back to info.
func NewLogger(component string) zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("PERP_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

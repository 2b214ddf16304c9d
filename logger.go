package match

import (
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Str("component", "orderbook").Logger()

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	logger = l
}

package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger derives a named logger from the global one installed by
// logging.Configure.
func InitLogger(app string) zerolog.Logger {
	return log.Logger.With().Str("app", app).Logger()
}

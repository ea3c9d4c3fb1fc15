package observability

import (
	logs "github.com/danmuck/smplog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cictl/internal/logging"
)

// InitLogger configures runtime logging and tags both the smplog and zerolog
// global loggers with app.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := logs.With().Str("app", app).Logger()
	logs.SetLogger(logger)
	log.Logger = logger
	return logger
}

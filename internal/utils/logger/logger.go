// Package logger provides a global logger for the application
package logger

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// Level resolves the log level from ENVIRONMENT, overridden by the debug and
// trace flags.
func Level(environment string, debug, trace bool) zerolog.Level {
	switch {
	case trace:
		return zerolog.TraceLevel
	case debug:
		return zerolog.DebugLevel
	}
	switch strings.ToLower(environment) {
	case "dev", "test":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init loads .env when present and sets up the global zerolog logger with
// console output on stderr.
//
// Example usage, inside a cobra PersistentPreRun:
//
//	logger.Init(debug, trace)
func Init(debug, trace bool) {
	envErr := godotenv.Load()

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Caller().Logger()

	environment := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if environment == "" {
		environment = "prod"
	}

	level := Level(environment, debug, trace)
	zerolog.SetGlobalLevel(level)

	if envErr != nil && !os.IsNotExist(envErr) {
		log.Warn().Err(envErr).Msg("failed to load .env file")
	}
	log.Debug().Str("environment", environment).Str("level", level.String()).Msg("logger initialized")
}

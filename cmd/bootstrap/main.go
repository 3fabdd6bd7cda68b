package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/openfroyo/bootstrap/cmd/bootstrap/commands"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An interrupt or termination cancels the run; the command's finalizer
	// then takes the same exit path as any other failure. Handling is
	// restored to the default afterwards so a second signal ends the process
	// at once.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		signal.Stop(sigChan)
		log.Warn().Str("signal", sig.String()).Msg("Received signal, stopping after cleanup (repeat to exit immediately)")
		cancel()
	}()

	code := commands.Execute(ctx, Version, Commit, BuildDate)
	cancel()
	os.Exit(code)
}

// setupLogging configures the global zerolog logger used before a command
// has loaded its configuration.
func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// setupLogger configures zerolog for human-readable console output,
// the same console-writer-plus-timestamp shape the teacher's CLI
// commands use.
func setupLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// setupSignalHandler calls onFirstSignal on the first SIGINT/SIGTERM
// (a graceful-stop request, honored at the next cycle boundary). If a
// second signal arrives before the run has exited, it calls
// onSecondSignal and then cancels the returned context, giving an
// impatient operator a way to force the process down without waiting
// for the current cycle.
func setupSignalHandler(logger zerolog.Logger, onFirstSignal, onSecondSignal func()) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("received signal, stopping at next cycle boundary")
		if onFirstSignal != nil {
			onFirstSignal()
		}

		sig = <-sigChan
		logger.Warn().Str("signal", sig.String()).Msg("received second signal, forcing abort")
		if onSecondSignal != nil {
			onSecondSignal()
		}
		cancel()
	}()

	return ctx
}

// Command chessrl is the training core's single binary: it drives a
// training run, evaluates a saved model against a baseline or another
// model, plays a saved model against a human over the terminal, and
// (via the hidden --worker entrypoint) re-execs itself as a self-play
// worker subprocess, mirroring the single-binary subprocess-worker
// idiom.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/evanburke/chessrl/internal/rlerr"
	"github.com/evanburke/chessrl/internal/selfplay"
)

// version is set by ldflags during build.
var version = "dev"

// CLI is the human-facing command tree. The --worker entrypoint is
// deliberately not a kong command: it is intercepted in main before
// kong.Parse ever sees the argument vector, since it is spawned by
// re-invoking os.Args[0] with a bare flag rather than a subcommand
// name, and it talks to its parent entirely through environment
// variables (see internal/selfplay.RunWorker), not CLI flags.
type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Train    TrainCmd         `cmd:"" help:"Run a self-play training loop"`
	Evaluate EvaluateCmd      `cmd:"" help:"Evaluate a saved model"`
	Play     PlayCmd          `cmd:"" help:"Play a saved model from the terminal"`
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--worker" {
			os.Exit(selfplay.RunWorker())
		}
	}

	defer recoverFatalInvariant()

	var cli CLI
	parseCtx := kong.Parse(&cli,
		kong.Name("chessrl"),
		kong.Description("Self-play DQN training core for a chess-playing agent"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version},
	)

	if err := parseCtx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "chessrl:", err)
		os.Exit(exitCode(err))
	}
}

// recoverFatalInvariant is the single place that turns a fatal
// invariant-violation panic (an IllegalActionError, on which
// internal/rlenv panics, or an InvalidBatchError, on which
// internal/pipeline panics, rather than either being treated as a
// recoverable cycle-level error) into a one-line
// message and a non-zero exit instead of a raw stack trace.
func recoverFatalInvariant() {
	if r := recover(); r != nil {
		fmt.Fprintln(os.Stderr, "chessrl: fatal invariant violation:", r)
		os.Exit(1)
	}
}

// exitCode maps an rlerr.Kind onto the CLI's documented exit codes: 2
// for a configuration error, 3 for an I/O failure, 1 for everything
// else. A plain (non-rlerr) error -- the common case for kong's own
// flag-parsing failures -- also exits 1.
func exitCode(err error) int {
	var typed *rlerr.Error
	if errors.As(err, &typed) {
		switch typed.Kind {
		case rlerr.KindConfig, rlerr.KindArchitectureMismatch:
			return 2
		case rlerr.KindIO:
			return 3
		}
	}
	return 1
}

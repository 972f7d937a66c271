package selfplay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/evanburke/chessrl/internal/boardgame"
	"github.com/evanburke/chessrl/internal/config"
)

// RunWorker is the --worker subcommand body: it reads its assignment
// from the environment variables the Orchestrator set (snapshot path,
// seed, game count, output directory, per-game learner colors, and the
// full run config), plays every assigned game, and writes one
// transition batch file per game. It returns the process exit code the
// parent should propagate: 0 if every game completed, nonzero if any
// game failed (the orchestrator still salvages whichever game-N.bin
// files did get written).
func RunWorker() int {
	snapshotPath := os.Getenv(EnvSnapshot)
	outDir := os.Getenv(EnvOut)
	if snapshotPath == "" || outDir == "" {
		fmt.Fprintln(os.Stderr, "selfplay worker: missing required environment variables")
		return 1
	}

	var cfg config.Config
	if err := json.Unmarshal([]byte(os.Getenv(EnvConfig)), &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "selfplay worker: invalid %s: %v\n", EnvConfig, err)
		return 1
	}

	seed, err := strconv.ParseInt(os.Getenv(EnvSeed), 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "selfplay worker: invalid %s: %v\n", EnvSeed, err)
		return 1
	}

	games, err := strconv.Atoi(os.Getenv(EnvGames))
	if err != nil || games <= 0 {
		fmt.Fprintf(os.Stderr, "selfplay worker: invalid %s\n", EnvGames)
		return 1
	}

	colors := os.Getenv(EnvLearnerColor)
	if len(colors) != games {
		fmt.Fprintf(os.Stderr, "selfplay worker: %s length %d does not match %s=%d\n", EnvLearnerColor, len(colors), EnvGames, games)
		return 1
	}

	failures := 0
	for i := 0; i < games; i++ {
		learnerColor := boardgame.White
		if colors[i] == 'b' {
			learnerColor = boardgame.Black
		}

		gc := GameConfig{
			SnapshotPath:    snapshotPath,
			LearnerSeed:     seed ^ int64(i)<<1 ^ 1,
			OpponentSeed:    seed ^ int64(i)<<1,
			LearnerColor:    learnerColor,
			LearnerEpsilon:  cfg.ExplorationRate,
			OpponentEpsilon: 0,
		}

		outcome, err := PlayGame(cfg, gc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "selfplay worker: game %d: %v\n", i, err)
			failures++
			continue
		}

		path := filepath.Join(outDir, "game-"+strconv.Itoa(i)+".bin")
		if err := WriteTransitionBatch(path, outcome.Transitions); err != nil {
			fmt.Fprintf(os.Stderr, "selfplay worker: game %d: write batch: %v\n", i, err)
			failures++
		}
	}

	if failures > 0 {
		return 1
	}
	return 0
}

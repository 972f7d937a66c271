package main

import (
	"fmt"
	"os"

	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/pipeline"
	"github.com/evanburke/chessrl/internal/rlerr"
	"github.com/evanburke/chessrl/internal/runctx"
)

// TrainCmd drives the outer self-play/train/evaluate/checkpoint cycle
// loop until maxCycles, convergence, or an external stop request, per
// the `chessrl train [--profile NAME] [--seed N] [flags...]` surface.
type TrainCmd struct {
	Profile             string  `help:"Named profile to load." default:"long-train"`
	ProfileFile         string  `help:"HCL profile bundle file; falls back to the built-in profile of the same name if missing." default:"profiles/long-train.hcl"`
	Seed                *int64  `help:"Run seed; random and logged if unset."`
	BatchSize           int     `help:"DQN minibatch size."`
	GamesPerCycle       int     `help:"Self-play games per outer cycle."`
	MaxConcurrentGames  int     `help:"Self-play worker parallelism."`
	MaxStepsPerGame     int     `help:"Per-game ply truncation threshold."`
	MaxCycles           int     `help:"Stop after this many cycles (0 leaves the profile's value unchanged)."`
	MaxExperienceBuffer int     `help:"Primary replay ring capacity."`
	ExplorationRate     float64 `help:"Learner epsilon during self-play."`
	Gamma               float64 `help:"Discount factor."`
	ReplayType          string  `help:"Replay sampling discipline." enum:",UNIFORM,PRIORITIZED"`
	CheckpointDirectory string  `help:"Root checkpoint/metrics output directory."`
	CheckpointInterval  int     `help:"Cycles between regular checkpoints."`
	EvaluationGames     int     `help:"Head-to-head games per promotion check."`
	Resume              string  `help:"Resume from a checkpoint directory (e.g. checkpoints/last) before the first cycle."`
	Debug               bool    `help:"Enable debug logging."`
}

func (c *TrainCmd) Run() error {
	cfg, err := c.resolveConfig()
	if err != nil {
		return rlerr.New("train", rlerr.KindConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return rlerr.New("train", rlerr.KindConfig, err)
	}

	logger := setupLogger(c.Debug)
	seed := runctx.ResolveSeed(cfg)
	logger.Info().Int64("seed", seed).Str("profile", c.Profile).Msg("resolved run seed")

	rc := runctx.New(seed, cfg, cfg.CheckpointDirectory, logger)

	workerBinary, err := os.Executable()
	if err != nil {
		return rlerr.New("train", rlerr.KindIO, fmt.Errorf("resolve worker binary: %w", err))
	}

	p, err := pipeline.New(rc, workerBinary, os.Stdout)
	if err != nil {
		return err
	}

	if c.Resume != "" {
		if err := p.Resume(c.Resume); err != nil {
			return rlerr.New("train", rlerr.KindIO, err)
		}
		logger.Info().Str("dir", c.Resume).Int("cycle", p.Cycle()).Msg("resumed from checkpoint")
	}

	ctx := setupSignalHandler(logger, p.RequestStop, nil)

	if err := p.Run(ctx); err != nil {
		return rlerr.New("train", rlerr.KindIO, err)
	}

	logger.Info().Str("state", p.State().String()).Int("cycle", p.Cycle()).Msg("training run finished")
	return nil
}

// resolveConfig layers this command's flags on top of the named
// profile, per the "profiles are loaded first, then CLI flags
// override" contract. Zero-valued flags never clobber a profile's own
// setting, matching config.Config.Override's semantics.
func (c *TrainCmd) resolveConfig() (config.Config, error) {
	cfg, err := config.LoadProfile(c.ProfileFile, c.Profile)
	if err != nil {
		return config.Config{}, err
	}

	return cfg.Override(config.Config{
		BatchSize:           c.BatchSize,
		GamesPerCycle:       c.GamesPerCycle,
		MaxConcurrentGames:  c.MaxConcurrentGames,
		MaxStepsPerGame:     c.MaxStepsPerGame,
		MaxCycles:           c.MaxCycles,
		MaxExperienceBuffer: c.MaxExperienceBuffer,
		ExplorationRate:     c.ExplorationRate,
		Gamma:               c.Gamma,
		ReplayType:          config.ReplayKind(c.ReplayType),
		CheckpointDirectory: c.CheckpointDirectory,
		CheckpointInterval:  c.CheckpointInterval,
		EvaluationGames:     c.EvaluationGames,
		Seed:                c.Seed,
	}), nil
}

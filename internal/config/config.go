// Package config defines the flat Config struct carrying every
// tunable for the training run, named profile bundles loaded from
// HCL, and the profile-then-flags override layering used by
// cmd/chessrl.
package config

import (
	"fmt"
)

// ReplayKind selects the replay buffer's sampling discipline.
type ReplayKind string

const (
	ReplayUniform     ReplayKind = "UNIFORM"
	ReplayPrioritized ReplayKind = "PRIORITIZED"
)

// SamplingStrategy selects the experience manager's cross-buffer
// sampling mix.
type SamplingStrategy string

const (
	SamplingUniform SamplingStrategy = "UNIFORM"
	SamplingRecent  SamplingStrategy = "RECENT"
	SamplingMixed   SamplingStrategy = "MIXED"
)

// Config holds every tunable for a training run. Zero-value fields are
// never relied upon; Default() always returns a fully populated
// Config, and profiles/flags only ever override fields on top of it.
type Config struct {
	// Network architecture (C3/C4)
	HiddenLayers []int `hcl:"hidden_layers,optional"`

	// Learning (C3)
	LearningRate         float64 `hcl:"learning_rate,optional"`
	BatchSize            int     `hcl:"batch_size,optional"`
	TargetUpdateFrequency int    `hcl:"target_update_frequency,optional"`
	DoubleDQN            bool    `hcl:"double_dqn,optional"`
	Gamma                float64 `hcl:"gamma,optional"`
	GradClipNorm         float64 `hcl:"grad_clip_norm,optional"`
	HuberDelta           float64 `hcl:"huber_delta,optional"`

	// Exploration (C4)
	ExplorationRate float64 `hcl:"exploration_rate,optional"`

	// Replay (C2)
	MaxExperienceBuffer int        `hcl:"max_experience_buffer,optional"`
	ReplayType          ReplayKind `hcl:"replay_type,optional"`
	PrioritizedAlpha    float64    `hcl:"prioritized_alpha,optional"`
	PrioritizedBeta     float64    `hcl:"prioritized_beta,optional"`
	PrioritizedEpsilon  float64    `hcl:"prioritized_epsilon,optional"`

	// Experience management (C6)
	SamplingStrategy SamplingStrategy `hcl:"sampling_strategy,optional"`
	MixedAlpha       float64          `hcl:"mixed_alpha,optional"`
	HighQualitySize  int              `hcl:"high_quality_size,optional"`
	RecentSize       int              `hcl:"recent_size,optional"`

	// Self-play (C5)
	GamesPerCycle      int     `hcl:"games_per_cycle,optional"`
	MaxConcurrentGames int     `hcl:"max_concurrent_games,optional"`
	MaxStepsPerGame    int     `hcl:"max_steps_per_game,optional"`
	PerGameTimeoutSecs float64 `hcl:"per_game_timeout_secs,optional"`

	// Rewards (C1)
	WinReward        float64 `hcl:"win_reward,optional"`
	LossReward       float64 `hcl:"loss_reward,optional"`
	DrawReward       float64 `hcl:"draw_reward,optional"`
	StepLimitPenalty float64 `hcl:"step_limit_penalty,optional"`

	// Pipeline (C8)
	MaxCycles         int     `hcl:"max_cycles,optional"`
	MaxBatchesPerCycle int    `hcl:"max_batches_per_cycle,optional"`
	TrainRatio        float64 `hcl:"train_ratio,optional"`
	StallWindow       int     `hcl:"stall_window,optional"`
	ConvergenceDelta  float64 `hcl:"convergence_delta,optional"`
	EntropyFloor      float64 `hcl:"entropy_floor,optional"`

	// Checkpointing (C7)
	CheckpointInterval  int    `hcl:"checkpoint_interval,optional"`
	CheckpointDirectory string `hcl:"checkpoint_directory,optional"`
	KeepLastK           int    `hcl:"keep_last_k,optional"`
	KeepEveryNth        int    `hcl:"keep_every_nth,optional"`
	EvaluationGames     int    `hcl:"evaluation_games,optional"`

	// Determinism
	Seed *int64 `hcl:"seed,optional"`
}

// Default returns the configuration populated with its baseline
// defaults.
func Default() Config {
	return Config{
		HiddenLayers:          []int{512, 256, 128},
		LearningRate:          5e-4,
		BatchSize:             64,
		TargetUpdateFrequency: 200,
		DoubleDQN:             true,
		Gamma:                 0.99,
		GradClipNorm:          10.0,
		HuberDelta:            1.0,

		ExplorationRate: 0.05,

		MaxExperienceBuffer: 50000,
		ReplayType:          ReplayUniform,
		PrioritizedAlpha:    0.6,
		PrioritizedBeta:     0.4,
		PrioritizedEpsilon:  1e-3,

		SamplingStrategy: SamplingMixed,
		MixedAlpha:       0.75,
		HighQualitySize:  5000,
		RecentSize:       5000,

		GamesPerCycle:      30,
		MaxConcurrentGames: 4,
		MaxStepsPerGame:    120,
		PerGameTimeoutSecs: 60,

		WinReward:        1.0,
		LossReward:       -1.0,
		DrawReward:       0.0,
		StepLimitPenalty: -0.5,

		MaxCycles:          100,
		MaxBatchesPerCycle: 200,
		TrainRatio:         1.0,
		StallWindow:        10,
		ConvergenceDelta:   0.01,
		EntropyFloor:       0.05,

		CheckpointInterval:  5,
		CheckpointDirectory: "checkpoints",
		KeepLastK:           3,
		KeepEveryNth:        10,
		EvaluationGames:     20,

		Seed: nil,
	}
}

// Validate returns a *rlerr-style config error (via the returned plain
// error, wrapped by the caller) if any field is outside its documented
// domain. Called before any network/buffer allocation.
func (c Config) Validate() error {
	switch {
	case c.LearningRate <= 0:
		return fmt.Errorf("learning_rate must be > 0, got %v", c.LearningRate)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch_size must be > 0, got %v", c.BatchSize)
	case c.Gamma < 0 || c.Gamma > 1:
		return fmt.Errorf("gamma must be in [0,1], got %v", c.Gamma)
	case c.ExplorationRate < 0 || c.ExplorationRate > 1:
		return fmt.Errorf("exploration_rate must be in [0,1], got %v", c.ExplorationRate)
	case c.TargetUpdateFrequency <= 0:
		return fmt.Errorf("target_update_frequency must be > 0, got %v", c.TargetUpdateFrequency)
	case c.MaxExperienceBuffer <= 0:
		return fmt.Errorf("max_experience_buffer must be > 0, got %v", c.MaxExperienceBuffer)
	case c.ReplayType != ReplayUniform && c.ReplayType != ReplayPrioritized:
		return fmt.Errorf("replay_type must be UNIFORM or PRIORITIZED, got %v", c.ReplayType)
	case c.SamplingStrategy != SamplingUniform && c.SamplingStrategy != SamplingRecent && c.SamplingStrategy != SamplingMixed:
		return fmt.Errorf("sampling_strategy must be UNIFORM, RECENT or MIXED, got %v", c.SamplingStrategy)
	case c.GamesPerCycle <= 0:
		return fmt.Errorf("games_per_cycle must be > 0, got %v", c.GamesPerCycle)
	case c.MaxConcurrentGames <= 0:
		return fmt.Errorf("max_concurrent_games must be > 0, got %v", c.MaxConcurrentGames)
	case c.MaxStepsPerGame <= 0:
		return fmt.Errorf("max_steps_per_game must be > 0, got %v", c.MaxStepsPerGame)
	case c.KeepLastK < 0:
		return fmt.Errorf("keep_last_k must be >= 0, got %v", c.KeepLastK)
	case c.KeepEveryNth < 0:
		return fmt.Errorf("keep_every_nth must be >= 0, got %v", c.KeepEveryNth)
	case c.EvaluationGames <= 0:
		return fmt.Errorf("evaluation_games must be > 0, got %v", c.EvaluationGames)
	}
	return nil
}

// Override applies every non-zero-value field of o onto c, used to
// layer CLI flags on top of a loaded profile. Slice/pointer fields
// override when non-nil.
func (c Config) Override(o Config) Config {
	out := c
	if o.HiddenLayers != nil {
		out.HiddenLayers = o.HiddenLayers
	}
	if o.LearningRate != 0 {
		out.LearningRate = o.LearningRate
	}
	if o.BatchSize != 0 {
		out.BatchSize = o.BatchSize
	}
	if o.TargetUpdateFrequency != 0 {
		out.TargetUpdateFrequency = o.TargetUpdateFrequency
	}
	if o.GamesPerCycle != 0 {
		out.GamesPerCycle = o.GamesPerCycle
	}
	if o.MaxConcurrentGames != 0 {
		out.MaxConcurrentGames = o.MaxConcurrentGames
	}
	if o.MaxStepsPerGame != 0 {
		out.MaxStepsPerGame = o.MaxStepsPerGame
	}
	if o.MaxCycles != 0 {
		out.MaxCycles = o.MaxCycles
	}
	if o.MaxExperienceBuffer != 0 {
		out.MaxExperienceBuffer = o.MaxExperienceBuffer
	}
	if o.ExplorationRate != 0 {
		out.ExplorationRate = o.ExplorationRate
	}
	if o.Gamma != 0 {
		out.Gamma = o.Gamma
	}
	if o.ReplayType != "" {
		out.ReplayType = o.ReplayType
	}
	if o.SamplingStrategy != "" {
		out.SamplingStrategy = o.SamplingStrategy
	}
	if o.CheckpointDirectory != "" {
		out.CheckpointDirectory = o.CheckpointDirectory
	}
	if o.CheckpointInterval != 0 {
		out.CheckpointInterval = o.CheckpointInterval
	}
	if o.EvaluationGames != 0 {
		out.EvaluationGames = o.EvaluationGames
	}
	if o.Seed != nil {
		out.Seed = o.Seed
	}
	return out
}

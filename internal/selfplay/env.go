package selfplay

// Environment variable names the parent sets and the worker
// subprocess reads, mirroring the sdk/config env-var handoff shape
// (EnvServer/EnvSeed/EnvBotID) of a process-isolated worker model.
const (
	EnvSnapshot     = "CHESSRL_SNAPSHOT"
	EnvSeed         = "CHESSRL_SEED"
	EnvOut          = "CHESSRL_OUT"
	EnvGames        = "CHESSRL_GAMES"
	EnvConfig       = "CHESSRL_CONFIG" // JSON-encoded config.Config, the worker's full view of the run
	EnvLearnerColor = "CHESSRL_LEARNER_COLOR" // one 'w'/'b' byte per assigned game, in order, no separator
	EnvWorkerID     = "CHESSRL_WORKER_ID"
)

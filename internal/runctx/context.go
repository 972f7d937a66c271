// Package runctx defines the single RunContext struct threaded
// explicitly through every component instead of module-level mutable
// singletons: seed, config, paths and logger all live here and
// nowhere else.
package runctx

import (
	"math/rand"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/evanburke/chessrl/internal/config"
)

// Context carries everything a component needs to behave
// deterministically and consistently: the resolved run seed, the
// effective Config, the checkpoint/log directory layout, and a
// component-scoped logger.
type Context struct {
	Seed   int64
	Config config.Config
	Dir    Paths
	Log    zerolog.Logger
}

// Paths resolves every on-disk location the training run touches,
// rooted at a single checkpoint directory.
type Paths struct {
	Root string
}

func NewPaths(root string) Paths { return Paths{Root: root} }

func (p Paths) Cycle(k int) string      { return filepath.Join(p.Root, cycleDirName(k)) }
func (p Paths) Best() string            { return filepath.Join(p.Root, "best") }
func (p Paths) Last() string            { return filepath.Join(p.Root, "last") }
func (p Paths) Pointer() string         { return filepath.Join(p.Root, "pointer.json") }
func (p Paths) Metrics() string         { return filepath.Join(p.Root, "metrics.ndjson") }
func (p Paths) Snapshot() string        { return filepath.Join(p.Root, "snapshot") }
func (p Paths) WorkerOut(worker int) string {
	return filepath.Join(p.Root, "workers", workerDirName(worker))
}

func cycleDirName(k int) string   { return "cycle-" + itoa(k) }
func workerDirName(w int) string  { return "worker-" + itoa(w) }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// New builds a Context for a fully-resolved seed. The caller is
// responsible for rolling a random seed when config.Seed is nil and
// logging the resolved value so runs stay reproducible from logs
// alone.
func New(seed int64, cfg config.Config, root string, log zerolog.Logger) *Context {
	return &Context{
		Seed:   seed,
		Config: cfg,
		Dir:    NewPaths(root),
		Log:    log.With().Int64("seed", seed).Logger(),
	}
}

// ResolveSeed returns cfg.Seed if set, otherwise a fresh random seed.
// Callers must log the resolved value so an unseeded run can still be
// traced back from its logs.
func ResolveSeed(cfg config.Config) int64 {
	if cfg.Seed != nil {
		return *cfg.Seed
	}
	return rand.Int63()
}

// Derive produces a child seed for a sub-component (buffer sampling,
// per-worker self-play, epsilon-greedy tie-breaking) by XORing the run
// seed with a component-specific salt, so every RNG in the system
// traces back to a single run seed.
func (c *Context) Derive(salt int64) int64 {
	return c.Seed ^ salt
}

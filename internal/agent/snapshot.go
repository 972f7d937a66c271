package agent

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/evanburke/chessrl/internal/qnet"
)

// persisted is the on-disk shape of a snapshot: the network's
// architecture and weight values (via qnet.Network's own
// GobEncode/GobDecode) plus the epsilon it was frozen with.
type persisted struct {
	Net     *qnet.Network
	Epsilon float64
}

// Save gob-encodes the agent's network and epsilon to path. Used by
// the orchestrator to publish a snapshot that self-play worker
// subprocesses load independently.
func (a *Agent) Save(path string) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(persisted{Net: a.net, Epsilon: a.epsilon}); err != nil {
		return fmt.Errorf("agent: encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("agent: write snapshot %s: %w", path, err)
	}
	return nil
}

// Load reads a snapshot written by Save and rebuilds a fresh Agent on
// a new graph and tape machine, seeded with seed for its epsilon-branch
// RNG.
func Load(path string, seed int64) (*Agent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agent: read snapshot %s: %w", path, err)
	}

	var p persisted
	p.Net = &qnet.Network{}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&p); err != nil {
		return nil, fmt.Errorf("agent: decode snapshot %s: %w", path, err)
	}

	if p.Net.BatchSize() != 1 {
		return nil, fmt.Errorf("agent: snapshot %s was not saved with batch size 1", path)
	}

	return New(p.Net, p.Epsilon, seed)
}

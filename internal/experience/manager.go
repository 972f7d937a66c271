// Package experience implements the quality-scoring and routing layer
// sitting in front of internal/replay: every ingested transition is
// scored, pushed into the primary ring, optionally mirrored into a
// high-quality tail, and always mirrored into a recent tail, and
// sampling mixes across those tails per the configured strategy.
package experience

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/replay"
	"github.com/evanburke/chessrl/internal/rlenv"
)

// qualityWeights weights decisiveness/rarity/proximity in that order
// when combining them into one bounded quality score.
var qualityWeights = []float64{0.4, 0.3, 0.3}

// highQualityThreshold is the quality score above which a transition
// is also mirrored into the high-quality tail. The scoring formula and
// this cutoff are both design-tunable; the only hard contract is that
// quality stays finite, bounded in [0,1], and monotonic in how useful
// a transition is for learning.
const highQualityThreshold = 0.6

// historyBuckets/plyBucketWidth bound the move-number histogram used
// for rarity scoring: ply is bucketed coarsely rather than tracked
// exactly, since the contract only needs a bounded, monotonic rarity
// signal, not an exact frequency count.
const (
	historyBuckets = 12
	plyBucketWidth = 20
)

// offsetRecent tags a sampled index as having come from the recent
// tail rather than the primary ring, so UpdatePriorities can route a
// td-error back to the buffer it was drawn from. It must exceed any
// realistic buffer capacity.
const offsetRecent = 1 << 30

// Manager owns the primary/high-quality/recent buffer trio and the
// quality-scoring logic that routes transitions between them.
type Manager struct {
	primary     *replay.Buffer
	highQuality *replay.Buffer // nil if HighQualitySize <= 0
	recent      *replay.Buffer // nil if RecentSize <= 0

	cfg config.Config

	plyHistogram  [historyBuckets]int
	totalIngested int
}

// Seed salts, XORed with the run seed so every buffer's sampling RNG
// is independently derived but fully reproducible from one run seed.
const (
	saltPrimary     = 0x70726d72 // "prmr"
	saltHighQuality = 0x68716c74 // "hqlt"
	saltRecent      = 0x72636e74 // "rcnt"
)

// New builds a Manager from cfg, deriving each sub-buffer's sampling
// seed from seed via the same XOR-salt convention used throughout the
// system.
func New(cfg config.Config, seed int64) *Manager {
	m := &Manager{cfg: cfg}

	m.primary = replay.New(cfg.MaxExperienceBuffer, seed^saltPrimary, cfg.ReplayType,
		cfg.PrioritizedAlpha, cfg.PrioritizedBeta, cfg.PrioritizedEpsilon)

	if cfg.HighQualitySize > 0 {
		m.highQuality = replay.New(cfg.HighQualitySize, seed^saltHighQuality, config.ReplayUniform, 0, 0, 0)
	}
	if cfg.RecentSize > 0 {
		m.recent = replay.New(cfg.RecentSize, seed^saltRecent, config.ReplayUniform, 0, 0, 0)
	}
	return m
}

func (m *Manager) PrimaryLen() int { return m.primary.Len() }
func (m *Manager) HighQualityLen() int {
	if m.highQuality == nil {
		return 0
	}
	return m.highQuality.Len()
}
func (m *Manager) RecentLen() int {
	if m.recent == nil {
		return 0
	}
	return m.recent.Len()
}
func (m *Manager) TotalIngested() int { return m.totalIngested }

// Ingest scores and routes one game's transitions, in order. Scoring
// combines three bounded components: decisiveness of the game's
// terminal outcome (shared across every transition in the game, since
// the outcome is a property of the whole game), move-number rarity
// (penalizing plies from an overrepresented bucket), and terminal
// proximity (a transition's own position within the game, the last
// transition always scoring proximity 1.0).
func (m *Manager) Ingest(transitions []rlenv.Transition) {
	if len(transitions) == 0 {
		return
	}

	decisive := m.gameDecisiveness(transitions[len(transitions)-1])
	n := len(transitions)

	for i := range transitions {
		t := transitions[i]
		rarity := m.rarity(t.Ply)
		proximity := float64(i+1) / float64(n)
		components := []float64{float64(decisive), float64(rarity), proximity}
		t.Quality = clamp01(floats.Dot(qualityWeights, components))

		m.recordPly(t.Ply)
		m.primary.Push(t)
		if m.recent != nil {
			m.recent.Push(t)
		}
		if m.highQuality != nil && t.Quality >= highQualityThreshold {
			m.highQuality.Push(t)
		}
	}
}

// gameDecisiveness maps the terminal transition's reward to the
// nearest configured outcome (win, loss, draw, step-limit) and scores
// decisiveness accordingly: win/loss > draw > step-limit, per the
// quality-score contract. A non-terminal last transition (should not
// happen in a well-formed game, but is not this package's invariant to
// enforce) scores a neutral middle value.
func (m *Manager) gameDecisiveness(last rlenv.Transition) float32 {
	if !last.Done {
		return 0.3
	}
	r := float64(last.Reward)

	type candidate struct {
		dist  float64
		score float32
	}
	dist := func(x float64) float64 { return math.Abs(r - x) }
	candidates := []candidate{
		{dist(m.cfg.WinReward), 1.0},
		{dist(m.cfg.LossReward), 1.0},
		{dist(m.cfg.DrawReward), 0.5},
		{dist(m.cfg.StepLimitPenalty), 0.2},
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.dist < best.dist {
			best = c
		}
	}
	return best.score
}

// rarity scores a ply against the running histogram of ingested plies:
// a bucket exactly at the uniform share (1/historyBuckets of all
// ingested transitions) scores 0, an overrepresented bucket scores
// toward 0, an underrepresented one scores toward 1.
func (m *Manager) rarity(ply int) float32 {
	if m.totalIngested == 0 {
		return 1
	}
	b := plyBucket(ply)
	frac := float64(m.plyHistogram[b]) / float64(m.totalIngested)
	return clamp01(1 - frac*historyBuckets)
}

func (m *Manager) recordPly(ply int) {
	m.plyHistogram[plyBucket(ply)]++
	m.totalIngested++
}

func plyBucket(ply int) int {
	b := ply / plyBucketWidth
	if b >= historyBuckets {
		b = historyBuckets - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

func clamp01(x float64) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return float32(x)
}

// Sample draws a batch per the configured strategy: UNIFORM samples
// the primary ring only, RECENT samples the recent tail only, and
// MIXED blends MixedAlpha from primary with the remainder from recent.
// Indices from the recent tail are offset by offsetRecent so
// UpdatePriorities can route td-errors back to the correct buffer.
func (m *Manager) Sample(batchSize int) replay.Batch {
	switch m.cfg.SamplingStrategy {
	case config.SamplingRecent:
		return m.tagRecent(m.sampleRecent(batchSize))
	case config.SamplingMixed:
		return m.sampleMixed(batchSize)
	default:
		return m.primary.Sample(batchSize)
	}
}

func (m *Manager) sampleRecent(batchSize int) replay.Batch {
	if m.recent == nil {
		return replay.Batch{}
	}
	return m.recent.Sample(batchSize)
}

func (m *Manager) sampleMixed(batchSize int) replay.Batch {
	if m.recent == nil {
		return m.primary.Sample(batchSize)
	}

	nPrimary := int(math.Round(m.cfg.MixedAlpha * float64(batchSize)))
	if nPrimary > batchSize {
		nPrimary = batchSize
	}
	if nPrimary < 0 {
		nPrimary = 0
	}
	nRecent := batchSize - nPrimary

	var primaryBatch, recentBatch replay.Batch
	if nPrimary > 0 {
		primaryBatch = m.primary.Sample(nPrimary)
	}
	if nRecent > 0 {
		recentBatch = m.recent.Sample(nRecent)
	}

	if primaryBatch.Empty() && nPrimary > 0 {
		return replay.Batch{} // primary underflowed its requested share: whole batch is invalid
	}
	if recentBatch.Empty() && nRecent > 0 {
		return replay.Batch{} // recent underflowed its requested share
	}

	return mergeBatches(primaryBatch, m.tagRecent(recentBatch))
}

func (m *Manager) tagRecent(b replay.Batch) replay.Batch {
	if b.Empty() {
		return b
	}
	out := b
	out.Indices = make([]int, len(b.Indices))
	for i, idx := range b.Indices {
		out.Indices[i] = idx + offsetRecent
	}
	return out
}

func mergeBatches(a, b replay.Batch) replay.Batch {
	if a.Empty() {
		return b
	}
	if b.Empty() {
		return a
	}
	out := replay.Batch{
		Transitions: append(append([]rlenv.Transition{}, a.Transitions...), b.Transitions...),
		Indices:     append(append([]int{}, a.Indices...), b.Indices...),
	}
	if a.Weights != nil || b.Weights != nil {
		out.Weights = make([]float64, 0, len(out.Transitions))
		out.Weights = appendWeightsOrOnes(out.Weights, a)
		out.Weights = appendWeightsOrOnes(out.Weights, b)
	}
	return out
}

func appendWeightsOrOnes(dst []float64, b replay.Batch) []float64 {
	if b.Weights != nil {
		return append(dst, b.Weights...)
	}
	for range b.Transitions {
		dst = append(dst, 1.0)
	}
	return dst
}

// UpdatePriorities routes td-errors back to the buffer each index was
// drawn from, undoing the offsetRecent tag Sample applied.
func (m *Manager) UpdatePriorities(indices []int, tdErrors []float64) {
	var primaryIdx, recentIdx []int
	var primaryTD, recentTD []float64

	for i, idx := range indices {
		if idx >= offsetRecent {
			recentIdx = append(recentIdx, idx-offsetRecent)
			recentTD = append(recentTD, tdErrors[i])
		} else {
			primaryIdx = append(primaryIdx, idx)
			primaryTD = append(primaryTD, tdErrors[i])
		}
	}

	if len(primaryIdx) > 0 {
		m.primary.UpdatePriorities(primaryIdx, primaryTD)
	}
	if len(recentIdx) > 0 && m.recent != nil {
		m.recent.UpdatePriorities(recentIdx, recentTD)
	}
}

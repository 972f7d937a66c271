// Package learner implements the DQN update rule: masked Bellman
// targets computed host-side from a sampled batch, a Pseudo-Huber loss
// fed through a Gorgonia graph exactly the way the online network's
// loss is computed, and a hard-sync target network.
package learner

import (
	"fmt"
	"math"
	"math/rand"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/qnet"
	"github.com/evanburke/chessrl/internal/replay"
	"github.com/evanburke/chessrl/internal/rlenv"
	"github.com/evanburke/chessrl/internal/rlerr"
)

// PolicyUpdateResult is what TrainBatch returns on every call,
// including no-ops (empty batch) and skipped updates (non-finite
// loss), so callers always have a uniform metrics record to log.
type PolicyUpdateResult struct {
	Loss              float64
	GradNorm          float64
	MeanEntropy       float64
	TDAbsMean         float64
	UpdatedPriorities []float64 // parallel to the sampled batch's Indices
	Skipped           bool      // true if the batch was empty or the update was skipped for non-finite values
}

// Learner owns the online (trainNet), target (targetNet) and, for
// Double DQN, a same-architecture select network kept in lockstep with
// trainNet every call. All three share no graph nodes with each other.
type Learner struct {
	trainNet  *qnet.Network
	targetNet *qnet.Network
	selectNet *qnet.Network

	trainVM  G.VM
	targetVM G.VM
	selectVM G.VM
	solver   G.Solver

	selectedActions *G.Node
	targets         *G.Node
	lossNode        *G.Node

	batchSize  int
	numActions int
	features   int

	gamma                 float64
	doubleDQN             bool
	huberDelta            float64
	targetUpdateFrequency int

	trainSteps                   int
	consecutiveNumericalFailures int

	nextActionProvider func(state []float32) []byte
}

// New builds a Learner sized for cfg.BatchSize, with a hidden-layer
// stack per cfg.HiddenLayers and ReLU activations on every hidden
// layer, matching the network that Agent drives during self-play.
func New(cfg config.Config, seed int64) (*Learner, error) {
	batch := cfg.BatchSize
	features := rlenv.StateLen
	outputs := rlenv.ActionSpace

	activations := make([]*qnet.Activation, len(cfg.HiddenLayers))
	for i := range activations {
		activations[i] = qnet.ReLU()
	}
	rng := rand.New(rand.NewSource(seed)) // Glorot-uniform weight init drawn from seed
	init := G.InitWFn(func(dt tensor.Dtype, s ...int) interface{} {
		fanIn, fanOut := s[0], 1
		if len(s) > 1 {
			fanOut = s[1]
		}
		w := make([]float64, tensor.Shape(s).TotalSize())
		limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
		for i := range w {
			w[i] = (2*rng.Float64() - 1) * limit
		}
		return w
	})

	g := G.NewGraph()
	trainNet, err := qnet.New(g, features, batch, outputs, cfg.HiddenLayers, activations, init)
	if err != nil {
		return nil, fmt.Errorf("learner: build train net: %w", err)
	}

	targetNet, err := trainNet.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("learner: build target net: %w", err)
	}
	if err := targetNet.Set(trainNet); err != nil {
		return nil, fmt.Errorf("learner: init target net: %w", err)
	}

	selectNet, err := trainNet.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("learner: build select net: %w", err)
	}

	selectedActions := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, outputs),
		G.WithName("selectedActions"), G.WithInit(G.Zeroes()))
	targets := G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("targets"), G.WithInit(G.Zeroes()))

	selectedActionValue := G.Must(G.HadamardProd(trainNet.Prediction(), selectedActions))
	selectedActionValue = G.Must(G.Sum(selectedActionValue, 1))

	diff := G.Must(G.Sub(selectedActionValue, targets))

	delta := cfg.HuberDelta
	deltaVec := constVec(g, batch, delta, "huberDelta")
	deltaSqVec := constVec(g, batch, delta*delta, "huberDeltaSq")
	oneVec := constVec(g, batch, 1.0, "ones")

	scaled := G.Must(G.HadamardDiv(diff, deltaVec))
	sq := G.Must(G.Square(scaled))
	onePlusSq := G.Must(G.Add(sq, oneVec))
	sqrtTerm := G.Must(G.Sqrt(onePlusSq))
	shifted := G.Must(G.Sub(sqrtTerm, oneVec))
	perItem := G.Must(G.HadamardProd(shifted, deltaSqVec))
	cost := G.Must(G.Mean(perItem))

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("learner: compute gradient graph: %w", err)
	}

	trainVM := G.NewTapeMachine(g, G.BindDualValues(trainNet.Learnables()...))
	targetVM := G.NewTapeMachine(targetNet.Graph())
	selectVM := G.NewTapeMachine(selectNet.Graph())

	solverOpts := []G.SolverOpt{G.WithLearnRate(cfg.LearningRate)}
	if cfg.GradClipNorm > 0 {
		solverOpts = append(solverOpts, G.WithClip(cfg.GradClipNorm))
	}
	solver := G.NewAdamSolver(solverOpts...)

	return &Learner{
		trainNet:              trainNet,
		targetNet:             targetNet,
		selectNet:             selectNet,
		trainVM:               trainVM,
		targetVM:              targetVM,
		selectVM:              selectVM,
		solver:                solver,
		selectedActions:       selectedActions,
		targets:               targets,
		lossNode:              cost,
		batchSize:             batch,
		numActions:            outputs,
		features:              features,
		gamma:                 cfg.Gamma,
		doubleDQN:             cfg.DoubleDQN,
		huberDelta:            delta,
		targetUpdateFrequency: cfg.TargetUpdateFrequency,
	}, nil
}

func constVec(g *G.ExprGraph, n int, v float64, name string) *G.Node {
	data := make([]float64, n)
	for i := range data {
		data[i] = v
	}
	node := G.NewVector(g, tensor.Float64, G.WithShape(n), G.WithName(name),
		G.WithValue(tensor.New(tensor.WithBacking(data), tensor.WithShape(n))))
	return node
}

// Network returns the online network, for Agent construction and
// checkpointing.
func (l *Learner) Network() *qnet.Network { return l.trainNet }

// TargetNetwork returns the target network, for checkpointing.
func (l *Learner) TargetNetwork() *qnet.Network { return l.targetNet }

// ConsecutiveNumericalFailures returns the number of train_batch calls
// in a row that were skipped for a non-finite loss or gradient. The
// pipeline aborts the cycle once this reaches 3.
func (l *Learner) ConsecutiveNumericalFailures() int { return l.consecutiveNumericalFailures }

// SetNextActionProvider registers the legacy fallback used when a
// sampled transition carries no stored next_mask: fn maps a raw next
// state to a legal-action mask. The preferred path is a per-transition
// mask stored at push time; this exists only so older persisted
// experience without masks can still be trained on.
func (l *Learner) SetNextActionProvider(fn func(state []float32) []byte) {
	l.nextActionProvider = fn
}

// SyncTarget performs the hard update θ̂ ← θ. Called automatically by
// TrainBatch every targetUpdateFrequency calls, and exposed so the
// pipeline can force a sync at run resume.
func (l *Learner) SyncTarget() error {
	return l.targetNet.Set(l.trainNet)
}

// TrainSteps returns the number of completed TrainBatch updates, the
// counter driving the hard target-sync cadence. Checkpoint metadata
// persists this so a resumed run's sync cadence picks up where it
// left off instead of resetting to 0.
func (l *Learner) TrainSteps() int { return l.trainSteps }

// SetTrainSteps restores the gradient-step counter on resume. Gorgonia's
// Solver interface does not expose Adam's internal moment vectors for
// serialization, so a resumed run's Adam state always restarts from
// zero moments; restoring trainSteps at least keeps the target-sync
// cadence and any step-dependent logging consistent across resume.
func (l *Learner) SetTrainSteps(n int) { l.trainSteps = n }

func resolveMask(l *Learner, t rlenv.Transition) []byte {
	if len(t.NextMask) > 0 {
		return t.NextMask
	}
	if l.nextActionProvider != nil {
		return l.nextActionProvider(t.NextState)
	}
	return nil
}

func maskSum(mask []byte) int {
	s := 0
	for _, v := range mask {
		s += int(v)
	}
	return s
}

// maskedArgmax returns the index, within values, of the highest value
// among indices where mask[idx]==1, breaking ties by lowest index.
func maskedArgmax(values []float64, mask []byte) (int, float64) {
	best := -1
	bestV := math.Inf(-1)
	for i, m := range mask {
		if m == 0 {
			continue
		}
		if values[i] > bestV {
			bestV = values[i]
			best = i
		}
	}
	return best, bestV
}

// TrainBatch computes masked Bellman targets for batch, runs one
// gradient step of Pseudo-Huber loss, and hard-syncs the target
// network every targetUpdateFrequency calls. An empty batch (buffer
// below batch_size) is a no-op returning zero metrics. A batch with
// any non-terminal transition carrying an all-zero next_mask is
// rejected wholesale with *rlerr.InvalidBatchError and leaves θ
// unchanged.
func (l *Learner) TrainBatch(batch replay.Batch) (PolicyUpdateResult, error) {
	if batch.Empty() {
		return PolicyUpdateResult{Skipped: true}, nil
	}
	n := len(batch.Transitions)
	if n != l.batchSize {
		return PolicyUpdateResult{}, fmt.Errorf("learner: batch size %d does not match network batch size %d", n, l.batchSize)
	}

	masks := make([][]byte, n)
	for i, t := range batch.Transitions {
		mask := resolveMask(l, t)
		if !t.Done && maskSum(mask) == 0 {
			return PolicyUpdateResult{}, &rlerr.InvalidBatchError{Index: i}
		}
		masks[i] = mask
	}

	// Keep the online action-selection network in lockstep with the
	// network being trained, so Double-DQN's argmax always reflects
	// the latest weights.
	if l.doubleDQN {
		if err := l.selectNet.Set(l.trainNet); err != nil {
			return PolicyUpdateResult{}, fmt.Errorf("learner: sync select net: %w", err)
		}
	}

	states := make([]float64, n*l.features)
	nextStates := make([]float64, n*l.features)
	selectedActions := make([]float64, n*l.numActions)
	for i, t := range batch.Transitions {
		for j, v := range t.State {
			states[i*l.features+j] = float64(v)
		}
		for j, v := range t.NextState {
			nextStates[i*l.features+j] = float64(v)
		}
		selectedActions[i*l.numActions+t.Action] = 1.0
	}

	if err := l.targetNet.SetInput(nextStates); err != nil {
		return PolicyUpdateResult{}, fmt.Errorf("learner: set target net input: %w", err)
	}
	if err := l.targetVM.RunAll(); err != nil {
		return PolicyUpdateResult{}, fmt.Errorf("learner: target net forward pass: %w", err)
	}
	targetNext, ok := l.targetNet.Value().Data().([]float64)
	if !ok {
		l.targetVM.Reset()
		return PolicyUpdateResult{}, fmt.Errorf("learner: unexpected target output type %T", l.targetNet.Value().Data())
	}
	targetNext = append([]float64(nil), targetNext...)
	l.targetVM.Reset()

	var selectNext []float64
	if l.doubleDQN {
		if err := l.selectNet.SetInput(nextStates); err != nil {
			return PolicyUpdateResult{}, fmt.Errorf("learner: set select net input: %w", err)
		}
		if err := l.selectVM.RunAll(); err != nil {
			return PolicyUpdateResult{}, fmt.Errorf("learner: select net forward pass: %w", err)
		}
		raw, ok := l.selectNet.Value().Data().([]float64)
		if !ok {
			l.selectVM.Reset()
			return PolicyUpdateResult{}, fmt.Errorf("learner: unexpected select output type %T", l.selectNet.Value().Data())
		}
		selectNext = append([]float64(nil), raw...)
		l.selectVM.Reset()
	}

	targetY := make([]float64, n)
	for i, t := range batch.Transitions {
		if t.Done {
			targetY[i] = float64(t.Reward)
			continue
		}
		row := targetNext[i*l.numActions : (i+1)*l.numActions]
		if l.doubleDQN {
			selRow := selectNext[i*l.numActions : (i+1)*l.numActions]
			aStar, _ := maskedArgmax(selRow, masks[i])
			targetY[i] = float64(t.Reward) + l.gamma*row[aStar]
		} else {
			_, best := maskedArgmax(row, masks[i])
			targetY[i] = float64(t.Reward) + l.gamma*best
		}
	}

	if err := l.trainNet.SetInput(states); err != nil {
		return PolicyUpdateResult{}, fmt.Errorf("learner: set train net input: %w", err)
	}
	if err := G.Let(l.selectedActions, tensor.New(tensor.WithBacking(selectedActions), tensor.WithShape(n, l.numActions))); err != nil {
		return PolicyUpdateResult{}, fmt.Errorf("learner: set selected actions: %w", err)
	}
	if err := G.Let(l.targets, tensor.New(tensor.WithBacking(targetY), tensor.WithShape(n))); err != nil {
		return PolicyUpdateResult{}, fmt.Errorf("learner: set targets: %w", err)
	}

	if err := l.trainVM.RunAll(); err != nil {
		return PolicyUpdateResult{}, fmt.Errorf("learner: train forward/backward pass: %w", err)
	}

	lossVal, ok := l.lossNode.Value().Data().(float64)
	if !ok {
		l.trainVM.Reset()
		return PolicyUpdateResult{}, fmt.Errorf("learner: unexpected loss type %T", l.lossNode.Value().Data())
	}

	gradNorm, finite := l.gradNorm()
	if !finite || math.IsNaN(lossVal) || math.IsInf(lossVal, 0) {
		l.trainVM.Reset()
		l.consecutiveNumericalFailures++
		return PolicyUpdateResult{Skipped: true}, rlerr.New("learner.TrainBatch", rlerr.KindNumerical,
			fmt.Errorf("non-finite loss or gradient (%d consecutive)", l.consecutiveNumericalFailures))
	}
	l.consecutiveNumericalFailures = 0

	predictions, ok := l.trainNet.Value().Data().([]float64)
	if !ok {
		l.trainVM.Reset()
		return PolicyUpdateResult{}, fmt.Errorf("learner: unexpected prediction type %T", l.trainNet.Value().Data())
	}

	tdErrors := make([]float64, n)
	absTDSum := 0.0
	entropySum := 0.0
	for i, t := range batch.Transitions {
		row := predictions[i*l.numActions : (i+1)*l.numActions]
		q := row[t.Action]
		td := q - targetY[i]
		tdErrors[i] = math.Abs(td)
		absTDSum += tdErrors[i]
		entropySum += rowEntropy(row)
	}

	if err := l.solver.Step(l.trainNet.Model()); err != nil {
		l.trainVM.Reset()
		return PolicyUpdateResult{}, fmt.Errorf("learner: solver step: %w", err)
	}
	l.trainVM.Reset()
	l.trainSteps++

	if l.trainSteps%l.targetUpdateFrequency == 0 {
		if err := l.SyncTarget(); err != nil {
			return PolicyUpdateResult{}, fmt.Errorf("learner: sync target: %w", err)
		}
	}

	return PolicyUpdateResult{
		Loss:              lossVal,
		GradNorm:          gradNorm,
		MeanEntropy:       entropySum / float64(n),
		TDAbsMean:         absTDSum / float64(n),
		UpdatedPriorities: tdErrors,
	}, nil
}

// gradNorm reads the global L2 norm of the gradient across every
// learnable, and reports whether every component was finite.
func (l *Learner) gradNorm() (float64, bool) {
	sumSq := 0.0
	for _, node := range l.trainNet.Learnables() {
		g, err := node.Grad()
		if err != nil {
			return 0, false
		}
		data, ok := g.Data().([]float64)
		if !ok {
			return 0, false
		}
		for _, v := range data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, false
			}
			sumSq += v * v
		}
	}
	return math.Sqrt(sumSq), true
}

// rowEntropy computes the Shannon entropy (nats) of the softmax over a
// full row of Q-values. It is not restricted to the legal set at s,
// since the replay transition only stores next_mask, not the mask at
// s; it is a diagnostic signal for the pipeline's convergence check,
// not a quantity the loss depends on.
func rowEntropy(q []float64) float64 {
	max := q[0]
	for _, v := range q[1:] {
		if v > max {
			max = v
		}
	}
	sum := 0.0
	exps := make([]float64, len(q))
	for i, v := range q {
		e := math.Exp(v - max)
		exps[i] = e
		sum += e
	}
	if sum == 0 {
		return 0
	}
	entropy := 0.0
	for _, e := range exps {
		p := e / sum
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	return entropy
}

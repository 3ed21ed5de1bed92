package hmmlib

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar"
)

// Stage is the step a Trainer is working on.
type Stage int

// Trainer stages, in the order they are visited within an iteration.
const (
	Idle Stage = iota
	Building
	Decoding
	Scoring
	Aggregating
	Reestimating
	Converged
	NextIteration
)

var stageNames = [...]string{
	Idle:          "idle",
	Building:      "building",
	Decoding:      "decoding",
	Scoring:       "scoring",
	Aggregating:   "aggregating",
	Reestimating:  "reestimating",
	Converged:     "converged",
	NextIteration: "next-iteration",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// decreaseTol is how far the log-likelihood may drop between
// Baum-Welch iterations before it is reported.
const decreaseTol = 1e-6

// ViterbiResult describes one Viterbi training iteration.
type ViterbiResult struct {
	Iteration int

	// Counts along the decoded path
	Stats *ViterbiStats

	// Base 2 log weight of the decoded path
	PathWeight float64

	// Number of positions on the decoded path
	PathLen int

	// The re-estimated model
	Model *Model
}

// EMResult describes one Baum-Welch iteration.
type EMResult struct {
	Iteration int

	// Base 2 log-likelihood of the sequence under the model the
	// iteration started from
	LogLikelihood float64

	// Change in LogLikelihood from the previous iteration, +Inf for
	// the first one
	Delta float64

	// The re-estimated model
	Model *Model
}

// Trainer runs Viterbi or Baum-Welch training of a model on one
// sequence.  A Trainer is not safe for concurrent use.
type Trainer struct {
	seq     Sequence
	model   *Model
	cfg     Config
	trellis *Trellis

	stage   Stage
	onStage func(Stage, int)

	// Progress messages
	msglogger *log.Logger

	// Model parameters after training
	parlogger *log.Logger

	metrics  *Metrics
	progress bool
}

// NewTrainer returns a trainer for seq starting from the model m.
func NewTrainer(seq Sequence, m *Model, cfg Config) (*Trainer, error) {

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, configErrorf("nil model")
	}
	if seq == nil || seq.Len() == 0 {
		return nil, configErrorf("empty sequence")
	}

	return &Trainer{
		seq:       seq,
		model:     m,
		cfg:       cfg,
		trellis:   NewTrellis(cfg.Workers),
		msglogger: log.New(os.Stderr, "", log.Ltime),
		parlogger: log.New(io.Discard, "", 0),
	}, nil
}

// SetLogger sets the logger for progress messages.
func (t *Trainer) SetLogger(logger *log.Logger) {
	t.msglogger = logger
}

// SetLogFiles directs progress messages to <prefix>_msg.log and the
// model parameters to <prefix>_par.log.  The message logger is
// returned so the calling program can also use it.
func (t *Trainer) SetLogFiles(prefix string) (*log.Logger, error) {

	fid, err := os.Create(prefix + "_msg.log")
	if err != nil {
		return nil, errors.Wrap(err, "could not create message log")
	}
	t.msglogger = log.New(fid, "", log.Ltime)

	fid, err = os.Create(prefix + "_par.log")
	if err != nil {
		return nil, errors.Wrap(err, "could not create parameter log")
	}
	t.parlogger = log.New(fid, "", 0)

	return t.msglogger, nil
}

// SetMetrics sets the collectors updated after every iteration.
func (t *Trainer) SetMetrics(m *Metrics) {
	t.metrics = m
}

// SetProgress turns the progress bar on or off.
func (t *Trainer) SetProgress(on bool) {
	t.progress = on
}

// OnStage registers a function called on every stage change with the
// new stage and the current iteration.
func (t *Trainer) OnStage(f func(Stage, int)) {
	t.onStage = f
}

// Stage returns the current stage.
func (t *Trainer) Stage() Stage {
	return t.stage
}

// Model returns the latest model.
func (t *Trainer) Model() *Model {
	return t.model
}

// Trellis returns the trellis used for training.
func (t *Trainer) Trellis() *Trellis {
	return t.trellis
}

// Path returns the highest weight path under the current model.  It
// does not change the stage.
func (t *Trainer) Path() (*Path, error) {

	var err error
	if !t.trellis.Built() {
		err = t.trellis.Build(t.seq, t.model)
	} else {
		err = t.trellis.SetModel(t.model)
	}
	if err != nil {
		return nil, err
	}
	if err := t.trellis.Viterbi(); err != nil {
		return nil, err
	}

	return t.trellis.Decode()
}

func (t *Trainer) setStage(s Stage, iter int) {
	t.stage = s
	if t.onStage != nil {
		t.onStage(s, iter)
	}
}

// build lays the trellis over the sequence on first use, and afterwards
// only swaps in the current model.
func (t *Trainer) build(iter int) error {

	t.setStage(Building, iter)

	if !t.trellis.Built() {
		return t.trellis.Build(t.seq, t.model)
	}

	return t.trellis.SetModel(t.model)
}

func (t *Trainer) newBar(n int) *progressbar.ProgressBar {
	if !t.progress {
		return nil
	}
	return progressbar.New(n)
}

func addBar(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Add(1)
	}
}

// ViterbiTraining runs n iterations of Viterbi training.  Each
// iteration decodes the highest weight path under the current model
// and replaces the model by the one re-estimated from the path counts.
func (t *Trainer) ViterbiTraining(ctx context.Context, n int) ([]*ViterbiResult, error) {

	t.msglogger.Printf("Viterbi training, %d iterations\n", n)
	bar := t.newBar(n)

	results := make([]*ViterbiResult, 0, n)
	for iter := 1; iter <= n; iter++ {

		if err := ctx.Err(); err != nil {
			t.setStage(Idle, iter)
			return results, err
		}
		start := time.Now()

		if err := t.build(iter); err != nil {
			return results, err
		}

		t.setStage(Decoding, iter)
		if err := t.trellis.Viterbi(); err != nil {
			return results, err
		}
		path, err := t.trellis.Decode()
		if err != nil {
			return results, err
		}

		t.setStage(Aggregating, iter)
		stats, err := GatherViterbiStats(t.trellis)
		if err != nil {
			return results, err
		}

		t.setStage(Reestimating, iter)
		m, err := stats.Reestimate(t.model, t.cfg.Viterbi)
		if err != nil {
			return results, err
		}

		res := &ViterbiResult{
			Iteration:  iter,
			Stats:      stats,
			PathWeight: path.Weight.Log2(),
			PathLen:    path.Len(),
			Model:      m,
		}
		results = append(results, res)
		t.model = m

		t.metrics.observe(MethodViterbi, start)
		if t.metrics != nil {
			t.metrics.PathWeight.Set(res.PathWeight)
		}
		t.msglogger.Printf("Iteration %d: path weight %f bits\n", iter, res.PathWeight)
		addBar(bar)

		if iter < n {
			t.setStage(NextIteration, iter)
		}
	}

	t.model.WriteSummary(t.parlogger, nil, "Viterbi training")
	t.setStage(Converged, n)

	return results, nil
}

// BaumWelchTraining runs Baum-Welch iterations until the base 2
// log-likelihood changes by less than the configured threshold.  If
// that does not happen within the configured number of iterations,
// the results so far are returned with a *NotConvergedError.
func (t *Trainer) BaumWelchTraining(ctx context.Context) ([]*EMResult, error) {

	t.msglogger.Printf("Baum-Welch training, threshold %g\n", t.cfg.Threshold)
	bar := t.newBar(t.cfg.MaxIter)

	var results []*EMResult
	var llf float64
	delta := math.Inf(1)
	for iter := 1; iter <= t.cfg.MaxIter; iter++ {

		if err := ctx.Err(); err != nil {
			t.setStage(Idle, iter)
			return results, err
		}
		start := time.Now()

		if err := t.build(iter); err != nil {
			return results, err
		}

		t.setStage(Scoring, iter)
		if err := t.trellis.Forward(); err != nil {
			return results, err
		}
		if err := t.trellis.Backward(); err != nil {
			return results, err
		}
		if err := t.trellis.Posteriors(); err != nil {
			return results, err
		}

		t.setStage(Aggregating, iter)
		llfnew, err := t.trellis.LogLikelihood()
		if err != nil {
			return results, err
		}

		t.setStage(Reestimating, iter)
		m, err := ReestimateBaumWelch(t.trellis)
		if err != nil {
			return results, err
		}

		if iter > 1 {
			delta = llfnew - llf
			if delta < -decreaseTol {
				t.msglogger.Printf("Log-likelihood decreased by %f\n", -delta)
			}
		}
		llf = llfnew

		results = append(results, &EMResult{
			Iteration:     iter,
			LogLikelihood: llf,
			Delta:         delta,
			Model:         m,
		})
		t.model = m

		t.metrics.observe(MethodBaumWelch, start)
		if t.metrics != nil {
			t.metrics.LogLikelihood.Set(llf)
		}
		t.msglogger.Printf("Iteration %d: llf=%f\n", iter, llf)
		addBar(bar)

		if iter > 1 && math.Abs(delta) < t.cfg.Threshold {
			t.model.WriteSummary(t.parlogger, nil, "Baum-Welch training")
			t.setStage(Converged, iter)
			return results, nil
		}

		if iter < t.cfg.MaxIter {
			t.setStage(NextIteration, iter)
		}
	}

	t.setStage(Idle, t.cfg.MaxIter)
	t.msglogger.Printf("No convergence after %d iterations\n", t.cfg.MaxIter)

	return results, &NotConvergedError{
		Iterations: t.cfg.MaxIter,
		Delta:      delta,
		Threshold:  t.cfg.Threshold,
	}
}

package hmmlib

import (
	"context"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const islandSeq = "ATATTAATATTTAAATATTAAGCGCCGGCGCGGCCGCATATTTAATATAATTAATTATATATA" +
	"TTAGCCGCGGCGCCGGCGCGCCATATATTAAT"

func newTestTrainer(t *testing.T, seq string, m *Model, cfg Config) *Trainer {
	tn, err := NewTrainer(strSeq(seq), m, cfg)
	require.NoError(t, err)
	tn.SetLogger(log.New(io.Discard, "", 0))
	return tn
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "reestimating", Reestimating.String())
	assert.Equal(t, "next-iteration", NextIteration.String())
	assert.Equal(t, "Stage(42)", Stage(42).String())
}

func TestNewTrainerErrors(t *testing.T) {

	cfg := DefaultConfig()
	_, err := NewTrainer(strSeq(""), ToyModel(), cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewTrainer(strSeq("ACGT"), nil, cfg)
	assert.ErrorIs(t, err, ErrConfiguration)

	cfg.Threshold = 0
	_, err = NewTrainer(strSeq("ACGT"), ToyModel(), cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestViterbiTraining(t *testing.T) {

	cfg := DefaultConfig()
	tn := newTestTrainer(t, islandSeq, InitialModel(), cfg)

	var stages []Stage
	tn.OnStage(func(s Stage, iter int) {
		if iter == 1 {
			stages = append(stages, s)
		}
	})

	results, err := tn.ViterbiTraining(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, Converged, tn.Stage())
	assert.Equal(t, []Stage{Building, Decoding, Aggregating, Reestimating, NextIteration}, stages)

	for i, res := range results {
		assert.Equal(t, i+1, res.Iteration)
		assert.Equal(t, len(islandSeq), res.PathLen)
		assert.False(t, math.IsInf(res.PathWeight, 0))
		require.NoError(t, res.Model.Validate(1e-9))

		// Emission and initiation are held fixed by default
		assert.Equal(t, InitialModel().Emit(), res.Model.Emit())
		assert.Equal(t, InitialModel().Init(), res.Model.Init())
	}
	assert.Same(t, results[2].Model, tn.Model())

	// Decoding under the re-estimated model
	path, err := tn.Path()
	require.NoError(t, err)
	assert.Equal(t, len(islandSeq), path.Len())
	assert.Equal(t, Converged, tn.Stage())
}

func TestViterbiTrainingPolicy(t *testing.T) {

	cfg := DefaultConfig()
	cfg.Viterbi = ViterbiPolicy{Emission: true, Initiation: true}
	tn := newTestTrainer(t, islandSeq, InitialModel(), cfg)

	results, err := tn.ViterbiTraining(context.Background(), 2)
	require.NoError(t, err)
	m := results[1].Model
	require.NoError(t, m.Validate(1e-9))

	st := results[1].Stats.FirstState
	assert.Equal(t, 1.0, m.InitProb(st))
}

func TestBaumWelchTraining(t *testing.T) {

	cfg := DefaultConfig()
	tn := newTestTrainer(t, islandSeq, ToyModel(), cfg)

	results, err := tn.BaumWelchTraining(context.Background())
	if err != nil {
		require.ErrorIs(t, err, ErrNotConverged)
	} else {
		assert.Equal(t, Converged, tn.Stage())
		last := results[len(results)-1]
		assert.Less(t, math.Abs(last.Delta), cfg.Threshold)
	}
	require.NotEmpty(t, results)

	assert.True(t, math.IsInf(results[0].Delta, 1))
	for i := 1; i < len(results); i++ {
		assert.Equal(t, i+1, results[i].Iteration)
		assert.GreaterOrEqual(t, results[i].LogLikelihood, results[i-1].LogLikelihood-1e-6)
		assert.InDelta(t, results[i].LogLikelihood-results[i-1].LogLikelihood, results[i].Delta, 1e-12)
	}
	for _, res := range results {
		require.NoError(t, res.Model.Validate(1e-9))
	}
}

func TestBaumWelchNotConverged(t *testing.T) {

	cfg := DefaultConfig()
	cfg.MaxIter = 1
	tn := newTestTrainer(t, islandSeq, ToyModel(), cfg)

	results, err := tn.BaumWelchTraining(context.Background())
	require.ErrorIs(t, err, ErrNotConverged)
	assert.Len(t, results, 1)

	var nce *NotConvergedError
	require.ErrorAs(t, err, &nce)
	assert.Equal(t, 1, nce.Iterations)
	assert.Equal(t, cfg.Threshold, nce.Threshold)
}

func TestTrainingCancel(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tn := newTestTrainer(t, islandSeq, ToyModel(), DefaultConfig())
	results, err := tn.BaumWelchTraining(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Equal(t, Idle, tn.Stage())

	// Cancelled between iterations
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	tn = newTestTrainer(t, islandSeq, ToyModel(), DefaultConfig())
	tn.OnStage(func(s Stage, iter int) {
		if s == NextIteration && iter == 2 {
			cancel()
		}
	})
	vres, err := tn.ViterbiTraining(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, vres, 2)
	assert.Same(t, vres[1].Model, tn.Model())
}

func TestTrainingMetrics(t *testing.T) {

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	tn := newTestTrainer(t, islandSeq, InitialModel(), DefaultConfig())
	tn.SetMetrics(metrics)
	results, err := tn.ViterbiTraining(context.Background(), 4)
	require.NoError(t, err)

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.Iterations.WithLabelValues(MethodViterbi)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Iterations.WithLabelValues(MethodBaumWelch)))
	assert.Equal(t, results[3].PathWeight, testutil.ToFloat64(metrics.PathWeight))

	cfg := DefaultConfig()
	cfg.MaxIter = 2
	tn = newTestTrainer(t, islandSeq, ToyModel(), cfg)
	tn.SetMetrics(metrics)
	emres, _ := tn.BaumWelchTraining(context.Background())
	require.NotEmpty(t, emres)
	assert.Equal(t, float64(len(emres)), testutil.ToFloat64(metrics.Iterations.WithLabelValues(MethodBaumWelch)))
	assert.Equal(t, emres[len(emres)-1].LogLikelihood, testutil.ToFloat64(metrics.LogLikelihood))

	n, err := testutil.GatherAndCount(reg, "seqhmm_iteration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSetLogFiles(t *testing.T) {

	prefix := filepath.Join(t.TempDir(), "run")
	tn, err := NewTrainer(strSeq(islandSeq), InitialModel(), DefaultConfig())
	require.NoError(t, err)
	logger, err := tn.SetLogFiles(prefix)
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = tn.ViterbiTraining(context.Background(), 2)
	require.NoError(t, err)

	msg, err := os.ReadFile(prefix + "_msg.log")
	require.NoError(t, err)
	assert.Contains(t, string(msg), "Iteration 2")

	par, err := os.ReadFile(prefix + "_par.log")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(par), "Transition matrix"))
}

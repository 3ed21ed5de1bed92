package hmmlib

import (
	"math"
	"strings"
	"testing"

	"github.com/kshedden/seqhmm/elog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// strSeq is a residue sequence given as a string.
type strSeq string

func (s strSeq) Len() int {
	return len(s)
}

func (s strSeq) Symbol(i int) string {
	return string(s[i])
}

func buildTrellis(t *testing.T, seq string, m *Model, workers int) *Trellis {
	tr := NewTrellis(workers)
	require.NoError(t, tr.Build(strSeq(seq), m))
	return tr
}

// pathProb returns the probability of seq together with the state path.
func pathProb(m *Model, seq string, states []int) float64 {

	p := 1.0
	for i := range seq {
		k, err := m.Alphabet().Index(string(seq[i]))
		if err != nil {
			panic(err)
		}
		if i == 0 {
			p *= m.InitProb(states[0])
		} else {
			p *= m.TransProb(states[i-1], states[i])
		}
		p *= m.EmitProb(states[i], k)
	}

	return p
}

// allPaths calls f for every state path of length n.
func allPaths(nstate, n int, f func(states []int)) {

	states := make([]int, n)
	var rec func(i int)
	rec = func(i int) {
		if i == n {
			f(states)
			return
		}
		for st := 0; st < nstate; st++ {
			states[i] = st
			rec(i + 1)
		}
	}
	rec(0)
}

func TestTrellisTopology(t *testing.T) {

	m := ToyModel()
	tr := buildTrellis(t, "GGCA", m, 1)

	require.True(t, tr.Built())
	assert.Equal(t, 4, tr.Len())
	assert.Equal(t, 1+4*2, tr.NumNodes())
	assert.Equal(t, 2+3*2*2, tr.NumTransitions())

	start := tr.Node(0)
	assert.Equal(t, StartState, start.State)
	assert.Equal(t, 0, start.Position)
	assert.True(t, start.Weight.Equal(elog.One))
	assert.True(t, start.Forward.Equal(elog.One))
	lo, hi := tr.In(0)
	assert.Equal(t, lo, hi)

	for p := 1; p <= tr.Len(); p++ {
		pos := tr.Position(p)
		assert.Equal(t, p, pos.ID)
		assert.Equal(t, 2, pos.NumNodes())
		for st, nd := range tr.Nodes(p) {
			assert.Equal(t, p, nd.Position)
			assert.Equal(t, st, nd.State)
		}
	}

	// Every node has one incoming transition per node of the previous
	// position and one outgoing per node of the next
	for ni := 1; ni < tr.NumNodes(); ni++ {
		nd := tr.Node(ni)
		lo, hi := tr.In(ni)
		want := 2
		if nd.Position == 1 {
			want = 1
		}
		assert.Equal(t, want, hi-lo)
		for ti := lo; ti < hi; ti++ {
			x := tr.Transition(ti)
			assert.Equal(t, ni, x.To)
			assert.Equal(t, nd.Position-1, tr.Node(x.From).Position)
		}

		out := tr.Out(ni)
		if nd.Position == tr.Len() {
			assert.Empty(t, out)
			continue
		}
		assert.Len(t, out, 2)
		for _, ti := range out {
			x := tr.Transition(ti)
			assert.Equal(t, ni, x.From)
			assert.Equal(t, nd.Position+1, tr.Node(x.To).Position)
		}
	}
	assert.Len(t, tr.Out(0), 2)
}

func TestTrellisLogProb(t *testing.T) {

	m := ToyModel()
	tr := buildTrellis(t, "GA", m, 1)

	// Leaving the start node uses the initiation probabilities
	for _, ti := range tr.Out(0) {
		to := tr.Node(tr.Transition(ti).To)
		assert.True(t, tr.LogProb(ti).Equal(m.LogInitProb(to.State)))
	}

	for ni := tr.Position(1).first; ni < tr.Position(1).first+2; ni++ {
		for _, ti := range tr.Out(ni) {
			x := tr.Transition(ti)
			want := m.LogTransProb(tr.Node(x.From).State, tr.Node(x.To).State)
			assert.True(t, tr.LogProb(ti).Equal(want))
		}
	}

	assert.True(t, tr.LogEmission(0).Equal(elog.One))
	nd := tr.Nodes(2)[1]
	assert.Equal(t, 0, nd.Symbol)
	assert.InDelta(t, 0.3, tr.LogEmission(tr.Position(2).first+1).Exp(), 1e-12)
}

func TestBuildErrors(t *testing.T) {

	tr := NewTrellis(1)
	assert.ErrorIs(t, tr.Build(strSeq(""), ToyModel()), ErrConfiguration)
	assert.ErrorIs(t, tr.Build(strSeq("ACGT"), nil), ErrConfiguration)

	err := tr.Build(strSeq("ACNT"), ToyModel())
	assert.ErrorIs(t, err, ErrSymbol)
	assert.False(t, tr.Built())
	assert.Equal(t, 0, tr.Len())

	assert.ErrorIs(t, tr.Viterbi(), ErrNotBuilt)
	assert.ErrorIs(t, tr.Forward(), ErrNotBuilt)
	_, err = tr.Decode()
	assert.ErrorIs(t, err, ErrNotBuilt)
	assert.ErrorIs(t, tr.SetModel(ToyModel()), ErrNotBuilt)

	// Lower case residues are accepted
	require.NoError(t, tr.Build(strSeq("acgt"), ToyModel()))
}

func TestPassOrder(t *testing.T) {

	tr := buildTrellis(t, "ACGT", ToyModel(), 1)

	_, err := tr.Decode()
	assert.ErrorIs(t, err, ErrOrder)
	assert.ErrorIs(t, tr.Backward(), ErrOrder)
	assert.ErrorIs(t, tr.Posteriors(), ErrOrder)
	_, err = tr.LogLikelihood()
	assert.ErrorIs(t, err, ErrOrder)
	_, err = ReestimateBaumWelch(tr)
	assert.ErrorIs(t, err, ErrOrder)
	_, err = GatherViterbiStats(tr)
	assert.ErrorIs(t, err, ErrOrder)

	require.NoError(t, tr.Forward())
	require.NoError(t, tr.Backward())
	require.NoError(t, tr.Posteriors())

	// A new model invalidates every pass
	require.NoError(t, tr.SetModel(InitialModel()))
	assert.ErrorIs(t, tr.Backward(), ErrOrder)
}

func TestRecompute(t *testing.T) {

	seq := "GGCACTGAAGGCC"
	tr := buildTrellis(t, seq, ToyModel(), 1)
	require.NoError(t, tr.Viterbi())
	require.NoError(t, tr.Forward())

	// Building again only swaps the model and reruns what was run
	m := InitialModel()
	require.NoError(t, tr.Build(strSeq(seq), m))
	assert.Same(t, m, tr.Model())

	ll, err := tr.LogLikelihood()
	require.NoError(t, err)
	_, err = tr.Decode()
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Posteriors(), ErrOrder)

	fresh := buildTrellis(t, seq, m, 1)
	require.NoError(t, fresh.Forward())
	want, err := fresh.LogLikelihood()
	require.NoError(t, err)
	assert.Equal(t, want, ll)

	// The model must fit the graph
	three, err := UniformModel(3, DNA, 0.9)
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Recompute(three), ErrConfiguration)
	assert.ErrorIs(t, tr.Recompute(nil), ErrConfiguration)
}

func TestParallelMatchesSequential(t *testing.T) {

	m, err := UniformModel(5, DNA, 0.8)
	require.NoError(t, err)
	seq := strings.Repeat("ACGGTCATTGCA", 20)

	seqTr := buildTrellis(t, seq, m, 1)
	parTr := buildTrellis(t, seq, m, 4)
	for _, tr := range []*Trellis{seqTr, parTr} {
		require.NoError(t, tr.Viterbi())
		require.NoError(t, tr.Forward())
		require.NoError(t, tr.Backward())
		require.NoError(t, tr.Posteriors())
	}

	for ni := 0; ni < seqTr.NumNodes(); ni++ {
		a, b := seqTr.Node(ni), parTr.Node(ni)
		assert.True(t, a.Weight.Equal(b.Weight))
		assert.Equal(t, a.Back, b.Back)
		assert.True(t, a.Forward.Equal(b.Forward))
		assert.True(t, a.Backward.Equal(b.Backward))
		assert.True(t, a.Posterior.Equal(b.Posterior))
	}
	for ti := 0; ti < seqTr.NumTransitions(); ti++ {
		assert.True(t, seqTr.Transition(ti).Posterior.Equal(parTr.Transition(ti).Posterior))
	}
}

func TestUnreachableNodes(t *testing.T) {

	// State 1 can never be entered
	m, err := NewModelFrom(DNA,
		[]float64{1, 0},
		[][]float64{{1, 0}, {0.5, 0.5}},
		[][]float64{{0.25, 0.25, 0.25, 0.25}, {0.25, 0.25, 0.25, 0.25}})
	require.NoError(t, err)

	tr := buildTrellis(t, "ACGT", m, 1)
	require.NoError(t, tr.Viterbi())

	for p := 1; p <= tr.Len(); p++ {
		nd := tr.Nodes(p)[1]
		assert.False(t, nd.Weight.Defined())
		lo, _ := tr.In(tr.Position(p).first + 1)
		assert.Equal(t, tr.Transition(lo).From, nd.Back)
	}

	path, err := tr.Decode()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, path.States)
	assert.InDelta(t, -8, path.Weight.Log2(), 1e-9)
	assert.False(t, math.IsInf(path.Weight.Log2(), 0))
}

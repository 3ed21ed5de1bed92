// Package hmmsim simulates hidden state paths and residue sequences
// from a model, for testing how well training recovers known
// parameters.
package hmmsim

import (
	"math/rand"

	"github.com/kshedden/seqhmm/hmmlib"
	"gonum.org/v1/gonum/floats"
)

// Simulator draws from a model using its own random source.
type Simulator struct {
	rng *rand.Rand
}

// New returns a simulator seeded with seed.
func New(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// genDiscrete draws an index from the probability vector pr, which
// must sum to 1.
func (s *Simulator) genDiscrete(pr, cum []float64) int {

	floats.CumSum(cum, pr)
	u := s.rng.Float64() * cum[len(cum)-1]
	for j := range cum {
		if u < cum[j] {
			return j
		}
	}

	// Only reachable through rounding; take the last possible index
	for j := len(pr) - 1; j >= 0; j-- {
		if pr[j] > 0 {
			return j
		}
	}
	panic("Not a probability vector")
}

// States generates a random state path of length n.
func (s *Simulator) States(m *hmmlib.Model, n int) []int {

	nstate := m.NState()
	trans := m.Trans()
	cum := make([]float64, nstate)

	states := make([]int, n)
	if n == 0 {
		return states
	}

	// Set the initial state
	states[0] = s.genDiscrete(m.Init(), cum)

	// Set the rest of the states
	for t := 1; t < n; t++ {
		st := states[t-1]
		states[t] = s.genDiscrete(trans[st*nstate:(st+1)*nstate], cum)
	}

	return states
}

// Symbols generates one symbol per state of the path.
func (s *Simulator) Symbols(m *hmmlib.Model, states []int) []string {

	alpha := m.Alphabet()
	nsym := alpha.Len()
	emit := m.Emit()
	cum := make([]float64, nsym)

	syms := make([]string, len(states))
	for t, st := range states {
		k := s.genDiscrete(emit[st*nsym:(st+1)*nsym], cum)
		syms[t] = alpha.Symbol(k)
	}

	return syms
}

// Sequence generates a state path of n symbols and the residues they
// spell.  With k-mer alphabets the residue sequence has n*K letters.
func (s *Simulator) Sequence(m *hmmlib.Model, n int) ([]int, []byte) {

	states := s.States(m, n)
	syms := s.Symbols(m, states)

	residues := make([]byte, 0, n*m.Alphabet().K())
	for _, sym := range syms {
		residues = append(residues, sym...)
	}

	return states, residues
}

// CompareStates returns the fraction of positions at which est
// disagrees with truth, after relabeling the states of est by the
// permutation that agrees best.  Training recovers states only up to
// their labels.
func CompareStates(truth, est []int, nstate int) float64 {

	if len(truth) != len(est) {
		panic("CompareStates: paths differ in length")
	}
	if len(truth) == 0 {
		return 0
	}

	// Confusion counts
	conf := make([]int, nstate*nstate)
	for t := range truth {
		conf[est[t]*nstate+truth[t]]++
	}

	best := 0
	perm := make([]int, nstate)
	for i := range perm {
		perm[i] = i
	}
	permute(perm, 0, func(p []int) {
		var agree int
		for i, j := range p {
			agree += conf[i*nstate+j]
		}
		if agree > best {
			best = agree
		}
	})

	return 1 - float64(best)/float64(len(truth))
}

// permute calls f with every permutation of p[k:].
func permute(p []int, k int, f func([]int)) {

	if k == len(p) {
		f(p)
		return
	}
	for i := k; i < len(p); i++ {
		p[k], p[i] = p[i], p[k]
		permute(p, k+1, f)
		p[k], p[i] = p[i], p[k]
	}
}

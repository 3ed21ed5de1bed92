package hmmlib

import (
	"github.com/kshedden/seqhmm/elog"
	"github.com/pkg/errors"
)

// ReestimateBaumWelch returns a new model whose parameters are the
// expected counts implied by the posteriors of tr, normalized by the
// expected number of visits to the conditioning state.  Posteriors
// must have been computed.
func ReestimateBaumWelch(tr *Trellis) (*Model, error) {

	if !tr.built {
		return nil, ErrNotBuilt
	}
	if tr.done&passPosterior == 0 {
		return nil, errors.Wrap(ErrOrder, "re-estimation needs Posteriors")
	}

	old := tr.model
	nstate := old.NState()
	nsym := old.Alphabet().Len()
	ntime := tr.Len()

	m, err := NewModel(nstate, old.Alphabet())
	if err != nil {
		return nil, err
	}

	// Initiation: posterior of each state at the first position
	for _, nd := range tr.Nodes(1) {
		if err := m.SetInit(nd.State, clampProb(nd.Posterior.Exp())); err != nil {
			return nil, err
		}
	}

	// Emission: expected emissions of each symbol over expected visits
	enum := make([]elog.Value, nstate*nsym)
	eden := make([]elog.Value, nstate)
	for t := 1; t <= ntime; t++ {
		for _, nd := range tr.Nodes(t) {
			i := nd.State*nsym + nd.Symbol
			enum[i] = elog.Sum(enum[i], nd.Posterior)
			eden[nd.State] = elog.Sum(eden[nd.State], nd.Posterior)
		}
	}
	for st := 0; st < nstate; st++ {
		for k := 0; k < nsym; k++ {
			p := elog.Quotient(enum[st*nsym+k], eden[st]).Exp()
			if err := m.SetEmit(st, k, clampProb(p)); err != nil {
				return nil, err
			}
		}
	}

	// Transition: expected transitions over expected visits, not
	// counting the last position which has no outgoing transitions.
	tnum := make([]elog.Value, nstate*nstate)
	tden := make([]elog.Value, nstate)
	for t := 1; t < ntime; t++ {
		pos := tr.positions[t]
		next := tr.positions[t+1]
		for ni := pos.first; ni < pos.first+pos.n; ni++ {
			nd := &tr.nodes[ni]
			tden[nd.State] = elog.Sum(tden[nd.State], nd.Posterior)
		}
		for ti := next.tfirst; ti < next.tfirst+next.n*pos.n; ti++ {
			x := &tr.trans[ti]
			i := tr.nodes[x.From].State*nstate + tr.nodes[x.To].State
			tnum[i] = elog.Sum(tnum[i], x.Posterior)
		}
	}
	for st1 := 0; st1 < nstate; st1++ {
		for st2 := 0; st2 < nstate; st2++ {
			p := elog.Quotient(tnum[st1*nstate+st2], tden[st1]).Exp()
			if err := m.SetTrans(st1, st2, clampProb(p)); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// clampProb removes rounding excess above 1.
func clampProb(p float64) float64 {
	if p > 1 {
		return 1
	}
	return p
}

// Segment is a maximal run of one state in a decoded path, as
// inclusive 1-based sequence positions.
type Segment struct {
	Start int
	End   int
}

// Len returns the number of positions in the segment.
func (s Segment) Len() int {
	return s.End - s.Start + 1
}

// ViterbiPolicy selects which parameters Viterbi training
// re-estimates besides the transition probabilities.  By default the
// initiation and emission probabilities are held at their starting
// values.
type ViterbiPolicy struct {
	Emission   bool `yaml:"emission"`
	Initiation bool `yaml:"initiation"`
}

// ViterbiStats are counts gathered along a decoded Viterbi path.
type ViterbiStats struct {
	NState  int
	NSymbol int

	// Number of positions in each state
	StateCounts []int

	// Number of segments of each state
	SegmentCounts []int

	// Segments of each state in sequence order
	Segments [][]Segment

	// TransCounts[st1*NState+st2] counts steps from st1 to st2
	TransCounts []int

	// EmitCounts[st*NSymbol+k] counts positions in state st showing symbol k
	EmitCounts []int

	// State at the first position
	FirstState int
}

// TransCount returns the number of steps from st1 to st2.
func (vs *ViterbiStats) TransCount(st1, st2 int) int {
	return vs.TransCounts[st1*vs.NState+st2]
}

// GatherViterbiStats walks the highest weight path of tr backward
// from the last position and counts states, segments, transitions
// and emissions.  Viterbi must have been run.
func GatherViterbiStats(tr *Trellis) (*ViterbiStats, error) {

	if !tr.built {
		return nil, ErrNotBuilt
	}
	if tr.done&passViterbi == 0 {
		return nil, errors.Wrap(ErrOrder, "Viterbi statistics need Viterbi")
	}

	nstate := tr.model.NState()
	nsym := tr.model.Alphabet().Len()
	vs := &ViterbiStats{
		NState:        nstate,
		NSymbol:       nsym,
		StateCounts:   make([]int, nstate),
		SegmentCounts: make([]int, nstate),
		Segments:      make([][]Segment, nstate),
		TransCounts:   make([]int, nstate*nstate),
		EmitCounts:    make([]int, nstate*nsym),
	}

	// Walking backward, prev is the state one position later and
	// segEnd the last position of the segment being walked.
	prev := -1
	segEnd := -1
	last := -1
	ni := tr.HighestNode(tr.Len())
	for ni > 0 {
		nd := &tr.nodes[ni]
		st := nd.State

		vs.StateCounts[st]++
		vs.EmitCounts[st*nsym+nd.Symbol]++

		if st != prev {
			if prev >= 0 {
				vs.Segments[prev] = append(vs.Segments[prev], Segment{Start: last, End: segEnd})
			}
			segEnd = nd.Position
			vs.SegmentCounts[st]++
		}

		if prev >= 0 {
			vs.TransCounts[st*nstate+prev]++
		}

		prev = st
		last = nd.Position
		ni = nd.Back
	}
	if ni != 0 || prev < 0 {
		panic("GatherViterbiStats: path does not reach the start node")
	}
	vs.Segments[prev] = append(vs.Segments[prev], Segment{Start: last, End: segEnd})
	vs.FirstState = prev

	// Segments were collected last to first
	for _, sg := range vs.Segments {
		for i, j := 0, len(sg)-1; i < j; i, j = i+1, j-1 {
			sg[i], sg[j] = sg[j], sg[i]
		}
	}

	return vs, nil
}

// Reestimate returns a copy of prev with the transition probabilities
// replaced by the observed transition frequencies.  A state that is
// never left along the path keeps its previous transition row.  The
// emission and initiation probabilities are re-estimated from the
// path only if the policy asks for it.
func (vs *ViterbiStats) Reestimate(prev *Model, policy ViterbiPolicy) (*Model, error) {

	if prev.NState() != vs.NState || prev.Alphabet().Len() != vs.NSymbol {
		return nil, configErrorf("statistics do not match the model dimensions")
	}

	m := prev.Clone()
	nstate := vs.NState

	for st1 := 0; st1 < nstate; st1++ {
		var tot int
		for st2 := 0; st2 < nstate; st2++ {
			tot += vs.TransCount(st1, st2)
		}
		if tot == 0 {
			continue
		}
		for st2 := 0; st2 < nstate; st2++ {
			p := float64(vs.TransCount(st1, st2)) / float64(tot)
			if err := m.SetTrans(st1, st2, p); err != nil {
				return nil, err
			}
		}
	}

	if policy.Emission {
		for st := 0; st < nstate; st++ {
			if vs.StateCounts[st] == 0 {
				continue
			}
			for k := 0; k < vs.NSymbol; k++ {
				p := float64(vs.EmitCounts[st*vs.NSymbol+k]) / float64(vs.StateCounts[st])
				if err := m.SetEmit(st, k, p); err != nil {
					return nil, err
				}
			}
		}
	}

	if policy.Initiation {
		for st := 0; st < nstate; st++ {
			p := 0.0
			if st == vs.FirstState {
				p = 1
			}
			if err := m.SetInit(st, p); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

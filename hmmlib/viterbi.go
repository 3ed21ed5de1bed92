package hmmlib

import (
	"github.com/kshedden/seqhmm/elog"
	"github.com/pkg/errors"
)

// Path is a decoded state sequence.
type Path struct {

	// States[t] is the state at sequence offset t
	States []int

	// The weight (log probability) of the path
	Weight elog.Value
}

// Len returns the length of the path.
func (p *Path) Len() int {
	return len(p.States)
}

// Viterbi computes, position by position, the highest path weight
// reaching each node and the predecessor achieving it.  The weight of
// a path through a transition is the source weight times the
// transition probability times the emission probability of the
// target, on the log scale.  When several transitions achieve the
// maximum, the first one wins.
func (tr *Trellis) Viterbi() error {

	if !tr.built {
		return ErrNotBuilt
	}

	for t := 1; t < len(tr.positions); t++ {
		tr.eachNode(t, tr.highestWeight)
	}

	tr.done |= passViterbi
	return nil
}

func (tr *Trellis) highestWeight(ni int) {

	nd := &tr.nodes[ni]
	lemit := tr.LogEmission(ni)

	best := elog.Zero
	back := -1
	lo, hi := tr.In(ni)
	for ti := lo; ti < hi; ti++ {
		src := tr.trans[ti].From
		score := elog.Product(elog.Product(tr.nodes[src].Weight, tr.LogProb(ti)), lemit)

		// A node that cannot be reached keeps a weight of log(0) but
		// still points back to the first source.
		if back == -1 || best.Less(score) {
			best = score
			back = src
		}
	}

	nd.Weight = best
	nd.Back = back
}

// HighestNode returns the index of the node at position t with the
// highest Viterbi weight.  Ties go to the lowest state.
func (tr *Trellis) HighestNode(t int) int {

	pos := tr.positions[t]
	jj := pos.first
	for ni := pos.first + 1; ni < pos.first+pos.n; ni++ {
		if tr.nodes[jj].Weight.Less(tr.nodes[ni].Weight) {
			jj = ni
		}
	}

	return jj
}

// Decode follows the Viterbi backpointers from the highest weight
// node of the last position to the start node, and returns the states
// in sequence order.
func (tr *Trellis) Decode() (*Path, error) {

	if !tr.built {
		return nil, ErrNotBuilt
	}
	if tr.done&passViterbi == 0 {
		return nil, errors.Wrap(ErrOrder, "Decode needs Viterbi")
	}

	ntime := tr.Len()
	ni := tr.HighestNode(ntime)
	path := &Path{
		States: make([]int, ntime),
		Weight: tr.nodes[ni].Weight,
	}

	// Trace back, filling in from the end
	for t := ntime; t > 0; t-- {
		nd := &tr.nodes[ni]
		if nd.Position != t {
			panic("Decode: broken backpointer chain")
		}
		path.States[t-1] = nd.State
		ni = nd.Back
	}
	if ni != 0 {
		panic("Decode: path does not reach the start node")
	}

	return path, nil
}

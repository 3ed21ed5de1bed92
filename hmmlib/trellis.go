package hmmlib

import (
	"sync"

	"github.com/kshedden/seqhmm/elog"
	"github.com/pkg/errors"
)

// StartState is the state of the synthetic start node.  It is not a
// state of the model.
const StartState = -1

// Sequence is a read-only sequence of emission symbols.  Every symbol
// must belong to the alphabet of the model the trellis is built with.
type Sequence interface {
	Len() int
	Symbol(i int) string
}

// Node is one (position, state) cell of the trellis.
type Node struct {

	// Position in the trellis, 0 for the start node
	Position int

	// Hidden state, StartState for the start node
	State int

	// Alphabet index of the symbol observed at this position, -1 for
	// the start node
	Symbol int

	// Weight of the highest weight path ending here (Viterbi)
	Weight elog.Value

	// Node index of the predecessor on that path, -1 if none
	Back int

	// Log forward, backward and posterior (gamma) probabilities
	Forward   elog.Value
	Backward  elog.Value
	Posterior elog.Value
}

// Transition is an edge between nodes of adjacent positions.
type Transition struct {
	From int
	To   int

	// Log posterior (epsilon) probability of taking this transition
	Posterior elog.Value
}

// Position is a column of the trellis.  Its nodes are contiguous in
// the node arena, as are the transitions entering it.  The incoming
// transitions are grouped by target node, in the order of the nodes
// of the previous position.
type Position struct {
	ID     int
	first  int
	n      int
	tfirst int
}

// NumNodes returns the number of nodes at the position.
func (p Position) NumNodes() int {
	return p.n
}

// pass flags
const (
	passViterbi = 1 << iota
	passForward
	passBackward
	passPosterior
)

// Trellis is the position by state graph of an HMM laid over a
// sequence.  It owns all positions, nodes and transitions; nodes and
// transitions refer to each other by index into these arenas.
type Trellis struct {
	model     *Model
	positions []Position
	nodes     []Node
	trans     []Transition
	built     bool
	done      int

	// Number of goroutines used for the nodes of one position
	workers int
}

// NewTrellis returns an empty trellis.  If workers > 1, the nodes
// within a position are processed by that many goroutines.
func NewTrellis(workers int) *Trellis {
	if workers < 1 {
		workers = 1
	}
	return &Trellis{workers: workers}
}

// Build creates the trellis for seq under the model m.  It creates
// the start position with its single node, then one position per
// symbol with one node per state, and connects every node of a
// position to every node of the next.
//
// Calling Build on a trellis that has already been built leaves the
// graph unchanged and recomputes it for m (see Recompute).
func (tr *Trellis) Build(seq Sequence, m *Model) error {

	if tr.built {
		return tr.Recompute(m)
	}

	if m == nil {
		return configErrorf("nil model")
	}
	if seq == nil || seq.Len() == 0 {
		return configErrorf("empty sequence")
	}

	// Encode the sequence first so that a bad symbol leaves the
	// trellis unbuilt.
	alpha := m.Alphabet()
	ntime := seq.Len()
	symbols := make([]int, ntime)
	for i := range symbols {
		s := seq.Symbol(i)
		if len(s) != alpha.K() {
			return configErrorf("symbol %q at position %d has length %d, alphabet uses %d",
				s, i+1, len(s), alpha.K())
		}
		k, err := alpha.Index(s)
		if err != nil {
			return errors.Wrapf(err, "position %d", i+1)
		}
		symbols[i] = k
	}

	nstate := m.NState()
	tr.model = m
	tr.positions = make([]Position, 0, ntime+1)
	tr.nodes = make([]Node, 0, 1+ntime*nstate)
	tr.trans = make([]Transition, 0, nstate+(ntime-1)*nstate*nstate)

	// Create the start position
	tr.positions = append(tr.positions, Position{ID: 0, first: 0, n: 1})
	tr.nodes = append(tr.nodes, Node{
		Position: 0,
		State:    StartState,
		Symbol:   -1,
		Back:     -1,
	})

	for t := 1; t <= ntime; t++ {

		prev := tr.positions[t-1]
		pos := Position{
			ID:     t,
			first:  len(tr.nodes),
			n:      nstate,
			tfirst: len(tr.trans),
		}

		for st := 0; st < nstate; st++ {
			tr.nodes = append(tr.nodes, Node{
				Position: t,
				State:    st,
				Symbol:   symbols[t-1],
				Back:     -1,
			})
		}

		// One transition from every previous node to every current node
		for j := 0; j < pos.n; j++ {
			for i := 0; i < prev.n; i++ {
				tr.trans = append(tr.trans, Transition{
					From: prev.first + i,
					To:   pos.first + j,
				})
			}
		}

		tr.positions = append(tr.positions, pos)
	}

	tr.built = true
	tr.reset()

	return nil
}

// Recompute replaces the model and recomputes every pass that had
// been run under the previous model, without touching the graph.
func (tr *Trellis) Recompute(m *Model) error {

	done := tr.done
	if err := tr.SetModel(m); err != nil {
		return err
	}

	if done&passViterbi != 0 {
		if err := tr.Viterbi(); err != nil {
			return err
		}
	}
	if done&passForward != 0 {
		if err := tr.Forward(); err != nil {
			return err
		}
	}
	if done&passBackward != 0 {
		if err := tr.Backward(); err != nil {
			return err
		}
	}
	if done&passPosterior != 0 {
		if err := tr.Posteriors(); err != nil {
			return err
		}
	}

	return nil
}

// SetModel replaces the model and clears every computed value.  The
// new model must have the same number of states and the same alphabet
// as the one the trellis was built with.
func (tr *Trellis) SetModel(m *Model) error {

	if !tr.built {
		return ErrNotBuilt
	}
	if m == nil {
		return configErrorf("nil model")
	}
	if m.NState() != tr.model.NState() {
		return configErrorf("model has %d states, trellis was built for %d", m.NState(), tr.model.NState())
	}
	if !m.Alphabet().Equal(tr.model.Alphabet()) {
		return configErrorf("model alphabet differs from the one the trellis was built for")
	}

	tr.model = m
	tr.reset()

	return nil
}

// reset clears all computed values.
func (tr *Trellis) reset() {

	for i := range tr.nodes {
		nd := &tr.nodes[i]
		nd.Weight = elog.Zero
		nd.Back = -1
		nd.Forward = elog.Zero
		nd.Backward = elog.Zero
		nd.Posterior = elog.Zero
	}
	for i := range tr.trans {
		tr.trans[i].Posterior = elog.Zero
	}

	// The start node is certain
	start := &tr.nodes[0]
	start.Weight = elog.One
	start.Forward = elog.One

	tr.done = 0
}

// Built returns true once Build has succeeded.
func (tr *Trellis) Built() bool {
	return tr.built
}

// Model returns the model the trellis is currently computed for.
func (tr *Trellis) Model() *Model {
	return tr.model
}

// Len returns the sequence length T.  Positions are numbered 0
// (start) through T.
func (tr *Trellis) Len() int {
	if !tr.built {
		return 0
	}
	return len(tr.positions) - 1
}

// Position returns position t.
func (tr *Trellis) Position(t int) Position {
	return tr.positions[t]
}

// Nodes returns the nodes of position t.  The slice aliases the
// trellis storage.
func (tr *Trellis) Nodes(t int) []Node {
	p := tr.positions[t]
	return tr.nodes[p.first : p.first+p.n]
}

// NumNodes returns the total number of nodes including the start node.
func (tr *Trellis) NumNodes() int {
	return len(tr.nodes)
}

// NumTransitions returns the total number of transitions.
func (tr *Trellis) NumTransitions() int {
	return len(tr.trans)
}

// Node returns the node with index i.
func (tr *Trellis) Node(i int) *Node {
	return &tr.nodes[i]
}

// Transition returns the transition with index i.
func (tr *Trellis) Transition(i int) *Transition {
	return &tr.trans[i]
}

// In returns the index range [lo, hi) of the transitions entering
// node ni.  The range is empty for the start node.
func (tr *Trellis) In(ni int) (int, int) {

	nd := &tr.nodes[ni]
	if nd.Position == 0 {
		return 0, 0
	}
	pos := tr.positions[nd.Position]
	prev := tr.positions[nd.Position-1]
	lo := pos.tfirst + (ni-pos.first)*prev.n

	return lo, lo + prev.n
}

// Out returns the indices of the transitions leaving node ni.
func (tr *Trellis) Out(ni int) []int {

	nd := &tr.nodes[ni]
	if nd.Position == len(tr.positions)-1 {
		return nil
	}
	pos := tr.positions[nd.Position]
	next := tr.positions[nd.Position+1]
	i := ni - pos.first

	out := make([]int, next.n)
	for j := range out {
		out[j] = next.tfirst + j*pos.n + i
	}

	return out
}

// LogProb returns the log probability of transition ti: the
// initiation probability of the target state if the transition leaves
// the start node, else the transition probability between the states.
func (tr *Trellis) LogProb(ti int) elog.Value {

	x := &tr.trans[ti]
	from := &tr.nodes[x.From]
	to := &tr.nodes[x.To]
	if from.State == StartState {
		return tr.model.LogInitProb(to.State)
	}

	return tr.model.LogTransProb(from.State, to.State)
}

// LogEmission returns the log probability that node ni emits its
// symbol.  It is log(1) for the start node.
func (tr *Trellis) LogEmission(ni int) elog.Value {

	nd := &tr.nodes[ni]
	if nd.State == StartState {
		return elog.One
	}

	return tr.model.LogEmitProb(nd.State, nd.Symbol)
}

// eachNode calls f for the index of every node at position t.  The
// calls run concurrently when the trellis has more than one worker;
// eachNode returns only after all of them have finished.
func (tr *Trellis) eachNode(t int, f func(ni int)) {

	pos := tr.positions[t]
	if tr.workers == 1 || pos.n < 2 {
		for ni := pos.first; ni < pos.first+pos.n; ni++ {
			f(ni)
		}
		return
	}

	nw := tr.workers
	if nw > pos.n {
		nw = pos.n
	}

	var wg sync.WaitGroup
	for w := 0; w < nw; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for ni := pos.first + w; ni < pos.first+pos.n; ni += nw {
				f(ni)
			}
		}(w)
	}
	wg.Wait()
}

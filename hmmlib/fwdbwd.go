package hmmlib

import (
	"github.com/kshedden/seqhmm/elog"
	"github.com/pkg/errors"
)

// Forward calculates the log forward probabilities of every node,
// sweeping the positions in increasing order.  The forward
// probability of a node is the probability of the sequence prefix
// ending at its position, and of being in its state there.
func (tr *Trellis) Forward() error {

	if !tr.built {
		return ErrNotBuilt
	}

	for t := 1; t < len(tr.positions); t++ {
		tr.eachNode(t, tr.forwardNode)
	}

	tr.done |= passForward
	return nil
}

func (tr *Trellis) forwardNode(ni int) {

	// Sum over possible histories.  At position 1 the only history is
	// the start node, whose forward value is log(1), so this reduces
	// to the initiation probability.
	alpha := elog.Zero
	lo, hi := tr.In(ni)
	for ti := lo; ti < hi; ti++ {
		src := &tr.nodes[tr.trans[ti].From]
		alpha = elog.Sum(alpha, elog.Product(src.Forward, tr.LogProb(ti)))
	}

	tr.nodes[ni].Forward = elog.Product(alpha, tr.LogEmission(ni))
}

// Backward calculates the log backward probabilities of every node
// except the start node, sweeping the positions in decreasing order.
// It must follow a complete Forward pass for the current model.
func (tr *Trellis) Backward() error {

	if !tr.built {
		return ErrNotBuilt
	}
	if tr.done&passForward == 0 {
		return errors.Wrap(ErrOrder, "Backward needs Forward")
	}

	last := len(tr.positions) - 1
	nodes := tr.Nodes(last)
	for i := range nodes {
		nodes[i].Backward = elog.One
	}

	for t := last - 1; t >= 1; t-- {
		tr.eachNode(t, tr.backwardNode)
	}

	tr.done |= passBackward
	return nil
}

func (tr *Trellis) backwardNode(ni int) {

	nd := &tr.nodes[ni]
	pos := tr.positions[nd.Position]
	next := tr.positions[nd.Position+1]
	i := ni - pos.first

	beta := elog.Zero
	for j := 0; j < next.n; j++ {
		ti := next.tfirst + j*pos.n + i
		to := tr.trans[ti].To
		beta = elog.Sum(beta,
			elog.Product(tr.LogProb(ti), elog.Product(tr.LogEmission(to), tr.nodes[to].Backward)))
	}

	nd.Backward = beta
}

// Posteriors calculates the log posterior probability of every node
// (gamma) and of every transition that leaves a non-start position
// (epsilon), each normalized to sum to one within a position.  It
// must follow Backward.
func (tr *Trellis) Posteriors() error {

	if !tr.built {
		return ErrNotBuilt
	}
	if tr.done&passBackward == 0 {
		return errors.Wrap(ErrOrder, "Posteriors needs Backward")
	}

	last := len(tr.positions) - 1
	for t := 1; t <= last; t++ {

		// Node probabilities (gamma)
		tr.eachNode(t, func(ni int) {
			nd := &tr.nodes[ni]
			nd.Posterior = elog.Product(nd.Forward, nd.Backward)
		})
		nodes := tr.Nodes(t)
		norm := elog.Zero
		for i := range nodes {
			norm = elog.Sum(norm, nodes[i].Posterior)
		}
		for i := range nodes {
			nodes[i].Posterior = elog.Quotient(nodes[i].Posterior, norm)
		}

		// Transition probabilities (epsilon), for all but the last position
		if t == last {
			continue
		}
		tr.eachNode(t+1, tr.epsilonInto)
		pos := tr.positions[t]
		next := tr.positions[t+1]
		lo, hi := next.tfirst, next.tfirst+next.n*pos.n
		norm = elog.Zero
		for ti := lo; ti < hi; ti++ {
			norm = elog.Sum(norm, tr.trans[ti].Posterior)
		}
		for ti := lo; ti < hi; ti++ {
			tr.trans[ti].Posterior = elog.Quotient(tr.trans[ti].Posterior, norm)
		}
	}

	tr.done |= passPosterior
	return nil
}

// epsilonInto sets the unnormalized posterior of the transitions
// entering node ni.
func (tr *Trellis) epsilonInto(ni int) {

	to := &tr.nodes[ni]
	tail := elog.Product(tr.LogEmission(ni), to.Backward)

	lo, hi := tr.In(ni)
	for ti := lo; ti < hi; ti++ {
		x := &tr.trans[ti]
		x.Posterior = elog.Product(tr.nodes[x.From].Forward, elog.Product(tr.LogProb(ti), tail))
	}
}

// LogLikelihood returns the base 2 log probability of the sequence,
// the sum of the forward probabilities at the last position.
func (tr *Trellis) LogLikelihood() (float64, error) {

	if !tr.built {
		return 0, ErrNotBuilt
	}
	if tr.done&passForward == 0 {
		return 0, errors.Wrap(ErrOrder, "LogLikelihood needs Forward")
	}

	ll := elog.Zero
	nodes := tr.Nodes(len(tr.positions) - 1)
	for i := range nodes {
		ll = elog.Sum(ll, nodes[i].Forward)
	}

	return ll.Log2(), nil
}

// LogLikelihoodBackward returns the base 2 log probability of the
// sequence computed from the backward probabilities at position 1.
// It agrees with LogLikelihood up to rounding.
func (tr *Trellis) LogLikelihoodBackward() (float64, error) {

	if !tr.built {
		return 0, ErrNotBuilt
	}
	if tr.done&passBackward == 0 {
		return 0, errors.Wrap(ErrOrder, "LogLikelihoodBackward needs Backward")
	}

	ll := elog.Zero
	pos := tr.positions[1]
	for ni := pos.first; ni < pos.first+pos.n; ni++ {
		lo, _ := tr.In(ni)
		head := elog.Product(tr.LogProb(lo), tr.LogEmission(ni))
		ll = elog.Sum(ll, elog.Product(head, tr.nodes[ni].Backward))
	}

	return ll.Log2(), nil
}

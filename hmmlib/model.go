package hmmlib

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/kshedden/seqhmm/elog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// probTol is the slack allowed above 1 when setting a probability,
// to absorb rounding in re-estimated values.
const probTol = 1e-9

// Model holds the initiation, transition and emission probabilities
// of an HMM together with their extended logarithms.  The two are
// always kept consistent: each setter recomputes the log right away.
//
// A Model is read by the trellis during a pass and must not be
// modified while a pass is running.  Training produces a new Model
// for each iteration instead of updating one in place.
type Model struct {

	// Number of hidden states
	nstate int

	// The emission symbols
	alpha *Alphabet

	// The initial probability distribution
	init  []float64
	linit []elog.Value

	// The transition probability matrix, row-major nstate x nstate
	trans  []float64
	ltrans []elog.Value

	// The emission probabilities, row-major nstate x alpha.Len()
	emit  []float64
	lemit []elog.Value
}

// NewModel returns a model with all probabilities set to zero.
func NewModel(nstate int, alpha *Alphabet) (*Model, error) {

	if nstate < 1 {
		return nil, configErrorf("model needs at least one state, got %d", nstate)
	}
	if alpha == nil || alpha.Len() == 0 {
		return nil, configErrorf("model needs a non-empty alphabet")
	}

	nsym := alpha.Len()
	return &Model{
		nstate: nstate,
		alpha:  alpha,
		init:   make([]float64, nstate),
		linit:  make([]elog.Value, nstate),
		trans:  make([]float64, nstate*nstate),
		ltrans: make([]elog.Value, nstate*nstate),
		emit:   make([]float64, nstate*nsym),
		lemit:  make([]elog.Value, nstate*nsym),
	}, nil
}

// NewModelFrom builds a model from explicit tables.  init has one
// entry per state, trans is nstate x nstate and emit is nstate x
// alpha.Len(), with columns in alphabet order.
func NewModelFrom(alpha *Alphabet, init []float64, trans, emit [][]float64) (*Model, error) {

	nstate := len(init)
	if len(trans) != nstate {
		return nil, configErrorf("transition matrix has %d rows, want %d", len(trans), nstate)
	}
	if len(emit) != nstate {
		return nil, configErrorf("emission matrix has %d rows, want %d", len(emit), nstate)
	}

	m, err := NewModel(nstate, alpha)
	if err != nil {
		return nil, err
	}

	for i := 0; i < nstate; i++ {
		if err := m.SetInit(i, init[i]); err != nil {
			return nil, err
		}
		if len(trans[i]) != nstate {
			return nil, configErrorf("transition row %d has %d columns, want %d", i, len(trans[i]), nstate)
		}
		for j, p := range trans[i] {
			if err := m.SetTrans(i, j, p); err != nil {
				return nil, err
			}
		}
		if len(emit[i]) != alpha.Len() {
			return nil, configErrorf("emission row %d has %d columns, want %d", i, len(emit[i]), alpha.Len())
		}
		for k, p := range emit[i] {
			if err := m.SetEmit(i, k, p); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// NState returns the number of hidden states.
func (m *Model) NState() int {
	return m.nstate
}

// Alphabet returns the emission alphabet.
func (m *Model) Alphabet() *Alphabet {
	return m.alpha
}

// InitProb returns the probability of starting in state st.
func (m *Model) InitProb(st int) float64 {
	return m.init[st]
}

// TransProb returns the probability of moving from state st1 to st2.
func (m *Model) TransProb(st1, st2 int) float64 {
	return m.trans[st1*m.nstate+st2]
}

// EmitProb returns the probability that state st emits the symbol
// with alphabet index k.
func (m *Model) EmitProb(st, k int) float64 {
	return m.emit[st*m.alpha.Len()+k]
}

// LogInitProb returns the extended log of InitProb(st).
func (m *Model) LogInitProb(st int) elog.Value {
	return m.linit[st]
}

// LogTransProb returns the extended log of TransProb(st1, st2).
func (m *Model) LogTransProb(st1, st2 int) elog.Value {
	return m.ltrans[st1*m.nstate+st2]
}

// LogEmitProb returns the extended log of EmitProb(st, k).
func (m *Model) LogEmitProb(st, k int) elog.Value {
	return m.lemit[st*m.alpha.Len()+k]
}

// checkProb converts p to an extended log, rejecting values outside [0, 1].
func checkProb(p float64) (elog.Value, error) {

	if math.IsNaN(p) || p > 1+probTol {
		return elog.Zero, configErrorf("probability %g outside [0, 1]", p)
	}

	lp, err := elog.Log(p)
	if err != nil {
		return elog.Zero, errors.Wrap(err, "hmmlib")
	}

	return lp, nil
}

func (m *Model) checkState(st int) error {
	if st < 0 || st >= m.nstate {
		return configErrorf("state %d out of range [0, %d)", st, m.nstate)
	}
	return nil
}

// SetInit sets the probability of starting in state st.
func (m *Model) SetInit(st int, p float64) error {

	if err := m.checkState(st); err != nil {
		return err
	}
	lp, err := checkProb(p)
	if err != nil {
		return err
	}

	m.init[st] = p
	m.linit[st] = lp
	return nil
}

// SetTrans sets the probability of moving from state st1 to st2.
func (m *Model) SetTrans(st1, st2 int, p float64) error {

	if err := m.checkState(st1); err != nil {
		return err
	}
	if err := m.checkState(st2); err != nil {
		return err
	}
	lp, err := checkProb(p)
	if err != nil {
		return err
	}

	i := st1*m.nstate + st2
	m.trans[i] = p
	m.ltrans[i] = lp
	return nil
}

// SetEmit sets the probability that state st emits the symbol with
// alphabet index k.
func (m *Model) SetEmit(st, k int, p float64) error {

	if err := m.checkState(st); err != nil {
		return err
	}
	if k < 0 || k >= m.alpha.Len() {
		return configErrorf("symbol index %d out of range [0, %d)", k, m.alpha.Len())
	}
	lp, err := checkProb(p)
	if err != nil {
		return err
	}

	i := st*m.alpha.Len() + k
	m.emit[i] = p
	m.lemit[i] = lp
	return nil
}

// SetEmitSymbol is SetEmit with the symbol given by name.
func (m *Model) SetEmitSymbol(st int, sym string, p float64) error {

	k, err := m.alpha.Index(sym)
	if err != nil {
		return err
	}

	return m.SetEmit(st, k, p)
}

// Clone returns a deep copy of m.  The alphabet is shared since it is
// never modified.
func (m *Model) Clone() *Model {

	c := &Model{
		nstate: m.nstate,
		alpha:  m.alpha,
		init:   append([]float64(nil), m.init...),
		linit:  append([]elog.Value(nil), m.linit...),
		trans:  append([]float64(nil), m.trans...),
		ltrans: append([]elog.Value(nil), m.ltrans...),
		emit:   append([]float64(nil), m.emit...),
		lemit:  append([]elog.Value(nil), m.lemit...),
	}

	return c
}

// Validate checks that the initial distribution and every row of the
// transition and emission matrices sum to 1 within tol.
func (m *Model) Validate(tol float64) error {

	if s := floats.Sum(m.init); math.Abs(s-1) > tol {
		return configErrorf("initial probabilities sum to %g", s)
	}

	for st := 0; st < m.nstate; st++ {
		if s := floats.Sum(m.transRow(st)); math.Abs(s-1) > tol {
			return configErrorf("transition row %d sums to %g", st, s)
		}
		if s := floats.Sum(m.emitRow(st)); math.Abs(s-1) > tol {
			return configErrorf("emission row %d sums to %g", st, s)
		}
	}

	return nil
}

func (m *Model) transRow(st int) []float64 {
	return m.trans[st*m.nstate : (st+1)*m.nstate]
}

func (m *Model) emitRow(st int) []float64 {
	nsym := m.alpha.Len()
	return m.emit[st*nsym : (st+1)*nsym]
}

// Init returns a copy of the initial distribution.
func (m *Model) Init() []float64 {
	return append([]float64(nil), m.init...)
}

// Trans returns a copy of the row-major transition matrix.
func (m *Model) Trans() []float64 {
	return append([]float64(nil), m.trans...)
}

// Emit returns a copy of the row-major emission matrix.
func (m *Model) Emit() []float64 {
	return append([]float64(nil), m.emit...)
}

// WriteSummary writes the model parameters to the given logger.  The
// optional row labels are used if provided.
func (m *Model) WriteSummary(logger *log.Logger, labels []string, title string) {

	logger.Printf("%s\n", title)

	logger.Printf("Initial states distribution:\n")
	writeMatrix(logger, m.init, m.nstate, 1, labels)
	logger.Printf("\n")

	logger.Printf("Transition matrix:\n")
	writeMatrix(logger, m.trans, m.nstate, m.nstate, labels)
	logger.Printf("\n")

	logger.Printf("Emission probabilities (%v):\n", m.alpha.symbols)
	writeMatrix(logger, m.emit, m.nstate, m.alpha.Len(), labels)
	logger.Printf("\n")
}

// writeMatrix writes a matrix in text format to the logger
func writeMatrix(logger *log.Logger, x []float64, nrow, ncol int, labels []string) {

	var buf bytes.Buffer

	for i := 0; i < nrow; i++ {

		buf.Reset()

		if labels != nil {
			_, _ = io.WriteString(&buf, fmt.Sprintf("%-20s", labels[i]))
		}
		for j := 0; j < ncol; j++ {
			_, _ = io.WriteString(&buf, fmt.Sprintf("%12.4e ", x[i*ncol+j]))
		}

		logger.Printf("%s", buf.String())
	}
}

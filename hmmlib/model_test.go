package hmmlib

import (
	"bytes"
	"log"
	"math"
	"testing"

	"github.com/kshedden/seqhmm/elog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabet(t *testing.T) {

	assert.Equal(t, 4, DNA.Len())
	assert.Equal(t, 1, DNA.K())
	assert.Equal(t, []string{"A", "C", "G", "T"}, DNA.Symbols())

	codons := KmerAlphabet(3)
	assert.Equal(t, 64, codons.Len())
	assert.Equal(t, 3, codons.K())
	assert.Equal(t, "AAA", codons.Symbol(0))
	assert.Equal(t, "AAC", codons.Symbol(1))
	assert.Equal(t, "TTT", codons.Symbol(63))

	k, err := codons.Index("gat")
	require.NoError(t, err)
	assert.Equal(t, "GAT", codons.Symbol(k))
	_, err = codons.Index("GA")
	assert.ErrorIs(t, err, ErrSymbol)

	// Symbols returns a copy
	s := DNA.Symbols()
	s[0] = "X"
	assert.Equal(t, "A", DNA.Symbol(0))

	_, err = NewAlphabet(nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewAlphabet([]string{"A", "CC"})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewAlphabet([]string{"A", "A"})
	assert.ErrorIs(t, err, ErrConfiguration)

	a, err := NewAlphabet([]string{"A", "C", "G", "T"})
	require.NoError(t, err)
	assert.True(t, a.Equal(DNA))
	assert.False(t, a.Equal(codons))
}

func TestModelSetters(t *testing.T) {

	m, err := NewModel(2, DNA)
	require.NoError(t, err)
	assert.False(t, m.LogInitProb(0).Defined())

	require.NoError(t, m.SetInit(1, 0.25))
	assert.Equal(t, 0.25, m.InitProb(1))
	assert.InDelta(t, math.Log(0.25), mustFloat(m.LogInitProb(1)), 1e-15)

	require.NoError(t, m.SetTrans(0, 1, 0.3))
	assert.Equal(t, 0.3, m.TransProb(0, 1))
	require.NoError(t, m.SetEmitSymbol(1, "g", 0.7))
	assert.Equal(t, 0.7, m.EmitProb(1, 2))

	assert.ErrorIs(t, m.SetInit(2, 0.5), ErrConfiguration)
	assert.ErrorIs(t, m.SetTrans(0, -1, 0.5), ErrConfiguration)
	assert.ErrorIs(t, m.SetEmit(0, 4, 0.5), ErrConfiguration)
	assert.ErrorIs(t, m.SetEmit(0, 0, 1.5), ErrConfiguration)
	assert.ErrorIs(t, m.SetEmit(0, 0, math.NaN()), ErrConfiguration)
	assert.ErrorIs(t, m.SetTrans(0, 0, -0.1), elog.ErrDomain)
	assert.ErrorIs(t, m.SetEmitSymbol(0, "N", 0.1), ErrSymbol)

	_, err = NewModel(0, DNA)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewModel(2, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func mustFloat(v elog.Value) float64 {
	f, ok := v.Float()
	if !ok {
		panic("undefined log")
	}
	return f
}

func TestNewModelFromDimensions(t *testing.T) {

	_, err := NewModelFrom(DNA, []float64{0.5, 0.5}, [][]float64{{1, 0}}, [][]float64{{1, 0, 0, 0}, {1, 0, 0, 0}})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewModelFrom(DNA, []float64{0.5, 0.5}, [][]float64{{1, 0}, {1}}, [][]float64{{1, 0, 0, 0}, {1, 0, 0, 0}})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewModelFrom(DNA, []float64{0.5, 0.5}, [][]float64{{1, 0}, {0, 1}}, [][]float64{{1, 0, 0}, {1, 0, 0, 0}})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestModelClone(t *testing.T) {

	m := ToyModel()
	c := m.Clone()
	require.NoError(t, c.SetTrans(0, 0, 0.9))
	assert.Equal(t, 0.5, m.TransProb(0, 0))
	assert.Equal(t, 0.9, c.TransProb(0, 0))
	assert.True(t, c.Alphabet().Equal(m.Alphabet()))
}

func TestValidate(t *testing.T) {

	for _, name := range PresetNames() {
		m, err := Preset(name)
		require.NoError(t, err)
		assert.NoError(t, m.Validate(1e-9), name)
	}

	m := ToyModel()
	require.NoError(t, m.SetTrans(1, 1, 0.5))
	assert.ErrorIs(t, m.Validate(1e-9), ErrConfiguration)

	_, err := Preset("nope")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestUniformModel(t *testing.T) {

	m, err := UniformModel(4, DNA, 0.9)
	require.NoError(t, err)
	require.NoError(t, m.Validate(1e-12))
	assert.InDelta(t, 0.9, m.TransProb(2, 2), 1e-12)
	assert.InDelta(t, 0.1/3, m.TransProb(2, 0), 1e-12)
	assert.Greater(t, m.EmitProb(1, 1), m.EmitProb(1, 0))

	one, err := UniformModel(1, KmerAlphabet(2), 0.5)
	require.NoError(t, err)
	require.NoError(t, one.Validate(1e-12))
	assert.Equal(t, 1.0, one.TransProb(0, 0))

	_, err = UniformModel(2, DNA, 1.5)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestWriteSummary(t *testing.T) {

	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	ToyModel().WriteSummary(logger, []string{"GC", "AT"}, "Toy")

	out := buf.String()
	assert.Contains(t, out, "Toy")
	assert.Contains(t, out, "Transition matrix:")
	assert.Contains(t, out, "GC")
	assert.Contains(t, out, "6.0000e-01")
}

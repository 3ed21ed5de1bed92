package hmmlib

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// InitialModel returns the two state starting model used to look for
// GC rich segments.  State 0 is the background state and state 1 the
// GC rich state.
func InitialModel() *Model {

	m, err := NewModelFrom(DNA,
		[]float64{0.996, 0.004},
		[][]float64{
			{0.999, 0.001},
			{0.01, 0.99},
		},
		[][]float64{
			// A, C, G, T
			{0.291, 0.209, 0.209, 0.291},
			{0.169, 0.331, 0.331, 0.169},
		})
	if err != nil {
		panic(err)
	}

	return m
}

// ToyModel returns the two state model of the classic Viterbi toy
// example (D. Gonze, "The Viterbi algorithm").  State 0 favors C and
// G, state 1 favors A and T.
func ToyModel() *Model {

	m, err := NewModelFrom(DNA,
		[]float64{0.5, 0.5},
		[][]float64{
			{0.5, 0.5},
			{0.4, 0.6},
		},
		[][]float64{
			{0.2, 0.3, 0.3, 0.2},
			{0.3, 0.2, 0.2, 0.3},
		})
	if err != nil {
		panic(err)
	}

	return m
}

var presets = map[string]func() *Model{
	"initial": InitialModel,
	"toy":     ToyModel,
}

// Preset returns the named preset model.
func Preset(name string) (*Model, error) {

	f, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, configErrorf("unknown preset %q (have %s)", name, strings.Join(PresetNames(), ", "))
	}

	return f(), nil
}

// PresetNames returns the names accepted by Preset.
func PresetNames() []string {
	var names []string
	for k := range presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// UniformModel returns starting values for an nstate model.  Each
// state stays put with probability self and otherwise moves to one of
// the other states uniformly.  The initial distribution is uniform.
// Emissions are nearly uniform, with state st slightly favoring symbol
// st modulo the alphabet size so that EM can separate the states.
func UniformModel(nstate int, alpha *Alphabet, self float64) (*Model, error) {

	m, err := NewModel(nstate, alpha)
	if err != nil {
		return nil, err
	}
	if self < 0 || self > 1 {
		return nil, configErrorf("self transition probability %g outside [0, 1]", self)
	}

	for i := 0; i < nstate; i++ {
		if err := m.SetInit(i, 1/float64(nstate)); err != nil {
			return nil, err
		}
		for j := 0; j < nstate; j++ {
			p := self
			if nstate == 1 {
				p = 1
			} else if i != j {
				p = (1 - self) / float64(nstate-1)
			}
			if err := m.SetTrans(i, j, p); err != nil {
				return nil, err
			}
		}
	}

	nsym := alpha.Len()
	row := make([]float64, nsym)
	for st := 0; st < nstate; st++ {
		for k := range row {
			row[k] = 1
		}
		if nstate > 1 {
			row[st%nsym] += 0.5
		}
		floats.Scale(1/floats.Sum(row), row)
		for k, p := range row {
			if err := m.SetEmit(st, k, p); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

package hmmlib

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the training settings.
type Config struct {

	// Number of Viterbi training iterations
	Iterations int `yaml:"iterations"`

	// Baum-Welch stops when the log-likelihood (base 2) changes by
	// less than this between iterations
	Threshold float64 `yaml:"threshold"`

	// Baum-Welch gives up after this many iterations
	MaxIter int `yaml:"maxiter"`

	// Number of goroutines per trellis position
	Workers int `yaml:"workers"`

	// What Viterbi training re-estimates besides transitions
	Viterbi ViterbiPolicy `yaml:"viterbi"`

	// Name of the preset starting model, used if ModelFile is empty
	Preset string `yaml:"preset"`

	// Optional YAML model specification to start from
	ModelFile string `yaml:"modelfile"`

	// Symbol length; 1 for residues, 3 for codons
	Kmer int `yaml:"kmer"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Iterations: 10,
		Threshold:  0.1,
		MaxIter:    1000,
		Workers:    1,
		Preset:     "initial",
		Kmer:       1,
	}
}

// LoadConfig reads a YAML configuration file.  Settings missing from
// the file keep their default values.
func LoadConfig(fname string) (Config, error) {

	cfg := DefaultConfig()

	b, err := os.ReadFile(fname)
	if err != nil {
		return cfg, errors.Wrapf(err, "could not read config %s", fname)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "could not parse config %s", fname)
	}

	return cfg, cfg.Check()
}

// Check validates the settings.
func (cfg Config) Check() error {

	switch {
	case cfg.Iterations < 0:
		return configErrorf("iterations must be non-negative, got %d", cfg.Iterations)
	case cfg.Threshold <= 0:
		return configErrorf("threshold must be positive, got %g", cfg.Threshold)
	case cfg.MaxIter < 1:
		return configErrorf("maxiter must be positive, got %d", cfg.MaxIter)
	case cfg.Workers < 1:
		return configErrorf("workers must be positive, got %d", cfg.Workers)
	case cfg.Kmer < 1:
		return configErrorf("kmer must be positive, got %d", cfg.Kmer)
	}

	return nil
}

// StartModel returns the model the configuration asks to start from:
// the model file if one is given, else the preset.
func (cfg Config) StartModel() (*Model, error) {

	if cfg.ModelFile != "" {
		spec, err := LoadModelSpec(cfg.ModelFile)
		if err != nil {
			return nil, err
		}
		return spec.Model()
	}

	m, err := Preset(cfg.Preset)
	if err != nil {
		return nil, err
	}
	if m.Alphabet().K() != cfg.Kmer {
		return nil, configErrorf("preset %q uses symbols of length %d, kmer is %d",
			cfg.Preset, m.Alphabet().K(), cfg.Kmer)
	}

	return m, nil
}

// ModelSpec is the YAML form of a model.  Emission rows map symbols to
// probabilities; symbols left out have probability zero.
//
//	symbols: [A, C, G, T]
//	init: [0.5, 0.5]
//	trans:
//	  - [0.9, 0.1]
//	  - [0.2, 0.8]
//	emit:
//	  - {A: 0.3, C: 0.2, G: 0.2, T: 0.3}
//	  - {A: 0.2, C: 0.3, G: 0.3, T: 0.2}
//
// If Symbols is empty, Kmer selects all k-mers over A, C, G, T.
type ModelSpec struct {
	Symbols []string             `yaml:"symbols,omitempty"`
	Kmer    int                  `yaml:"kmer,omitempty"`
	Init    []float64            `yaml:"init"`
	Trans   [][]float64          `yaml:"trans"`
	Emit    []map[string]float64 `yaml:"emit"`
}

// LoadModelSpec reads a YAML model specification.
func LoadModelSpec(fname string) (*ModelSpec, error) {

	b, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read model %s", fname)
	}

	var spec ModelSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, errors.Wrapf(err, "could not parse model %s", fname)
	}

	return &spec, nil
}

// Model builds the model described by spec.
func (spec *ModelSpec) Model() (*Model, error) {

	var alpha *Alphabet
	switch {
	case len(spec.Symbols) > 0:
		a, err := NewAlphabet(spec.Symbols)
		if err != nil {
			return nil, err
		}
		alpha = a
	case spec.Kmer > 0:
		alpha = KmerAlphabet(spec.Kmer)
	default:
		alpha = DNA
	}

	if len(spec.Emit) != len(spec.Init) {
		return nil, configErrorf("%d emission rows for %d states", len(spec.Emit), len(spec.Init))
	}

	emit := make([][]float64, len(spec.Emit))
	for st, row := range spec.Emit {
		emit[st] = make([]float64, alpha.Len())
		for sym, p := range row {
			k, err := alpha.Index(sym)
			if err != nil {
				return nil, errors.Wrapf(err, "emission row %d", st)
			}
			emit[st][k] = p
		}
	}

	return NewModelFrom(alpha, spec.Init, spec.Trans, emit)
}

// SpecOf returns the YAML description of m.
func SpecOf(m *Model) *ModelSpec {

	alpha := m.Alphabet()
	spec := &ModelSpec{
		Symbols: alpha.Symbols(),
		Init:    m.Init(),
		Trans:   make([][]float64, m.NState()),
		Emit:    make([]map[string]float64, m.NState()),
	}

	for st := 0; st < m.NState(); st++ {
		spec.Trans[st] = append([]float64(nil), m.transRow(st)...)
		spec.Emit[st] = make(map[string]float64, alpha.Len())
		for k := 0; k < alpha.Len(); k++ {
			spec.Emit[st][alpha.Symbol(k)] = m.EmitProb(st, k)
		}
	}

	return spec
}

// WriteModelSpec writes m as YAML.
func WriteModelSpec(fname string, m *Model) error {

	b, err := yaml.Marshal(SpecOf(m))
	if err != nil {
		return errors.Wrap(err, "could not encode model")
	}

	return errors.Wrapf(os.WriteFile(fname, b, 0o644), "could not write model %s", fname)
}

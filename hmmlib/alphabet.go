package hmmlib

import (
	"strings"

	"github.com/pkg/errors"
)

// Residues are the nucleotide codes, in the order used for every
// alphabet built from them.
const Residues = "ACGT"

// Alphabet is an ordered set of emission symbols that all have the
// same length K.  With K=1 the symbols are single residues, with K=3
// they are codons.
type Alphabet struct {
	symbols []string
	index   map[string]int
	k       int
}

// NewAlphabet returns an alphabet of the given symbols.  All symbols
// must be distinct, non-empty and of the same length.
func NewAlphabet(symbols []string) (*Alphabet, error) {

	if len(symbols) == 0 {
		return nil, configErrorf("empty alphabet")
	}

	a := &Alphabet{
		symbols: make([]string, len(symbols)),
		index:   make(map[string]int, len(symbols)),
		k:       len(symbols[0]),
	}
	copy(a.symbols, symbols)

	for i, s := range symbols {
		if len(s) == 0 || len(s) != a.k {
			return nil, configErrorf("symbol %q has length %d, want %d", s, len(s), a.k)
		}
		if _, ok := a.index[s]; ok {
			return nil, configErrorf("duplicate symbol %q", s)
		}
		a.index[s] = i
	}

	return a, nil
}

// DNA is the single residue alphabet A, C, G, T.
var DNA = KmerAlphabet(1)

// KmerAlphabet returns the alphabet of all 4^k words of length k over
// A, C, G, T in lexicographic order.
func KmerAlphabet(k int) *Alphabet {

	if k < 1 {
		panic("KmerAlphabet: k must be positive")
	}

	words := []string{""}
	for j := 0; j < k; j++ {
		next := make([]string, 0, 4*len(words))
		for _, w := range words {
			for _, r := range Residues {
				next = append(next, w+string(r))
			}
		}
		words = next
	}

	a, err := NewAlphabet(words)
	if err != nil {
		panic(err)
	}
	return a
}

// Len returns the number of symbols.
func (a *Alphabet) Len() int {
	return len(a.symbols)
}

// K returns the common symbol length.
func (a *Alphabet) K() int {
	return a.k
}

// Symbol returns the symbol with index i.
func (a *Alphabet) Symbol(i int) string {
	return a.symbols[i]
}

// Symbols returns a copy of the symbols in index order.
func (a *Alphabet) Symbols() []string {
	s := make([]string, len(a.symbols))
	copy(s, a.symbols)
	return s
}

// Index returns the index of symbol s.  Lookup is case insensitive.
func (a *Alphabet) Index(s string) (int, error) {

	if i, ok := a.index[s]; ok {
		return i, nil
	}
	if i, ok := a.index[strings.ToUpper(s)]; ok {
		return i, nil
	}

	return -1, errors.Wrapf(ErrSymbol, "%q", s)
}

// Equal returns true if a and b have the same symbols in the same order.
func (a *Alphabet) Equal(b *Alphabet) bool {

	if a == b {
		return true
	}
	if a == nil || b == nil || len(a.symbols) != len(b.symbols) {
		return false
	}
	for i := range a.symbols {
		if a.symbols[i] != b.symbols[i] {
			return false
		}
	}

	return true
}

package seqio

// Residues is a sequence of single residue symbols.
type Residues []byte

// Len returns the number of residues.
func (r Residues) Len() int {
	return len(r)
}

// Symbol returns residue i as a one letter string.
func (r Residues) Symbol(i int) string {
	return string(r[i])
}

// KmerSeq is a sequence of consecutive, non-overlapping words of
// length K, such as codons.
type KmerSeq struct {
	b []byte
	k int
}

// Kmers splits b into words of length k.  A trailing partial word is
// dropped.
func Kmers(b []byte, k int) KmerSeq {
	if k < 1 {
		panic("Kmers: k must be positive")
	}
	return KmerSeq{b: b[:len(b)-len(b)%k], k: k}
}

// K returns the word length.
func (s KmerSeq) K() int {
	return s.k
}

// Len returns the number of words.
func (s KmerSeq) Len() int {
	return len(s.b) / s.k
}

// Symbol returns word i.
func (s KmerSeq) Symbol(i int) string {
	return string(s.b[i*s.k : (i+1)*s.k])
}

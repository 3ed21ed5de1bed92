// Package seqio reads nucleotide sequences from FASTA files and
// presents them as symbol sequences for the HMM trellis.
package seqio

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Record is one FASTA entry.
type Record struct {

	// Header line without the leading '>'
	Header string

	// Upper case residues with line breaks and whitespace removed
	Residues []byte
}

// maxLine bounds the length of a single FASTA line.
const maxLine = 64 * 1024 * 1024

// ReadFasta reads the first record of a FASTA file.  Compressed files
// are recognized by the gzip magic number, and the path "-" reads
// standard input.
func ReadFasta(path string) (*Record, error) {

	recs, err := ReadFastaAll(path)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.Errorf("%s contains no sequence", path)
	}

	return recs[0], nil
}

// ReadFastaAll reads every record of a FASTA file.
func ReadFastaAll(path string) ([]*Record, error) {

	rc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	recs, err := Parse(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	return recs, nil
}

// Parse reads FASTA records from r.  Text before the first header
// line is taken as the residues of a record with an empty header.
func Parse(r io.Reader) ([]*Record, error) {

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), maxLine)

	var recs []*Record
	var cur *Record
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			cur = &Record{Header: strings.TrimSpace(string(line[1:]))}
			recs = append(recs, cur)
			continue
		}
		if cur == nil {
			cur = &Record{}
			recs = append(recs, cur)
		}
		for _, c := range line {
			switch c {
			case ' ', '\t', '\r':
				continue
			}
			cur.Residues = append(cur.Residues, upper(c))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}

func upper(c byte) byte {
	if 'a' <= c && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

type gzipFile struct {
	*gzip.Reader
	fid *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if ferr := g.fid.Close(); err == nil {
		err = ferr
	}
	return err
}

func open(path string) (io.ReadCloser, error) {

	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	fid, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", path)
	}

	br := bufio.NewReader(fid)
	sig, _ := br.Peek(2)
	if len(sig) == 2 && sig[0] == 0x1f && sig[1] == 0x8b {
		gr, err := gzip.NewReader(br)
		if err != nil {
			fid.Close()
			return nil, errors.Wrapf(err, "could not decompress %s", path)
		}
		return &gzipFile{Reader: gr, fid: fid}, nil
	}

	return struct {
		io.Reader
		io.Closer
	}{br, fid}, nil
}

// BaseCounts returns the number of A, C, G and T residues, and the
// number of other residues (N).
func (r *Record) BaseCounts() map[byte]int {

	counts := map[byte]int{'A': 0, 'C': 0, 'G': 0, 'T': 0, 'N': 0}
	for _, c := range r.Residues {
		switch c {
		case 'A', 'C', 'G', 'T':
			counts[c]++
		default:
			counts['N']++
		}
	}

	return counts
}

// GCContent returns the fraction of residues that are G or C.
func (r *Record) GCContent() float64 {
	if len(r.Residues) == 0 {
		return 0
	}
	bc := r.BaseCounts()
	return float64(bc['G']+bc['C']) / float64(len(r.Residues))
}

var complement = [256]byte{
	'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A', 'N': 'N',
}

// ReverseComplement returns a record holding the reverse complement
// of r.  Residues other than A, C, G and T become N.
func (r *Record) ReverseComplement() *Record {

	n := len(r.Residues)
	rc := make([]byte, n)
	for i, c := range r.Residues {
		d := complement[c]
		if d == 0 {
			d = 'N'
		}
		rc[n-1-i] = d
	}

	return &Record{Header: r.Header + " reverse complement", Residues: rc}
}

// WriteFasta writes records to w, wrapping residue lines at width.
func WriteFasta(w io.Writer, width int, recs ...*Record) error {

	if width < 1 {
		width = 60
	}

	bw := bufio.NewWriter(w)
	for _, r := range recs {
		if _, err := bw.WriteString(">" + r.Header + "\n"); err != nil {
			return err
		}
		for i := 0; i < len(r.Residues); i += width {
			j := i + width
			if j > len(r.Residues) {
				j = len(r.Residues)
			}
			if _, err := bw.Write(r.Residues[i:j]); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

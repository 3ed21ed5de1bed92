package hmmlib

import (
	"compress/gzip"
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
)

// modelFile is the serialized form of a Model.  Only probabilities
// are stored; the logs are recomputed when reading.
type modelFile struct {
	NState  int
	Symbols []string
	Init    []float64
	Trans   []float64
	Emit    []float64
}

// WriteModel writes m to a gzip-compressed gob file.
func WriteModel(fname string, m *Model) error {

	fid, err := os.Create(fname)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", fname)
	}
	defer fid.Close()

	gid := gzip.NewWriter(fid)

	mf := modelFile{
		NState:  m.nstate,
		Symbols: m.alpha.Symbols(),
		Init:    m.init,
		Trans:   m.trans,
		Emit:    m.emit,
	}
	if err := gob.NewEncoder(gid).Encode(&mf); err != nil {
		return errors.Wrapf(err, "could not encode model to %s", fname)
	}
	if err := gid.Close(); err != nil {
		return errors.Wrapf(err, "could not write %s", fname)
	}

	return fid.Close()
}

// ReadModel reads a model written by WriteModel.
func ReadModel(fname string) (*Model, error) {

	fid, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", fname)
	}
	defer fid.Close()

	gid, err := gzip.NewReader(fid)
	if err != nil {
		return nil, errors.Wrapf(err, "%s is not gzip compressed", fname)
	}
	defer gid.Close()

	var mf modelFile
	if err := gob.NewDecoder(gid).Decode(&mf); err != nil {
		return nil, errors.Wrapf(err, "could not decode model from %s", fname)
	}

	alpha, err := NewAlphabet(mf.Symbols)
	if err != nil {
		return nil, err
	}
	nsym := alpha.Len()
	if len(mf.Init) != mf.NState || len(mf.Trans) != mf.NState*mf.NState || len(mf.Emit) != mf.NState*nsym {
		return nil, configErrorf("model in %s has inconsistent dimensions", fname)
	}

	m, err := NewModel(mf.NState, alpha)
	if err != nil {
		return nil, err
	}
	for i := 0; i < mf.NState; i++ {
		if err := m.SetInit(i, mf.Init[i]); err != nil {
			return nil, err
		}
		for j := 0; j < mf.NState; j++ {
			if err := m.SetTrans(i, j, mf.Trans[i*mf.NState+j]); err != nil {
				return nil, err
			}
		}
		for k := 0; k < nsym; k++ {
			if err := m.SetEmit(i, k, mf.Emit[i*nsym+k]); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

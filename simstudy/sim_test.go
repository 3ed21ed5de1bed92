package main

import (
	"bytes"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/kshedden/seqhmm/hmmlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStudy(t *testing.T) {

	logger = log.New(io.Discard, "", 0)

	for _, method := range []string{hmmlib.MethodViterbi, hmmlib.MethodBaumWelch} {
		s := *basestudy
		s.method = method
		s.nrep = 2
		s.length = 400
		s.iters = 3
		s.maxiter = 5
		s.logdir = t.TempDir()

		var buf bytes.Buffer
		require.NoError(t, writeStudy(&s, &buf))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "Truth,"))
		for _, line := range lines[1:] {
			f := strings.Split(line, ",")
			require.Len(t, f, 8)
			assert.Equal(t, method, f[2])
			assert.Equal(t, "400", f[3])
		}
	}
}

func TestUnknownMethod(t *testing.T) {

	logger = log.New(io.Discard, "", 0)
	s := *basestudy
	s.method = "gibbs"
	s.nrep = 1
	s.length = 50
	s.logdir = t.TempDir()

	var buf bytes.Buffer
	assert.Error(t, writeStudy(&s, &buf))
}

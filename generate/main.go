// Command generate simulates a residue sequence from a model and
// writes it as FASTA, optionally together with the hidden states.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kshedden/seqhmm/hmmlib"
	"github.com/kshedden/seqhmm/hmmsim"
	"github.com/kshedden/seqhmm/report"
	"github.com/kshedden/seqhmm/seqio"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	preset    string
	modelfile string
	outname   string
	statename string
	length    int
	width     int
	seed      int64
)

var rootCmd = &cobra.Command{
	Use:   "generate",
	Short: "Simulate a FASTA sequence from an HMM",
	Long: `Generate draws a hidden state path and the residues it emits from a
preset or YAML model, and writes the residues as FASTA.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.OutOrStdout())
	},
}

func init() {
	fl := rootCmd.Flags()
	fl.StringVar(&preset, "preset", "initial", "Preset model")
	fl.StringVar(&modelfile, "model", "", "YAML model, overrides --preset")
	fl.StringVar(&outname, "outname", "-", "FASTA output file, - for stdout")
	fl.StringVar(&statename, "states", "", "Also write the hidden states to this file")
	fl.IntVar(&length, "length", 10000, "Number of symbols")
	fl.IntVar(&width, "width", 60, "Residues per FASTA line")
	fl.Int64Var(&seed, "seed", 0, "Random seed, 0 for the clock")
}

func model() (*hmmlib.Model, error) {

	if modelfile != "" {
		spec, err := hmmlib.LoadModelSpec(modelfile)
		if err != nil {
			return nil, err
		}
		return spec.Model()
	}

	return hmmlib.Preset(preset)
}

func create(name string, stdout io.Writer) (io.Writer, func() error, error) {

	if name == "-" {
		return stdout, func() error { return nil }, nil
	}

	fid, err := os.Create(name)
	if err != nil {
		return nil, nil, err
	}

	return fid, fid.Close, nil
}

func run(stdout io.Writer) error {

	m, err := model()
	if err != nil {
		return err
	}
	if length < 1 {
		return errors.Errorf("length must be positive, got %d", length)
	}

	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	states, residues := hmmsim.New(seed).Sequence(m, length)

	w, closer, err := create(outname, stdout)
	if err != nil {
		return err
	}
	rec := &seqio.Record{
		Header:   fmt.Sprintf("simulated length=%d seed=%d", length, seed),
		Residues: residues,
	}
	if err := seqio.WriteFasta(w, width, rec); err != nil {
		return err
	}
	if err := closer(); err != nil {
		return err
	}

	if statename == "" {
		return nil
	}

	fid, err := os.Create(statename)
	if err != nil {
		return err
	}
	if err := report.PathStates(fid, &hmmlib.Path{States: states}); err != nil {
		fid.Close()
		return err
	}

	return fid.Close()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

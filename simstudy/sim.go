// Command simstudy repeatedly simulates sequences from a known model,
// fits a model to each, and records how well the decoded state path
// recovers the simulated one.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path"

	"github.com/kshedden/seqhmm/hmmlib"
	"github.com/kshedden/seqhmm/hmmsim"
	"github.com/kshedden/seqhmm/seqio"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	logger *log.Logger
)

type study struct {
	truth   string
	start   string
	method  string
	nrep    int
	length  int
	iters   int
	maxiter int
	seed    int64
	logdir  string
	outname string
}

var basestudy = &study{
	truth:   "initial",
	start:   "toy",
	method:  hmmlib.MethodBaumWelch,
	nrep:    10,
	length:  5000,
	iters:   10,
	maxiter: 200,
	seed:    1,
	logdir:  "logs",
	outname: "result.csv",
}

var rootCmd = &cobra.Command{
	Use:   "simstudy",
	Short: "Measure how well training recovers simulated state paths",
	Long: `Simstudy simulates sequences from the truth model, trains a model on
each starting from another, and writes one CSV line per replicate with
the log-likelihood and the fraction of misassigned positions.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStudy(basestudy)
	},
}

func init() {
	fl := rootCmd.Flags()
	s := basestudy
	fl.StringVar(&s.truth, "truth", s.truth, "Preset to simulate from")
	fl.StringVar(&s.start, "start", s.start, "Preset to start training from")
	fl.StringVar(&s.method, "method", s.method, "viterbi or baumwelch")
	fl.IntVar(&s.nrep, "nrep", s.nrep, "Number of replicates")
	fl.IntVar(&s.length, "length", s.length, "Sequence length")
	fl.IntVar(&s.iters, "iterations", s.iters, "Viterbi iterations")
	fl.IntVar(&s.maxiter, "maxiter", s.maxiter, "Maximum Baum-Welch iterations")
	fl.Int64Var(&s.seed, "seed", s.seed, "Seed of the first replicate")
	fl.StringVar(&s.logdir, "logdir", s.logdir, "Directory for per-replicate logs")
	fl.StringVar(&s.outname, "out", s.outname, "CSV output file")
}

// replicate simulates one sequence and fits it.  It returns the final
// log-likelihood (NaN for Viterbi training), the number of iterations
// and the error rate of the decoded path.
func replicate(s *study, num int) (float64, int, float64, error) {

	truth, err := hmmlib.Preset(s.truth)
	if err != nil {
		return 0, 0, 0, err
	}
	start, err := hmmlib.Preset(s.start)
	if err != nil {
		return 0, 0, 0, err
	}

	states, residues := hmmsim.New(s.seed + int64(num)).Sequence(truth, s.length)

	cfg := hmmlib.DefaultConfig()
	cfg.Iterations = s.iters
	cfg.MaxIter = s.maxiter
	tn, err := hmmlib.NewTrainer(seqio.Residues(residues), start, cfg)
	if err != nil {
		return 0, 0, 0, err
	}
	if _, err := tn.SetLogFiles(path.Join(s.logdir, fmt.Sprintf("%s_%d", s.method, num))); err != nil {
		return 0, 0, 0, err
	}

	llf := math.NaN()
	var niter int
	switch s.method {
	case hmmlib.MethodViterbi:
		results, err := tn.ViterbiTraining(context.Background(), s.iters)
		if err != nil {
			return 0, 0, 0, err
		}
		niter = len(results)
	case hmmlib.MethodBaumWelch:
		results, err := tn.BaumWelchTraining(context.Background())
		if errors.Is(err, hmmlib.ErrNotConverged) {
			logger.Printf("replicate %d: %v\n", num, err)
		} else if err != nil {
			return 0, 0, 0, err
		}
		niter = len(results)
		llf = results[niter-1].LogLikelihood
	default:
		return 0, 0, 0, errors.Errorf("unknown method %q", s.method)
	}

	decoded, err := tn.Path()
	if err != nil {
		return 0, 0, 0, err
	}

	return llf, niter, hmmsim.CompareStates(states, decoded.States, truth.NState()), nil
}

func runStudy(s *study) error {

	if err := os.MkdirAll(s.logdir, 0o755); err != nil {
		return err
	}

	lfid, err := os.Create("sim.log")
	if err != nil {
		return err
	}
	defer lfid.Close()
	logger = log.New(lfid, "", log.Ltime)

	out, err := os.Create(s.outname)
	if err != nil {
		return err
	}
	defer out.Close()

	return writeStudy(s, out)
}

func writeStudy(s *study, out io.Writer) error {

	head := "Truth,Start,Method,Length,Run,Iterations,LogLike,ErrorRate\n"
	if _, err := io.WriteString(out, head); err != nil {
		return err
	}

	for i := 0; i < s.nrep; i++ {
		logger.Printf("replicate %d\n", i)
		llf, niter, rate, err := replicate(s, i)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, fmt.Sprintf("%s,%s,%s,%d,%d,%d,%.4f,%.4f\n",
			s.truth, s.start, s.method, s.length, i, niter, llf, rate))
		if err != nil {
			return err
		}
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Command estimate trains a hidden Markov model on a FASTA sequence
// by Viterbi training or by Baum-Welch, and writes the results.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/kshedden/seqhmm/hmmlib"
	"github.com/kshedden/seqhmm/report"
	"github.com/kshedden/seqhmm/seqio"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	logger *log.Logger

	cfgfile     string
	fastaname   string
	logname     string
	outname     string
	gobmodel    string
	metricsAddr string
	reverse     bool
	progress    bool
	scores      bool
)

var rootCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Train an HMM on a nucleotide sequence",
	Long: `Estimate reads a FASTA sequence and fits a hidden Markov model to it,
starting from a preset, a YAML model or a saved model.  Results are
written to standard output, progress to <logname>_msg.log and the
fitted parameters to <logname>_par.log.`,
	SilenceUsage: true,
}

var viterbiCmd = &cobra.Command{
	Use:   "viterbi",
	Short: "Viterbi training for a fixed number of iterations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, hmmlib.MethodViterbi)
	},
}

var baumwelchCmd = &cobra.Command{
	Use:   "baumwelch",
	Short: "Baum-Welch training until the log-likelihood settles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, hmmlib.MethodBaumWelch)
	},
}

func init() {

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgfile, "config", "", "YAML configuration file")
	pf.StringVar(&fastaname, "fasta", "", "FASTA file with the sequence, - for stdin")
	pf.StringVar(&logname, "logname", "hmm", "Prefix of log files")
	pf.StringVar(&outname, "out", "", "Write the fitted model to this gob file")
	pf.StringVar(&gobmodel, "gobmodel", "", "Start from a model saved with --out")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics at this address")
	pf.BoolVar(&reverse, "reverse", false, "Train on the reverse complement")
	pf.BoolVar(&progress, "progress", false, "Show a progress bar")
	pf.String("preset", "", "Preset starting model ("+fmt.Sprint(hmmlib.PresetNames())+")")
	pf.String("model", "", "YAML starting model")
	pf.Int("workers", 0, "Goroutines per trellis position")
	pf.Int("kmer", 0, "Symbol length, 3 for codons")
	_ = rootCmd.MarkPersistentFlagRequired("fasta")

	viterbiCmd.Flags().Int("iterations", 0, "Number of Viterbi iterations")
	viterbiCmd.Flags().Bool("emission", false, "Also re-estimate emission probabilities")
	viterbiCmd.Flags().Bool("initiation", false, "Also re-estimate initiation probabilities")
	viterbiCmd.Flags().BoolVar(&scores, "scores", false, "Write the node weights of the last iteration to stderr")

	baumwelchCmd.Flags().Float64("threshold", 0, "Stop when the log-likelihood (bits) changes by less")
	baumwelchCmd.Flags().Int("maxiter", 0, "Maximum number of iterations")

	rootCmd.AddCommand(viterbiCmd, baumwelchCmd)
}

// config reads the configuration file, if any, and applies the flags
// that were given on the command line.
func config(cmd *cobra.Command) (hmmlib.Config, error) {

	cfg := hmmlib.DefaultConfig()
	if cfgfile != "" {
		var err error
		cfg, err = hmmlib.LoadConfig(cfgfile)
		if err != nil {
			return cfg, err
		}
	}

	fl := cmd.Flags()
	if fl.Changed("preset") {
		cfg.Preset, _ = fl.GetString("preset")
	}
	if fl.Changed("model") {
		cfg.ModelFile, _ = fl.GetString("model")
	}
	if fl.Changed("workers") {
		cfg.Workers, _ = fl.GetInt("workers")
	}
	if fl.Changed("kmer") {
		cfg.Kmer, _ = fl.GetInt("kmer")
	}
	if fl.Lookup("iterations") != nil && fl.Changed("iterations") {
		cfg.Iterations, _ = fl.GetInt("iterations")
	}
	if fl.Lookup("emission") != nil && fl.Changed("emission") {
		cfg.Viterbi.Emission, _ = fl.GetBool("emission")
	}
	if fl.Lookup("initiation") != nil && fl.Changed("initiation") {
		cfg.Viterbi.Initiation, _ = fl.GetBool("initiation")
	}
	if fl.Lookup("threshold") != nil && fl.Changed("threshold") {
		cfg.Threshold, _ = fl.GetFloat64("threshold")
	}
	if fl.Lookup("maxiter") != nil && fl.Changed("maxiter") {
		cfg.MaxIter, _ = fl.GetInt("maxiter")
	}

	return cfg, cfg.Check()
}

// sequence turns a FASTA record into symbols of length k.
func sequence(rec *seqio.Record, k int) hmmlib.Sequence {
	if k == 1 {
		return seqio.Residues(rec.Residues)
	}
	return seqio.Kmers(rec.Residues, k)
}

func startModel(cfg hmmlib.Config) (*hmmlib.Model, error) {
	if gobmodel != "" {
		return hmmlib.ReadModel(gobmodel)
	}
	return cfg.StartModel()
}

func serveMetrics(addr string) *hmmlib.Metrics {

	reg := prometheus.NewRegistry()
	metrics := hmmlib.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Printf("Metrics server stopped: %v", err)
		}
	}()
	logger.Printf("Serving metrics on %s/metrics\n", addr)

	return metrics
}

func run(cmd *cobra.Command, method string) error {

	cfg, err := config(cmd)
	if err != nil {
		return err
	}

	rec, err := seqio.ReadFasta(fastaname)
	if err != nil {
		return err
	}
	if reverse {
		rec = rec.ReverseComplement()
	}

	m, err := startModel(cfg)
	if err != nil {
		return err
	}
	if m.Alphabet().K() != cfg.Kmer {
		return errors.Errorf("model uses symbols of length %d, kmer is %d", m.Alphabet().K(), cfg.Kmer)
	}
	seq := sequence(rec, cfg.Kmer)

	tn, err := hmmlib.NewTrainer(seq, m, cfg)
	if err != nil {
		return err
	}
	logger, err = tn.SetLogFiles(logname)
	if err != nil {
		return err
	}
	tn.SetProgress(progress)
	if metricsAddr != "" {
		tn.SetMetrics(serveMetrics(metricsAddr))
	}

	bc := rec.BaseCounts()
	logger.Printf("%s: %d residues, A=%d C=%d G=%d T=%d N=%d\n", rec.Header, len(rec.Residues),
		bc['A'], bc['C'], bc['G'], bc['T'], bc['N'])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch method {
	case hmmlib.MethodViterbi:
		err = runViterbi(ctx, tn, cfg, os.Stdout)
	case hmmlib.MethodBaumWelch:
		err = runBaumWelch(ctx, tn, os.Stdout)
	}
	if err != nil {
		return err
	}

	if outname != "" {
		if err := hmmlib.WriteModel(outname, tn.Model()); err != nil {
			return err
		}
		logger.Printf("Model written to %s\n", outname)
	}

	return nil
}

func runViterbi(ctx context.Context, tn *hmmlib.Trainer, cfg hmmlib.Config, w io.Writer) error {

	results, err := tn.ViterbiTraining(ctx, cfg.Iterations)
	if rerr := report.Viterbi(w, results); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return err
	}

	if scores && len(results) > 0 {
		return report.Scores(os.Stderr, tn.Trellis())
	}

	return nil
}

func runBaumWelch(ctx context.Context, tn *hmmlib.Trainer, w io.Writer) error {

	results, err := tn.BaumWelchTraining(ctx)
	if errors.Is(err, hmmlib.ErrNotConverged) {
		logger.Printf("%v\n", err)
	}
	if rerr := report.EM(w, results); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return err
	}

	path, err := tn.Path()
	if err != nil {
		return err
	}
	logger.Printf("Final log-likelihood: %f\n", results[len(results)-1].LogLikelihood)

	return report.PathStates(w, path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

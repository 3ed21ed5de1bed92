// Package report writes training results as nested <result> elements,
// one per quantity, with the values as comma separated name=value
// pairs.
package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kshedden/seqhmm/hmmlib"
	"github.com/pkg/errors"
)

// Result is a single element of a results document.
type Result struct {
	XMLName   xml.Name `xml:"result"`
	Type      string   `xml:"type,attr"`
	Iteration int      `xml:"iteration,attr,omitempty"`
	State     string   `xml:"state,attr,omitempty"`
	Text      string   `xml:",chardata"`
	Children  []Result `xml:"result"`
}

// Find returns the first descendant of r, or r itself, with the given
// type.
func (r *Result) Find(typ string) *Result {

	if r.Type == typ {
		return r
	}
	for i := range r.Children {
		if c := r.Children[i].Find(typ); c != nil {
			return c
		}
	}

	return nil
}

func encode(w io.Writer, results ...Result) error {

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "report")
		}
	}
	if err := enc.Flush(); err != nil {
		return errors.Wrap(err, "report")
	}

	_, err := io.WriteString(w, "\n")
	return err
}

func ftoa(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

func pairs(names []string, vals []string) string {
	var b strings.Builder
	for i := range names {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(names[i] + "=" + vals[i])
	}
	return b.String()
}

func stateNames(n int) []string {
	s := make([]string, n)
	for i := range s {
		s[i] = strconv.Itoa(i)
	}
	return s
}

func floatStrings(x []float64) []string {
	s := make([]string, len(x))
	for i, v := range x {
		s[i] = ftoa(v)
	}
	return s
}

func intStrings(x []int) []string {
	s := make([]string, len(x))
	for i, v := range x {
		s[i] = strconv.Itoa(v)
	}
	return s
}

// ModelResults returns the elements describing the probabilities of m.
func ModelResults(m *hmmlib.Model) []Result {

	nstate := m.NState()
	states := stateNames(nstate)
	symbols := m.Alphabet().Symbols()
	trans := m.Trans()
	emit := m.Emit()
	nsym := len(symbols)

	res := []Result{
		{Type: "states", Text: strings.Join(states, ",")},
		{Type: "initial_state_probabilities", Text: pairs(states, floatStrings(m.Init()))},
	}
	for st := 0; st < nstate; st++ {
		res = append(res, Result{
			Type:  "transition_probabilities",
			State: states[st],
			Text:  pairs(states, floatStrings(trans[st*nstate:(st+1)*nstate])),
		})
	}
	for st := 0; st < nstate; st++ {
		res = append(res, Result{
			Type:  "emission_probabilities",
			State: states[st],
			Text:  pairs(symbols, floatStrings(emit[st*nsym:(st+1)*nsym])),
		})
	}

	return res
}

// Model writes the probabilities of m.
func Model(w io.Writer, m *hmmlib.Model) error {
	return encode(w, Result{Type: "model", Children: ModelResults(m)})
}

// ViterbiIteration returns the element for one Viterbi training
// iteration.  The segments are listed only if withSegments is true.
func ViterbiIteration(res *hmmlib.ViterbiResult, withSegments bool) Result {

	vs := res.Stats
	states := stateNames(vs.NState)

	var tnames []string
	var tcounts []int
	for st1 := 0; st1 < vs.NState; st1++ {
		for st2 := 0; st2 < vs.NState; st2++ {
			tnames = append(tnames, states[st1]+states[st2])
			tcounts = append(tcounts, vs.TransCount(st1, st2))
		}
	}

	r := Result{
		Type:      "viterbi_iteration",
		Iteration: res.Iteration,
		Children: []Result{
			{Type: "path_weight", Text: ftoa(res.PathWeight)},
			{Type: "state_histogram", Text: pairs(states, intStrings(vs.StateCounts))},
			{Type: "segment_histogram", Text: pairs(states, intStrings(vs.SegmentCounts))},
			{Type: "transition_counts", Text: pairs(tnames, intStrings(tcounts))},
			{Type: "model", Children: ModelResults(res.Model)},
		},
	}

	if withSegments {
		for st, segs := range vs.Segments {
			spans := make([]string, len(segs))
			for i, sg := range segs {
				spans[i] = fmt.Sprintf("%d-%d", sg.Start, sg.End)
			}
			r.Children = append(r.Children, Result{
				Type:  "segments",
				State: states[st],
				Text:  strings.Join(spans, ","),
			})
		}
	}

	return r
}

// Viterbi writes one element per Viterbi training iteration.  The
// segments of the decoded path are listed for the last iteration only.
func Viterbi(w io.Writer, results []*hmmlib.ViterbiResult) error {

	rs := make([]Result, len(results))
	for i, res := range results {
		rs[i] = ViterbiIteration(res, i == len(results)-1)
	}

	return encode(w, rs...)
}

// EMResult returns the element summarizing a Baum-Welch run: the
// number of iterations, the log-likelihood trace and the final model.
func EMResult(results []*hmmlib.EMResult) Result {

	r := Result{Type: "EM_result"}
	if len(results) == 0 {
		return r
	}
	last := results[len(results)-1]

	trace := make([]string, len(results))
	for i, res := range results {
		trace[i] = ftoa(res.LogLikelihood)
	}

	r.Children = []Result{
		{Type: "iterations", Text: strconv.Itoa(last.Iteration)},
		{Type: "log_likelihood", Text: ftoa(last.LogLikelihood)},
		{Type: "log_likelihood_trace", Text: strings.Join(trace, ",")},
		{Type: "model", Children: ModelResults(last.Model)},
	}

	return r
}

// EM writes the summary of a Baum-Welch run.
func EM(w io.Writer, results []*hmmlib.EMResult) error {
	return encode(w, EMResult(results))
}

// PathStates writes the decoded states.  With fewer than ten states
// they are written as one digit per position, otherwise comma
// separated.
func PathStates(w io.Writer, path *hmmlib.Path) error {

	sep := ""
	for _, st := range path.States {
		if st > 9 {
			sep = ","
			break
		}
	}

	return encode(w, Result{
		Type: "path_states",
		Text: strings.Join(intStrings(path.States), sep),
	})
}

// Scores writes the Viterbi weight of every node, position by
// position, as plain text.
func Scores(w io.Writer, tr *hmmlib.Trellis) error {

	for t := 0; t <= tr.Len(); t++ {
		if _, err := fmt.Fprintf(w, "Position: %d\n", t); err != nil {
			return err
		}
		for _, nd := range tr.Nodes(t) {
			if _, err := fmt.Fprintf(w, "  Node: (%d, %v)\n", nd.State, nd.Weight); err != nil {
				return err
			}
		}
	}

	return nil
}

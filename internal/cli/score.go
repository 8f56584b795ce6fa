package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"rollguard/internal/scoring"
	"rollguard/pkg/platform/sentinel"
)

// ScoreView is the printed form of one pairwise comparison.
type ScoreView struct {
	RecordA     string             `json:"record_a"`
	RecordB     string             `json:"record_b"`
	Combined    float64            `json:"combined"`
	Tier        string             `json:"tier"`
	Profile     string             `json:"profile"`
	Signals     map[string]float64 `json:"signals"`
	Components  map[string]float64 `json:"components"`
	Flags       []string           `json:"flags"`
	Diagnostics DiagnosticsView    `json:"diagnostics"`
}

// DiagnosticsView carries measurements shown beside the score. Nil fields
// could not be computed for the pair.
type DiagnosticsView struct {
	Levenshtein        *float64 `json:"levenshtein,omitempty"`
	EditDistance       *int     `json:"edit_distance,omitempty"`
	AddressConfidenceA float64  `json:"address_confidence_a"`
	AddressConfidenceB float64  `json:"address_confidence_b"`
	FaceL2Distance     *float64 `json:"face_l2_distance,omitempty"`
	SameFaceTemplate   bool     `json:"same_face_template"`
}

func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		roll  string
		match = matchOptions{
			Algorithms: "all",
			Profile:    rootOpts.Config.Detection.Profile,
			Threshold:  rootOpts.Config.Detection.Threshold,
		}
	)

	cmd := &cobra.Command{
		Use:   "score <id-a> <id-b>",
		Short: "Score two records of a roll file against each other",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, rootOpts, roll, match, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&roll, "roll", "", "YAML or JSON roll file")
	cmd.Flags().StringVar(&match.Algorithms, "algorithms", match.Algorithms, "comma separated algorithms or aliases")
	cmd.Flags().StringVar(&match.Profile, "profile", match.Profile, "weight profile (rule_based|ml)")
	cmd.Flags().Float64Var(&match.Threshold, "threshold", match.Threshold, "medium tier floor used for the reported tier")

	return cmd
}

func runScore(cmd *cobra.Command, opts *RootOptions, roll string, match matchOptions, idA, idB string) error {
	records, err := loadRoll(roll)
	if err != nil {
		return err
	}
	algs, profile, err := match.resolve()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := records.Get(ctx, idA)
	if err != nil {
		return missingRecord(idA, err)
	}
	b, err := records.Get(ctx, idB)
	if err != nil {
		return missingRecord(idB, err)
	}

	subA, subB := scoring.Prepare(*a), scoring.Prepare(*b)
	score := scoring.New().ScoreSubjects(subA, subB, algs, profile).WithThreshold(match.Threshold)
	view := newScoreView(idA, idB, score, scoring.Explain(subA, subB))
	return opts.formatter(cmd).Success(view, func(w io.Writer) {
		fmt.Fprintf(w, "%s vs %s: %.4f (%s, %s)\n", view.RecordA, view.RecordB, view.Combined, view.Tier, view.Profile)
		for _, k := range sortedKeys(view.Signals) {
			fmt.Fprintf(w, "  signal    %-12s %.4f\n", k, view.Signals[k])
		}
		for _, k := range sortedKeys(view.Components) {
			fmt.Fprintf(w, "  component %-12s %.4f\n", k, view.Components[k])
		}
		for _, f := range view.Flags {
			fmt.Fprintf(w, "  flag      %s\n", f)
		}
		view.Diagnostics.render(w)
	})
}

func missingRecord(id string, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("record %q not in roll", id))
	}
	return WrapExitError(ExitFailure, "cannot read record", err)
}

func (d DiagnosticsView) render(w io.Writer) {
	if d.Levenshtein != nil {
		fmt.Fprintf(w, "  detail    %-12s %.4f (%d edits)\n", "levenshtein", *d.Levenshtein, *d.EditDistance)
	}
	fmt.Fprintf(w, "  detail    %-12s %.2f / %.2f\n", "address", d.AddressConfidenceA, d.AddressConfidenceB)
	if d.FaceL2Distance != nil {
		fmt.Fprintf(w, "  detail    %-12s %.4f\n", "face_l2", *d.FaceL2Distance)
	}
	if d.SameFaceTemplate {
		fmt.Fprintf(w, "  detail    same face template\n")
	}
}

func newDiagnosticsView(d scoring.Diagnostics) DiagnosticsView {
	v := DiagnosticsView{
		AddressConfidenceA: d.AddressConfidenceA,
		AddressConfidenceB: d.AddressConfidenceB,
		SameFaceTemplate:   d.SameFaceTemplate,
	}
	if d.HasNames {
		v.Levenshtein, v.EditDistance = &d.NameEdit, &d.NameEditDistance
	}
	if d.HasFaceDistance {
		v.FaceL2Distance = &d.FaceDistance
	}
	return v
}

func newScoreView(idA, idB string, s scoring.SimilarityScore, d scoring.Diagnostics) ScoreView {
	v := ScoreView{
		RecordA:     idA,
		RecordB:     idB,
		Combined:    s.Combined,
		Tier:        string(s.Tier),
		Profile:     string(s.Profile),
		Signals:     make(map[string]float64, len(s.Signals)),
		Components:  make(map[string]float64, len(s.Components)),
		Flags:       make([]string, 0, len(s.Flags)),
		Diagnostics: newDiagnosticsView(d),
	}
	for k, x := range s.Signals {
		v.Signals[string(k)] = x
	}
	for k, x := range s.Components {
		v.Components[string(k)] = x
	}
	for _, f := range s.Flags {
		v.Flags = append(v.Flags, string(f))
	}
	return v
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

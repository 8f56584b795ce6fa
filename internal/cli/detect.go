package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"rollguard/internal/dedupe/models"
	"rollguard/internal/dedupe/service"
	flagstore "rollguard/internal/dedupe/store"
	dErrors "rollguard/pkg/domain-errors"
)

// DetectView is the printed form of a detection run.
type DetectView struct {
	RunID       string     `json:"run_id"`
	Scope       string     `json:"scope"`
	Threshold   float64    `json:"threshold"`
	Algorithms  []string   `json:"algorithms"`
	DryRun      bool       `json:"dry_run"`
	Records     int        `json:"records"`
	Skipped     int        `json:"skipped"`
	Comparisons int64      `json:"comparisons"`
	Cancelled   bool       `json:"cancelled"`
	Flags       []FlagView `json:"flags"`
}

type FlagView struct {
	RecordA  string   `json:"record_a"`
	RecordB  string   `json:"record_b"`
	Combined float64  `json:"combined"`
	Tier     string   `json:"tier"`
	Flags    []string `json:"flags"`
}

type detectOptions struct {
	Roll    string
	Scope   string
	Blocker string
	DryRun  bool
	Workers int
	match   matchOptions
}

func NewDetectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &detectOptions{
		Scope:   "all",
		Blocker: "all",
		Workers: rootOpts.Config.Detection.Workers,
		match: matchOptions{
			Algorithms: "all",
			Profile:    rootOpts.Config.Detection.Profile,
			Threshold:  rootOpts.Config.Detection.Threshold,
		},
	}

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Find likely duplicate registrations in a roll file",
		Long: `Compare every pair of active records in the scope and report the pairs
scoring at or above the threshold, highest first. Interrupting the run prints
the pairs found so far and exits with status 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Roll, "roll", "", "YAML or JSON roll file")
	cmd.Flags().StringVar(&opts.Scope, "scope", opts.Scope, "all, district:<name> or state:<name>")
	cmd.Flags().Float64Var(&opts.match.Threshold, "threshold", opts.match.Threshold, "minimum combined score to flag")
	cmd.Flags().StringVar(&opts.match.Algorithms, "algorithms", opts.match.Algorithms, "comma separated algorithms or aliases")
	cmd.Flags().StringVar(&opts.match.Profile, "profile", opts.match.Profile, "weight profile (rule_based|ml)")
	cmd.Flags().StringVar(&opts.Blocker, "blocker", opts.Blocker, "candidate pairs: all, phonetic, address or face")
	cmd.Flags().IntVar(&opts.Workers, "workers", opts.Workers, "parallel scoring workers")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "score without recording flags")

	return cmd
}

func runDetect(cmd *cobra.Command, rootOpts *RootOptions, opts *detectOptions) error {
	records, err := loadRoll(opts.Roll)
	if err != nil {
		return err
	}
	scope, err := parseScope(opts.Scope)
	if err != nil {
		return err
	}
	algs, profile, err := opts.match.resolve()
	if err != nil {
		return err
	}
	blocker, err := parseBlocker(opts.Blocker)
	if err != nil {
		return err
	}

	svc, err := service.New(records, flagstore.NewInMemory(),
		service.WithLogger(rootOpts.logger(cmd)),
		service.WithWorkers(opts.Workers),
		service.WithBlocker(blocker),
		service.WithAppealWindow(rootOpts.Config.Detection.AppealWindow),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot start detection", err)
	}

	result, err := svc.Detect(cmd.Context(), models.DetectRequest{
		Scope:      scope,
		Threshold:  opts.match.Threshold,
		Algorithms: algs,
		Profile:    profile,
		DryRun:     opts.DryRun,
	})
	out := rootOpts.formatter(cmd)
	if result == nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			return WrapExitError(ExitCommandError, "invalid detection request", err)
		}
		return err
	}
	view := newDetectView(result)
	if err != nil {
		return out.Failure(view, err, view.render)
	}
	return out.Success(view, view.render)
}

func parseBlocker(name string) (service.Blocker, error) {
	switch name {
	case "", "all":
		return service.AllPairs{}, nil
	case "phonetic":
		return service.PhoneticBlocker{}, nil
	case "address":
		return service.AddressBlocker{}, nil
	case "face":
		return service.FaceBlocker{}, nil
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown blocker %q", name))
	}
}

func newDetectView(r *models.DetectResult) DetectView {
	v := DetectView{
		RunID:       r.RunID,
		Scope:       r.Scope,
		Threshold:   r.Threshold,
		DryRun:      r.DryRun,
		Records:     r.Records,
		Skipped:     r.Skipped,
		Comparisons: r.Comparisons,
		Cancelled:   r.Cancelled,
		Algorithms:  make([]string, 0, len(r.Algorithms)),
		Flags:       make([]FlagView, 0, len(r.Flags)),
	}
	for _, a := range r.Algorithms {
		v.Algorithms = append(v.Algorithms, string(a))
	}
	for _, f := range r.Flags {
		fv := FlagView{
			RecordA:  f.RecordA,
			RecordB:  f.RecordB,
			Combined: f.Score.Combined,
			Tier:     string(f.Score.Tier),
			Flags:    make([]string, 0, len(f.Score.Flags)),
		}
		for _, fl := range f.Score.Flags {
			fv.Flags = append(fv.Flags, string(fl))
		}
		v.Flags = append(v.Flags, fv)
	}
	return v
}

func (v DetectView) render(w io.Writer) {
	state := "completed"
	if v.Cancelled {
		state = "interrupted"
	}
	fmt.Fprintf(w, "run %s %s: scope=%s records=%d skipped=%d comparisons=%d flagged=%d\n",
		v.RunID, state, v.Scope, v.Records, v.Skipped, v.Comparisons, len(v.Flags))
	for _, f := range v.Flags {
		fmt.Fprintf(w, "  %s ~ %s  %.4f  %s  %v\n", f.RecordA, f.RecordB, f.Combined, f.Tier, f.Flags)
	}
}

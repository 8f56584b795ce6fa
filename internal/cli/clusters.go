package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"rollguard/internal/clusters/models"
	"rollguard/internal/clusters/service"
	clusterstore "rollguard/internal/clusters/store"
	dErrors "rollguard/pkg/domain-errors"
)

// ClusterView is the printed form of one flagged address.
type ClusterView struct {
	Address      string   `json:"address"`
	AddressHash  string   `json:"address_hash"`
	VoterCount   int      `json:"voter_count"`
	RiskScore    float64  `json:"risk_score"`
	RiskLevel    string   `json:"risk_level"`
	Reasons      []string `json:"reasons"`
	ExampleNames []string `json:"example_names"`
}

type ClustersView struct {
	Records  int           `json:"records"`
	Groups   int           `json:"groups"`
	Clusters []ClusterView `json:"clusters"`
}

func NewClustersCommand(rootOpts *RootOptions) *cobra.Command {
	var roll string
	t := models.Thresholds{
		Low:    rootOpts.Config.Clusters.LowCount,
		Medium: rootOpts.Config.Clusters.MediumCount,
		High:   rootOpts.Config.Clusters.HighCount,
	}

	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Report addresses with suspicious voter concentrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClusters(cmd, rootOpts, roll, t)
		},
	}

	cmd.Flags().StringVar(&roll, "roll", "", "YAML or JSON roll file")
	cmd.Flags().IntVar(&t.Low, "low", t.Low, "voters at one address that open a low risk cluster")
	cmd.Flags().IntVar(&t.Medium, "medium", t.Medium, "voters for medium risk")
	cmd.Flags().IntVar(&t.High, "high", t.High, "voters for high risk")

	return cmd
}

func runClusters(cmd *cobra.Command, rootOpts *RootOptions, roll string, t models.Thresholds) error {
	records, err := loadRoll(roll)
	if err != nil {
		return err
	}
	svc, err := service.New(records, clusterstore.NewInMemory(), service.WithLogger(rootOpts.logger(cmd)))
	if err != nil {
		return WrapExitError(ExitFailure, "cannot start cluster detection", err)
	}
	result, err := svc.Detect(cmd.Context(), t)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			return WrapExitError(ExitCommandError, "invalid thresholds", err)
		}
		return err
	}

	view := ClustersView{
		Records:  result.Records,
		Groups:   result.Groups,
		Clusters: make([]ClusterView, 0, len(result.Flags)),
	}
	for _, f := range result.Flags {
		view.Clusters = append(view.Clusters, ClusterView{
			Address:      f.CanonicalAddress,
			AddressHash:  f.AddressHash,
			VoterCount:   f.VoterCount,
			RiskScore:    f.RiskScore,
			RiskLevel:    string(f.RiskLevel),
			Reasons:      f.Reasons,
			ExampleNames: f.ExampleNames,
		})
	}
	return rootOpts.formatter(cmd).Success(view, func(w io.Writer) {
		fmt.Fprintf(w, "%d records, %d clusters\n", view.Records, len(view.Clusters))
		for _, c := range view.Clusters {
			fmt.Fprintf(w, "  [%s %.2f] %d voters at %s\n", c.RiskLevel, c.RiskScore, c.VoterCount, c.Address)
			fmt.Fprintf(w, "    reasons: %s\n", strings.Join(c.Reasons, ", "))
			fmt.Fprintf(w, "    e.g.:    %s\n", strings.Join(c.ExampleNames, ", "))
		}
	})
}

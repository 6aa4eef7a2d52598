package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridci/gridci/pkg/config"
	"github.com/gridci/gridci/pkg/matrix"
)

func newValidateCommand() *cobra.Command {
	var (
		maxJobs   int
		policyDir string
	)

	cmd := &cobra.Command{
		Use:   "validate <matrix-file>",
		Short: "Validate a matrix declaration without running it",
		Long: `Load and validate a matrix declaration, evaluate the admission policies,
and report the expansion that a run would execute: total jobs, exclusions,
and allow-failure marks.

A declaration that validates cleanly runs without further configuration
errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}

			loader := config.NewLoader(logger)
			cfg, err := loader.Load(args[0])
			if err != nil {
				return err
			}

			jobs, err := matrix.Expand(cfg.ToAxes())
			if err != nil {
				return err
			}
			selections := matrix.ApplyRules(jobs, cfg.ExcludeRules(), cfg.AllowFailureRules())

			if err := admitMatrix(cmd.Context(), logger, cfg, jobs, selections, pipelineOptions{
				MaxJobs:   maxJobs,
				PolicyDir: policyDir,
			}); err != nil {
				return err
			}

			allowed := 0
			for _, sel := range selections {
				if sel.AllowFailure {
					allowed++
				}
			}

			fmt.Printf("%s: valid\n", args[0])
			fmt.Printf("  matrix:        %s\n", cfg.Name)
			fmt.Printf("  axes:          %d\n", len(cfg.Axes))
			fmt.Printf("  jobs:          %d\n", len(jobs))
			fmt.Printf("  selected:      %d\n", len(selections))
			fmt.Printf("  excluded:      %d\n", len(jobs)-len(selections))
			fmt.Printf("  allow-failure: %d\n", allowed)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "job budget enforced by policy (0 = unlimited)")
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory of additional .rego admission policies")

	return cmd
}

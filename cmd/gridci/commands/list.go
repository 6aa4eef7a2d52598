package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gridci/gridci/pkg/config"
	"github.com/gridci/gridci/pkg/matrix"
)

func newListCommand() *cobra.Command {
	var showExcluded bool

	cmd := &cobra.Command{
		Use:   "list <matrix-file>",
		Short: "List the jobs a matrix expands to",
		Long: `Expand the matrix declaration and print every job in execution order,
with its exclusion and allow-failure disposition.`,
		Example: `  # Show the jobs a run would execute
  gridci list matrix.yaml

  # Include combinations removed by exclusion rules
  gridci list matrix.yaml --excluded`,
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

			selected := make(map[string]matrix.Selection, len(selections))
			for _, sel := range selections {
				selected[sel.Job.Label()] = sel
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tDISPOSITION")
			for _, job := range jobs {
				sel, ok := selected[job.Label()]
				switch {
				case !ok && !showExcluded:
					continue
				case !ok:
					fmt.Fprintf(w, "%s\texcluded\n", job.Label())
				case sel.AllowFailure:
					fmt.Fprintf(w, "%s\tallow-failure\n", job.Label())
				default:
					fmt.Fprintf(w, "%s\trun\n", job.Label())
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&showExcluded, "excluded", false, "also list excluded combinations")

	return cmd
}

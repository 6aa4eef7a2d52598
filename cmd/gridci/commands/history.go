package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridci/gridci/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past matrix runs",
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tMATRIX\tVERDICT\tPASSED\tFAILED\tSTARTED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					run.ID, run.Matrix, run.Verdict,
					run.Passed, run.Failed+run.Errored+run.Aborted,
					run.StartedAt.Local().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its job results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			jobs, err := store.GetJobResults(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Run  *stores.RunRecord   `json:"run"`
					Jobs []*stores.JobRecord `json:"jobs"`
				}{run, jobs})
			}

			fmt.Printf("run:     %s\n", run.ID)
			fmt.Printf("matrix:  %s\n", run.Matrix)
			fmt.Printf("verdict: %s\n", run.Verdict)
			fmt.Printf("started: %s\n\n", run.StartedAt.Local().Format(time.RFC3339))

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tSTATUS\tEXIT\tDURATION")
			for _, job := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					job.Label, job.Status, job.ExitCode,
					(time.Duration(job.Duration) * time.Millisecond).String())
			}
			return w.Flush()
		},
	}

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.PruneBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d runs\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete runs older than this duration")

	return cmd
}

func openStore(cmd *cobra.Command) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(cmd.Context()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

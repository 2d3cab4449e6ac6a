package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/fragmesh"
	"github.com/hupe1980/fragmesh/code/yaegi"
	"github.com/hupe1980/fragmesh/evaluation"
	"github.com/hupe1980/fragmesh/runner"
)

func newBatchCmd(ro *rootOptions) *cobra.Command {
	var (
		concurrency int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Solve a YAML list of jobs and check their expectations",
		Long: `Each job names a query and optionally an id and an expectation:

  - id: tfim-4
    query: Build a VQE solution for a 4 qubit TFIM chain
    expect:
      stop_reasons: [complete]
      types: [vqe_execution]
      program_output: ["VQE energy:"]

The command fails when any job fails or misses its expectation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var jobs []runner.Job
			if err := yaml.Unmarshal(data, &jobs); err != nil {
				return fmt.Errorf("batch: parse %s: %w", args[0], err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			m, err := fragmesh.New(func(o *fragmesh.Options) { o.Config = cfg })
			if err != nil {
				return err
			}
			defer m.Close()

			r := runner.New(m, func(o *runner.Options) {
				o.MaxConcurrentRuns = concurrency
				o.Evaluator = evaluation.New(yaegi.New(), func(eo *evaluation.Options) { eo.Timeout = cfg.BlockTimeout })
			})
			outcomes, err := r.Run(ctx, jobs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcomes); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "JOB\tSTOP\tSTEPS\tCOMPLETION\tRESULT")
				for _, o := range outcomes {
					fmt.Fprintln(tw, row(o))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			failed := 0
			for _, o := range outcomes {
				if !o.Passed() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("batch: %d of %d jobs failed", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Sessions solved at once")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the outcomes as JSON")
	return cmd
}

func row(o runner.Outcome) string {
	if o.Result == nil {
		return fmt.Sprintf("%s\t-\t-\t-\terror: %v", o.Job.ID, o.Err)
	}
	verdict := "ok"
	switch {
	case o.Err != nil:
		verdict = "error: " + o.Err.Error()
	case o.Report != nil && !o.Report.Passed:
		verdict = "failed:"
		for _, c := range o.Report.Failed() {
			verdict += " " + c.Name
		}
	}
	return fmt.Sprintf("%s\t%s\t%d\t%.0f%%\t%s",
		o.Result.SessionID, o.Result.StopReason, len(o.Result.Steps), o.Result.Status.CompletionPercentage, verdict)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/fragmesh"
	"github.com/hupe1980/fragmesh/solver"
)

func newSolveCmd(ro *rootOptions) *cobra.Command {
	var (
		sessionID   string
		provider    string
		modelName   string
		maxSteps    int
		timeBudget  time.Duration
		asJSON      bool
		programOnly bool
	)
	cmd := &cobra.Command{
		Use:   "solve QUERY...",
		Short: "Run a solving session for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			if provider != "" {
				cfg.Model.Provider = provider
			}
			if modelName != "" {
				cfg.Model.Name = modelName
			}
			if maxSteps > 0 {
				cfg.MaxSteps = maxSteps
			}
			if timeBudget > 0 {
				cfg.TimeBudget = timeBudget
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			m, err := fragmesh.New(func(o *fragmesh.Options) { o.Config = cfg })
			if err != nil {
				return err
			}
			defer m.Close()

			res, err := m.Solve(ctx, strings.Join(args, " "), func(o *solver.Options) {
				if sessionID != "" {
					o.SessionID = sessionID
				}
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			case programOnly:
				fmt.Fprint(out, res.Program)
				return nil
			}

			fmt.Fprintf(out, "Session:    %s\n", res.SessionID)
			fmt.Fprintf(out, "Stopped:    %s after %d steps (%s)\n", res.StopReason, len(res.Steps), res.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "Completion: %.0f%%\n", res.Status.CompletionPercentage)
			for _, s := range res.Steps {
				status := "ok"
				if s.Error != "" {
					status = s.Error
				}
				fmt.Fprintf(out, "  %d. %s: %s\n", s.Index, s.Tool, status)
			}
			if len(res.Artifacts) > 0 {
				fmt.Fprintf(out, "Artifacts:  %s (%s)\n", strings.Join(res.Artifacts, ", "), cfg.CacheDir)
			}
			if res.FinalOutput != "" {
				fmt.Fprintf(out, "\n%s\n", res.FinalOutput)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&sessionID, "session", "", "Session id (random when empty)")
	f.StringVar(&provider, "provider", "", "Model provider: openai, anthropic, mock")
	f.StringVar(&modelName, "model", "", "Model name")
	f.IntVar(&maxSteps, "max-steps", 0, "Maximum planner steps")
	f.DurationVar(&timeBudget, "time-budget", 0, "Wall-clock budget for the loop")
	f.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	f.BoolVar(&programOnly, "program", false, "Print only the assembled program")
	return cmd
}

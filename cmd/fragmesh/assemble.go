package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/fragmesh/artifact"
	"github.com/hupe1980/fragmesh/assembler"
	"github.com/hupe1980/fragmesh/code"
	"github.com/hupe1980/fragmesh/code/yaegi"
	"github.com/hupe1980/fragmesh/core"
)

func newAssembleCmd(ro *rootOptions) *cobra.Command {
	var (
		output     string
		name       string
		run        bool
		legacyMode bool
	)
	cmd := &cobra.Command{
		Use:   "assemble FILE...",
		Short: "Assemble exported fragment files into one program",
		Long: `Reads fragment files as exported by a session (<type>_<tool>.go with the
descriptive header), orders them by the dependency graph and prints the
assembled program. With --legacy every file is a raw code block taken in
the given order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			_, graph, err := loadSchema(cfg)
			if err != nil {
				return err
			}

			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			asm := assembler.New(graph, func(o *assembler.Options) { o.Name = name })

			var result *assembler.Assembly
			if legacyMode {
				blocks := make([]string, 0, len(args))
				for _, path := range args {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					blocks = append(blocks, string(data))
				}
				result, err = asm.AssembleLegacy(blocks)
			} else {
				fragments := make([]*core.Fragment, 0, len(args))
				for _, path := range args {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					f, err := artifact.ParseFragmentFile(string(data))
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					fragments = append(fragments, f)
				}
				result, err = asm.Assemble(fragments)
			}
			if err != nil {
				return err
			}
			if result.Anomaly {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: dependency anomaly, fragments kept in input order")
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(result.Source), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d fragments)\n", output, result.FragmentCount)
			} else if !run {
				fmt.Fprint(cmd.OutOrStdout(), result.Source)
			}

			if run {
				ctx := cmd.Context()
				ctx, cancel := withTimeout(ctx, cfg.BlockTimeout)
				defer cancel()
				resp, err := yaegi.New().Run(ctx, code.Request{Source: result.Source})
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), resp.Stdout)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "Write the program to a file instead of stdout")
	f.StringVar(&name, "name", "", "Solution name (defaults to the first file name)")
	f.BoolVar(&run, "run", false, "Run the assembled program with the interpreter")
	f.BoolVar(&legacyMode, "legacy", false, "Treat the files as raw code blocks")
	return cmd
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/fragmesh"
	"github.com/hupe1980/fragmesh/artifact"
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/memory"
	"github.com/hupe1980/fragmesh/model"
)

func newGraphCmd(ro *rootOptions) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph, the tool mapping and the workflow check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			m, err := fragmesh.New(func(o *fragmesh.Options) {
				o.Config = cfg
				o.Model = model.NewMockModel("offline", "mock")
				o.Store = artifact.NewInMemoryStore()
				o.Logger = logging.NoOpLogger{}
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if asYAML {
				data, err := m.Schema().Marshal()
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			g := m.Graph()
			order, _ := g.TopologicalOrder(g.AllTypes())
			fmt.Fprintf(out, "Final type: %s\n", g.Final())
			fmt.Fprintf(out, "Production order: %s\n\n", joinTypes(order))

			fmt.Fprintln(out, "Dependencies:")
			for _, t := range order {
				fmt.Fprintf(out, "  - %s: [%s]\n", t, joinTypes(g.DependenciesOf(t)))
			}

			fmt.Fprintln(out, "\nTools:")
			catalog := m.Catalog()
			for _, name := range catalog.Names() {
				d, _ := catalog.Descriptor(name)
				types := m.Schema().Tools[name]
				kind := "legacy"
				if d.Capability.IsSemantic() {
					types = []core.Type{d.Capability.SemanticType}
					kind = "semantic"
				}
				fmt.Fprintf(out, "  - %s -> %s (%s)\n", name, joinTypes(types), kind)
			}

			report := catalog.ValidateWorkflow(g.AllTypes(), m.Schema().ToolType)
			if report.Valid {
				fmt.Fprintln(out, "\nWorkflow: every type has a producing tool")
			} else {
				fmt.Fprintf(out, "\nWorkflow: missing producers for %s\n", joinTypes(report.Missing))
				for _, r := range report.Recommendations {
					fmt.Fprintf(out, "  * %s\n", r)
				}
			}

			fmt.Fprintf(out, "\n%s\n", memory.NewTracker(g).Report())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the schema as YAML")
	return cmd
}

func joinTypes(ts []core.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/fragmesh/config"
	"github.com/hupe1980/fragmesh/semantic"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	cacheDir   string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "fragmesh",
		Short: "Fragment dependency and execution engine",
		Long: `fragmesh drives an oracle that picks tools, executes the Go fragments they
emit under a deadline, tracks them in a semantic dependency graph and
assembles them into one program.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&ro.configPath, "config", "c", "fragmesh.yaml", "Config file (a missing file selects the defaults)")
	pf.StringVar(&ro.cacheDir, "cache-dir", "", "Session cache directory")
	pf.StringVar(&ro.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&ro.logFormat, "log-format", "", "Log format: text, json, zap")

	cmd.AddCommand(newGraphCmd(ro), newAssembleCmd(ro), newSolveCmd(ro), newBatchCmd(ro))
	return cmd
}

// load reads the config file and applies the persistent flags.
func (ro *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(ro.configPath)
	if err != nil {
		return nil, err
	}
	if ro.cacheDir != "" {
		cfg.CacheDir = ro.cacheDir
	}
	if ro.logLevel != "" {
		cfg.Logging.Level = ro.logLevel
	}
	if ro.logFormat != "" {
		cfg.Logging.Format = ro.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func loadSchema(cfg *config.Config) (*semantic.Schema, *semantic.Graph, error) {
	schema := semantic.DefaultSchema()
	if cfg.SchemaFile != "" {
		s, err := semantic.LoadSchema(cfg.SchemaFile)
		if err != nil {
			return nil, nil, err
		}
		schema = s
	}
	graph, err := schema.Graph()
	if err != nil {
		return nil, nil, err
	}
	return schema, graph, nil
}

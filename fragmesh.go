// Package fragmesh provides a high-level façade that wires a solving session
// from a config.Config: the dependency schema and graph, the tool catalog,
// the yaegi executable unit, the legacy adapter, the engine, the planner
// over the configured oracle and the artifact store the session is exported
// to. Most applications:
//  1. Create a Mesh via New() (optionally overriding model, schema, tools or store)
//  2. Call Solve with a query, or NewSession for step-wise control
//  3. Close the Mesh to release the artifact store
//
// Each session gets its own registry and namespace; the catalog, oracle and
// store are shared.
package fragmesh

import (
	"context"
	"fmt"
	"io"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/fragmesh/artifact"
	"github.com/hupe1980/fragmesh/artifact/sqlite"
	"github.com/hupe1980/fragmesh/code/yaegi"
	"github.com/hupe1980/fragmesh/config"
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/engine"
	"github.com/hupe1980/fragmesh/legacy"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/model"
	"github.com/hupe1980/fragmesh/model/anthropic"
	"github.com/hupe1980/fragmesh/model/openai"
	"github.com/hupe1980/fragmesh/planner"
	"github.com/hupe1980/fragmesh/registry"
	"github.com/hupe1980/fragmesh/semantic"
	"github.com/hupe1980/fragmesh/session"
	"github.com/hupe1980/fragmesh/solver"
	"github.com/hupe1980/fragmesh/tool"
	"github.com/hupe1980/fragmesh/tools/tfim"
)

// Options configures the Mesh. Unset fields are derived from Config.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config
	// Model overrides the configured provider.
	Model model.Model
	// Schema overrides the configured schema file and the built-in schema.
	Schema *semantic.Schema
	// RegisterTools fills the catalog. Defaults to the TFIM tools plus the
	// assembler.
	RegisterTools func(c *tool.Catalog, graph *semantic.Graph) error
	// Store overrides the configured artifact backend.
	Store core.ArtifactStore
	// Callbacks are attached to every session engine.
	Callbacks *engine.CallbackManager
	// Logger defaults to the configured logger.
	Logger logging.Logger
}

// Mesh holds everything shared between sessions.
type Mesh struct {
	cfg       *config.Config
	schema    *semantic.Schema
	graph     *semantic.Graph
	catalog   *tool.Catalog
	model     model.Model
	store     core.ArtifactStore
	closer    io.Closer
	callbacks *engine.CallbackManager
	logger    logging.Logger
}

// New wires a Mesh. It fails on an invalid schema, an unknown enabled tool
// or an artifact backend that cannot be opened.
func New(optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	logger := opts.Logger
	if logger == nil {
		l, err := NewLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	schema := opts.Schema
	if schema == nil {
		schema = semantic.DefaultSchema()
		if cfg.SchemaFile != "" {
			s, err := semantic.LoadSchema(cfg.SchemaFile)
			if err != nil {
				return nil, fmt.Errorf("fragmesh: %w", err)
			}
			schema = s
		}
	}
	graph, err := schema.Graph()
	if err != nil {
		return nil, fmt.Errorf("fragmesh: %w", err)
	}

	register := opts.RegisterTools
	if register == nil {
		register = func(c *tool.Catalog, g *semantic.Graph) error {
			return tfim.Register(c, g, func(o *tfim.Options) { o.Logger = logger })
		}
	}
	catalog := tool.NewCatalog()
	if err := register(catalog, graph); err != nil {
		return nil, fmt.Errorf("fragmesh: register tools: %w", err)
	}
	if len(cfg.EnabledTools) > 0 {
		if catalog, err = catalog.Subset(cfg.EnabledTools); err != nil {
			return nil, fmt.Errorf("fragmesh: enabled tools: %w", err)
		}
	}

	m := opts.Model
	if m == nil {
		if m, err = NewModel(cfg.Model); err != nil {
			return nil, err
		}
	}

	store, closer := opts.Store, io.Closer(nil)
	if store == nil {
		if store, closer, err = NewStore(cfg); err != nil {
			return nil, err
		}
	}

	logger.Info("fragmesh.ready",
		"model", m.Info().Name,
		"provider", m.Info().Provider,
		"tools", len(catalog.Names()),
		"final_type", string(graph.Final()),
		"backend", cfg.Artifacts.Backend,
	)
	return &Mesh{
		cfg:       cfg,
		schema:    schema,
		graph:     graph,
		catalog:   catalog,
		model:     m,
		store:     store,
		closer:    closer,
		callbacks: opts.Callbacks,
		logger:    logger,
	}, nil
}

// Config returns the effective configuration.
func (m *Mesh) Config() *config.Config { return m.cfg }

// Schema returns the dependency schema.
func (m *Mesh) Schema() *semantic.Schema { return m.schema }

// Graph returns the dependency graph.
func (m *Mesh) Graph() *semantic.Graph { return m.graph }

// Catalog returns the enabled tools.
func (m *Mesh) Catalog() *tool.Catalog { return m.catalog }

// Store returns the artifact store sessions are exported to.
func (m *Mesh) Store() core.ArtifactStore { return m.store }

// Session is one solving session with its private registry and namespace.
type Session struct {
	*solver.Solver
	Registry  *registry.Registry
	Namespace *session.Namespace
	Engine    *engine.Engine
}

// NewSession builds a fresh session. vars seed the namespace.
func (m *Mesh) NewSession(vars map[string]any, optFns ...func(o *solver.Options)) (*Session, error) {
	if err := os.MkdirAll(m.cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("fragmesh: cache dir: %w", err)
	}
	reg := registry.New(m.graph)
	ns := session.NewNamespace(vars)
	e := engine.New(reg, ns, m.catalog, yaegi.New(), legacy.New(m.schema, m.graph), func(o *engine.Options) {
		o.BlockTimeout = m.cfg.BlockTimeout
		o.Model = m.model
		o.OutputDir = m.cfg.CacheDir
		o.Callbacks = m.callbacks
		o.Logger = m.logger
	})
	p := planner.New(m.model, m.catalog, m.schema, m.graph, func(o *planner.Options) {
		o.MaxModelCalls = m.cfg.MaxModelCalls
		o.Logger = m.logger
	})
	s := solver.New(p, e, append([]func(o *solver.Options){func(o *solver.Options) {
		o.MaxSteps = m.cfg.MaxSteps
		o.TimeBudget = m.cfg.TimeBudget
		o.OutputTypes = m.cfg.OutputTypes
		o.Store = m.store
		o.Logger = m.logger
	}}, optFns...)...)
	return &Session{Solver: s, Registry: reg, Namespace: ns, Engine: e}, nil
}

// Solve runs query in a fresh session.
func (m *Mesh) Solve(ctx context.Context, query string, optFns ...func(o *solver.Options)) (*solver.Result, error) {
	s, err := m.NewSession(nil, optFns...)
	if err != nil {
		return nil, err
	}
	return s.Solve(ctx, query)
}

// Close releases the artifact store when the Mesh opened it.
func (m *Mesh) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

// NewModel builds the oracle selected by cfg.
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.BaseURL = cfg.BaseURL
			o.Seed = cfg.Seed
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.BaseURL = cfg.BaseURL
		}), nil
	case config.ProviderMock:
		name := cfg.Name
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name, config.ProviderMock), nil
	}
	return nil, fmt.Errorf("fragmesh: unknown model provider %q", cfg.Provider)
}

// NewLogger builds the process logger: slog text or json, or zap.
func NewLogger(cfg config.LoggingConfig) (logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)
	if cfg.Format == "zap" {
		l, err := logging.NewZapLogger(level)
		if err != nil {
			return nil, fmt.Errorf("fragmesh: zap logger: %w", err)
		}
		return l, nil
	}
	return logging.NewSlogLogger(level, cfg.Format, false), nil
}

// NewStore opens the configured artifact backend. The closer is nil for
// backends without resources.
func NewStore(cfg *config.Config) (core.ArtifactStore, io.Closer, error) {
	switch cfg.Artifacts.Backend {
	case config.BackendMemory:
		return artifact.NewInMemoryStore(), nil, nil
	case config.BackendFile:
		return artifact.NewFileStore(cfg.CacheDir), nil, nil
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.ArtifactPath())
		if err != nil {
			return nil, nil, fmt.Errorf("fragmesh: %w", err)
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("fragmesh: unknown artifact backend %q", cfg.Artifacts.Backend)
}

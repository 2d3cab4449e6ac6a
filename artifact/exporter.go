package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/logging"
)

// Well-known artifact ids.
const (
	ProgramID = "solution.go"
	StatusID  = "status.json"
)

// Export is what a finished session persists.
type Export struct {
	SessionID string
	Fragments []*core.Fragment
	// Program is the assembled source; empty skips it.
	Program string
	// Status is marshaled to status.json; nil skips it.
	Status any
}

// ExporterOptions configures an Exporter.
type ExporterOptions struct {
	// Concurrency bounds parallel saves. Zero or less means unbounded.
	Concurrency int
	Logger      logging.Logger
}

// Exporter writes session results into an ArtifactStore.
type Exporter struct {
	store core.ArtifactStore
	opts  ExporterOptions
}

// NewExporter creates an exporter over store.
func NewExporter(store core.ArtifactStore, optFns ...func(o *ExporterOptions)) *Exporter {
	opts := ExporterOptions{
		Concurrency: 4,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Exporter{store: store, opts: opts}
}

// Export saves one file per fragment, the program and the status snapshot
// in parallel. It returns the saved ids in lexical order.
func (e *Exporter) Export(ctx context.Context, exp Export) ([]string, error) {
	files := make(map[string][]byte, len(exp.Fragments)+2)
	for _, f := range exp.Fragments {
		files[FragmentFileName(f)] = []byte(FragmentFile(f))
	}
	if exp.Program != "" {
		files[ProgramID] = []byte(exp.Program)
	}
	if exp.Status != nil {
		data, err := json.MarshalIndent(exp.Status, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("artifact: marshal status: %w", err)
		}
		files[StatusID] = data
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.Concurrency > 0 {
		g.SetLimit(e.opts.Concurrency)
	}
	for id, data := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := e.store.Save(exp.SessionID, id, data); err != nil {
				return fmt.Errorf("artifact: export %s: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.opts.Logger.Error("artifact.export.failed", "session", exp.SessionID, "error", err)
		return nil, err
	}

	ids := make([]string, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	e.opts.Logger.Info("artifact.export.complete", "session", exp.SessionID, "artifacts", len(ids))
	return ids, nil
}

// FragmentFileName returns "<type>_<tool>.go".
func FragmentFileName(f *core.Fragment) string {
	tool := f.ToolSource
	if tool == "" {
		tool = "unknown"
	}
	return sanitize(string(f.SemanticType)) + "_" + sanitize(tool) + ".go"
}

// FragmentFile renders a fragment with its descriptive header.
func FragmentFile(f *core.Fragment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s Fragment\n", strings.ToUpper(string(f.SemanticType)))
	fmt.Fprintf(&b, "// Generated by: %s\n", f.ToolSource)
	fmt.Fprintf(&b, "// Provides: %s\n", strings.Join(f.Provides, ", "))
	deps := "none"
	if len(f.DeclaredDependencies) > 0 {
		parts := make([]string, len(f.DeclaredDependencies))
		for i, d := range f.DeclaredDependencies {
			parts[i] = string(d)
		}
		deps = strings.Join(parts, ", ")
	}
	fmt.Fprintf(&b, "// Dependencies: %s\n\n", deps)
	b.WriteString(f.Code)
	if !strings.HasSuffix(f.Code, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseFragmentFile reads a file written by FragmentFile back into a
// fragment. The semantic type is taken lower-cased from the header; the
// first provided name becomes the primary variable.
func ParseFragmentFile(data string) (*core.Fragment, error) {
	header := map[string]string{}
	rest := data
	for {
		line, tail, ok := strings.Cut(rest, "\n")
		if !strings.HasPrefix(line, "// ") {
			break
		}
		text := strings.TrimPrefix(line, "// ")
		if typ, found := strings.CutSuffix(text, " Fragment"); found && header["type"] == "" {
			header["type"] = strings.ToLower(strings.TrimSpace(typ))
		} else if k, v, found := strings.Cut(text, ":"); found {
			header[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		rest = tail
		if !ok {
			break
		}
	}
	if header["type"] == "" {
		return nil, errors.New("artifact: fragment header missing")
	}
	provides := splitList(header["Provides"])
	if len(provides) == 0 {
		return nil, fmt.Errorf("artifact: fragment %s provides nothing", header["type"])
	}

	f := core.NewFragment(strings.TrimLeft(rest, "\n"), core.Type(header["type"]), provides[0]).
		WithProvides(provides[1:]...).
		WithToolSource(header["Generated by"])
	if deps := header["Dependencies"]; deps != "none" {
		for _, d := range splitList(deps) {
			f.DeclaredDependencies = append(f.DeclaredDependencies, core.Type(d))
		}
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, s)
}

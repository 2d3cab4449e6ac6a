// Package yaegi runs fragment source with the yaegi Go interpreter.
//
// Every run gets a fresh interpreter loaded with the standard library
// symbols, so no state leaks between blocks. Bindings are exported to the
// interpreted code through a synthetic package and re-declared as local
// variables of a generated Run function, which wraps the fragment
// statements in their own block.
package yaegi

import (
	"bytes"
	"context"
	"fmt"
	"go/token"
	"go/types"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/hupe1980/fragmesh/code"
)

// envPath is the import path of the synthetic binding package.
const envPath = "fragmesh/env"

// DefaultAllowedImports is the standard library subset fragments may import.
var DefaultAllowedImports = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"errors",
	"fmt",
	"maps",
	"math",
	"math/cmplx",
	"math/rand",
	"path",
	"regexp",
	"slices",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	// "os", "os/exec", "net", "net/http", "syscall" and "unsafe" stay blocked
}

// Options configures a Unit.
type Options struct {
	// AllowedImports lists the import paths fragments may use.
	AllowedImports []string
	// Unrestricted disables the import allowlist.
	Unrestricted bool
}

// Unit is a code.Unit backed by yaegi.
type Unit struct {
	allowed      map[string]bool
	unrestricted bool
}

var _ code.Unit = (*Unit)(nil)

// New creates a yaegi unit.
func New(optFns ...func(o *Options)) *Unit {
	opts := Options{AllowedImports: DefaultAllowedImports}
	for _, fn := range optFns {
		fn(&opts)
	}
	allowed := make(map[string]bool, len(opts.AllowedImports))
	for _, p := range opts.AllowedImports {
		allowed[p] = true
	}
	return &Unit{allowed: allowed, unrestricted: opts.Unrestricted}
}

type runResult struct {
	resp *code.Response
	err  error
}

// Run executes req under ctx. When ctx expires first the interpreter is
// stopped, the worker goroutine is abandoned and code.ErrTimeout is
// returned; nothing the worker does afterwards is observable.
func (u *Unit) Run(ctx context.Context, req code.Request) (*code.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", code.ErrTimeout, err)
	}
	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: &code.PanicError{Value: r}}
			}
		}()
		resp, err := u.run(ctx, req)
		done <- runResult{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", code.ErrTimeout, ctx.Err())
		}
		return r.resp, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", code.ErrTimeout, ctx.Err())
	}
}

func (u *Unit) run(ctx context.Context, req code.Request) (*code.Response, error) {
	var stdout bytes.Buffer
	i := interp.New(interp.Options{Stdout: &stdout, Stderr: &stdout})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("yaegi: load stdlib: %w", err)
	}

	if code.HasPackageClause(req.Source) {
		return u.runProgram(ctx, i, req.Source, &stdout)
	}

	imports, body := code.SplitImports(req.Source)
	if err := u.checkImports(imports); err != nil {
		return nil, err
	}
	assigned, err := code.DeclaredNames(body)
	if err != nil {
		return nil, &code.CompileError{Err: err}
	}

	names := bindingNames(req.Bindings, imports)
	env := map[string]reflect.Value{
		"Lookup": reflect.ValueOf(func(name string) any { return req.Bindings[name] }),
	}
	for idx, name := range names {
		env["B"+strconv.Itoa(idx)] = exportValue(req.Bindings[name])
	}
	if err := i.Use(interp.Exports{envPath + "/env": env}); err != nil {
		return nil, fmt.Errorf("yaegi: export bindings: %w", err)
	}

	var captures []string
	for _, name := range captureNames(req) {
		if assigned[name] {
			captures = append(captures, name)
		}
	}

	src := program(imports, body, names, captures)
	if _, err := i.Eval(src); err != nil {
		return nil, &code.CompileError{Err: err}
	}
	v, err := i.EvalWithContext(ctx, "main.Run()")
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &code.PanicError{Value: err}
	}
	out, ok := v.Interface().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("yaegi: unexpected Run result %T", v.Interface())
	}

	resp := &code.Response{Captured: map[string]any{}, Stdout: stdout.String()}
	for _, name := range req.Capture {
		if val, ok := out[name]; ok {
			resp.Captured[name] = val
		}
	}
	if req.Result != "" {
		resp.Value, resp.Bound = out[req.Result]
	}
	return resp, nil
}

var (
	packageName = regexp.MustCompile(`(?m)^\s*package\s+(\w+)`)
	mainFunc    = regexp.MustCompile(`(?m)^func\s+main\s*\(\s*\)`)
)

// runProgram evaluates a complete Go file and calls its main function.
func (u *Unit) runProgram(ctx context.Context, i *interp.Interpreter, src string, stdout *bytes.Buffer) (*code.Response, error) {
	imports, _ := code.SplitImports(src)
	if err := u.checkImports(imports); err != nil {
		return nil, err
	}
	pkg := "main"
	if m := packageName.FindStringSubmatch(src); m != nil {
		pkg = m[1]
	}
	hasMain := mainFunc.MatchString(src)
	src = mainFunc.ReplaceAllString(src, "func fragmeshMain()")
	if _, err := i.Eval(src); err != nil {
		return nil, &code.CompileError{Err: err}
	}
	if hasMain {
		if _, err := i.EvalWithContext(ctx, pkg+".fragmeshMain()"); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, &code.PanicError{Value: err}
		}
	}
	return &code.Response{Captured: map[string]any{}, Stdout: stdout.String()}, nil
}

func (u *Unit) checkImports(imports []code.Import) error {
	if u.unrestricted {
		return nil
	}
	var forbidden []string
	for _, imp := range imports {
		if !u.allowed[imp.Path] {
			forbidden = append(forbidden, imp.Path)
		}
	}
	if len(forbidden) > 0 {
		return &code.CompileError{Err: fmt.Errorf("forbidden imports: %s", strings.Join(forbidden, ", "))}
	}
	return nil
}

// program renders the wrapper evaluated by the interpreter.
func program(imports []code.Import, body string, names, captures []string) string {
	var b strings.Builder
	b.WriteString("package main\n\nimport (\n")
	fmt.Fprintf(&b, "\t__env %q\n", envPath)
	for _, imp := range code.DedupeImports(imports) {
		fmt.Fprintf(&b, "\t%s\n", imp.Spec())
	}
	b.WriteString(")\n\nvar _ = __env.Lookup\n\nfunc Run() map[string]any {\n")
	b.WriteString("\t__out := map[string]any{}\n")
	for idx, name := range names {
		fmt.Fprintf(&b, "\t%s := __env.B%d\n\t_ = %s\n", name, idx, name)
	}
	b.WriteString("\t{\n")
	b.WriteString(body)
	b.WriteString("\n")
	for _, name := range captures {
		fmt.Fprintf(&b, "\t\t__out[%q] = %s\n", name, name)
	}
	b.WriteString("\t}\n\treturn __out\n}\n")
	return b.String()
}

// exportValue returns an addressable value of v's dynamic type so the
// interpreted code sees it with its concrete type.
func exportValue(v any) reflect.Value {
	if v == nil {
		var x any
		return reflect.ValueOf(&x).Elem()
	}
	ptr := reflect.New(reflect.TypeOf(v))
	ptr.Elem().Set(reflect.ValueOf(v))
	return ptr.Elem()
}

// bindingNames returns the sorted binding names that can be declared as Go
// variables without shadowing builtins or imported packages.
func bindingNames(bindings map[string]any, imports []code.Import) []string {
	pkgs := map[string]bool{}
	for _, imp := range imports {
		pkgs[imp.LocalName()] = true
	}
	var names []string
	for _, name := range slices.Sorted(maps.Keys(bindings)) {
		if declarable(name) && !pkgs[name] {
			names = append(names, name)
		}
	}
	return names
}

func declarable(name string) bool {
	return token.IsIdentifier(name) &&
		name != "_" &&
		!strings.HasPrefix(name, "__") &&
		types.Universe.Lookup(name) == nil
}

func captureNames(req code.Request) []string {
	names := slices.Clone(req.Capture)
	if req.Result != "" {
		names = append(names, req.Result)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

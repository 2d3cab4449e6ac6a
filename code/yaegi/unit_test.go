package yaegi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fragmesh/code"
)

// Recorder is a bound handle whose method the interpreted code calls.
type Recorder struct {
	Calls []map[string]any
}

func (r *Recorder) Execute(args map[string]any) any {
	r.Calls = append(r.Calls, args)
	return len(r.Calls)
}

func TestUnit_ResultBinding(t *testing.T) {
	resp, err := New().Run(context.Background(), code.Request{
		Source:   "execution := a + 1",
		Bindings: map[string]any{"a": 41},
		Result:   "execution",
	})
	require.NoError(t, err)
	assert.True(t, resp.Bound)
	assert.Equal(t, 42, resp.Value)
}

func TestUnit_ResultNotBound(t *testing.T) {
	resp, err := New().Run(context.Background(), code.Request{
		Source: "x := 1\n_ = x",
		Result: "execution",
	})
	require.NoError(t, err)
	assert.False(t, resp.Bound)
	assert.Nil(t, resp.Value)
}

func TestUnit_CapturesDeclaredNamesOnly(t *testing.T) {
	resp, err := New().Run(context.Background(), code.Request{
		Source:   "import \"strings\"\nspec_ir := strings.ToUpper(name)",
		Bindings: map[string]any{"name": "tfim", "other": 1},
		Capture:  []string{"spec_ir", "other", "missing"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"spec_ir": "TFIM"}, resp.Captured)
}

func TestUnit_CallsBoundHandle(t *testing.T) {
	rec := &Recorder{}
	resp, err := New().Run(context.Background(), code.Request{
		Source:   `execution := tool.Execute(map[string]any{"n": 4})`,
		Bindings: map[string]any{"tool": rec},
		Result:   "execution",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Value)
	require.Len(t, rec.Calls, 1)
	assert.Equal(t, 4, rec.Calls[0]["n"])
}

func TestUnit_Stdout(t *testing.T) {
	resp, err := New().Run(context.Background(), code.Request{
		Source: "import \"fmt\"\nfmt.Println(\"hello\")\nexecution := true",
		Result: "execution",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", resp.Stdout)
	assert.Equal(t, true, resp.Value)
}

func TestUnit_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New().Run(ctx, code.Request{
		Source:   "wait()\nexecution := 1",
		Bindings: map[string]any{"wait": func() { <-release }},
		Result:   "execution",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, code.ErrTimeout))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestUnit_ExpiredContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Run(ctx, code.Request{Source: "execution := 1", Result: "execution"})
	assert.ErrorIs(t, err, code.ErrTimeout)
}

func TestUnit_CompileError(t *testing.T) {
	_, err := New().Run(context.Background(), code.Request{Source: "execution := ", Result: "execution"})
	var ce *code.CompileError
	require.True(t, errors.As(err, &ce), "got %v", err)
}

func TestUnit_ForbiddenImport(t *testing.T) {
	_, err := New().Run(context.Background(), code.Request{
		Source: "import \"os\"\nexecution := os.Getpid()",
		Result: "execution",
	})
	var ce *code.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, err.Error(), "forbidden imports: os")
}

func TestUnit_Unrestricted(t *testing.T) {
	u := New(func(o *Options) { o.Unrestricted = true })
	resp, err := u.Run(context.Background(), code.Request{
		Source: "import \"os\"\nexecution := os.Getpid() > 0",
		Result: "execution",
	})
	require.NoError(t, err)
	assert.Equal(t, true, resp.Value)
}

func TestUnit_RuntimePanic(t *testing.T) {
	_, err := New().Run(context.Background(), code.Request{
		Source: "var m map[string]int\nm[\"x\"] = 1\nexecution := m",
		Result: "execution",
	})
	var pe *code.PanicError
	require.True(t, errors.As(err, &pe), "got %v", err)
}

func TestUnit_SkipsUndeclarableBindings(t *testing.T) {
	resp, err := New().Run(context.Background(), code.Request{
		Source: "import \"fmt\"\nexecution := fmt.Sprint(len(\"abc\"), x)",
		Bindings: map[string]any{
			"len":        "shadow",
			"fmt":        "shadow",
			"x":          1,
			"not valid":  2,
			"__reserved": 3,
			"nothing":    nil,
		},
		Result: "execution",
	})
	require.NoError(t, err)
	assert.Equal(t, "3 1", resp.Value)
}

func TestUnit_LookupReachesAnyName(t *testing.T) {
	resp, err := New().Run(context.Background(), code.Request{
		Source:   "execution := __env.Lookup(\"not valid\")",
		Bindings: map[string]any{"not valid": "ok"},
		Result:   "execution",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Value)
}

func TestUnit_BindingsAreNotMutated(t *testing.T) {
	bindings := map[string]any{"a": 1}
	resp, err := New().Run(context.Background(), code.Request{
		Source:   "a = 5",
		Bindings: bindings,
		Capture:  []string{"a"},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Captured["a"])
	assert.Equal(t, 1, bindings["a"])
}

func TestUnit_Program(t *testing.T) {
	resp, err := New().Run(context.Background(), code.Request{
		Source: "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Print(\"ok\")\n}\n",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Stdout)
}

func TestProgram_Wrapper(t *testing.T) {
	src := program([]code.Import{{Path: "fmt"}, {Path: "fmt"}}, "x := 1", []string{"tool"}, []string{"x"})
	assert.Contains(t, src, "\t__env \"fragmesh/env\"\n\t\"fmt\"\n)")
	assert.Contains(t, src, "\ttool := __env.B0\n\t_ = tool\n")
	assert.Contains(t, src, "\t{\nx := 1\n\t\t__out[\"x\"] = x\n\t}\n")
}

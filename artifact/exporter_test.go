package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fragmesh/core"
)

func TestFragmentFile(t *testing.T) {
	f := core.NewFragment("hamiltonian := spec_ir * 2", "hamiltonian", "hamiltonian").
		WithDependencies("spec").
		WithToolSource("TFIM_Hamiltonian_Tool")

	assert.Equal(t, "hamiltonian_TFIM_Hamiltonian_Tool.go", FragmentFileName(f))
	assert.Equal(t, "// HAMILTONIAN Fragment\n"+
		"// Generated by: TFIM_Hamiltonian_Tool\n"+
		"// Provides: hamiltonian\n"+
		"// Dependencies: spec\n\n"+
		"hamiltonian := spec_ir * 2\n", FragmentFile(f))

	anon := core.NewFragment("x := 1", "spec", "x")
	assert.Equal(t, "spec_unknown.go", FragmentFileName(anon))
	assert.Contains(t, FragmentFile(anon), "// Dependencies: none")
}

func TestParseFragmentFile(t *testing.T) {
	f := core.NewFragment("import \"strings\"\n\nham := strings.Repeat(\"Z\", 2)", "ham", "ham").
		WithProvides("ham_bonds").
		WithDependencies("spec", "lattice").
		WithToolSource("Ham_Tool")

	got, err := ParseFragmentFile(FragmentFile(f))
	require.NoError(t, err)
	assert.Equal(t, core.Type("ham"), got.SemanticType)
	assert.Equal(t, "ham", got.PrimaryVariable)
	assert.Equal(t, []string{"ham", "ham_bonds"}, got.Provides)
	assert.Equal(t, []core.Type{"spec", "lattice"}, got.DeclaredDependencies)
	assert.Equal(t, "Ham_Tool", got.ToolSource)
	assert.Equal(t, f.Code+"\n", got.Code)

	root, err := ParseFragmentFile(FragmentFile(core.NewFragment("x := 1", "spec", "x")))
	require.NoError(t, err)
	assert.Empty(t, root.DeclaredDependencies)

	_, err = ParseFragmentFile("x := 1\n")
	assert.Error(t, err)
}

func TestExporter_Export(t *testing.T) {
	store := NewInMemoryStore()
	exp := NewExporter(store, func(o *ExporterOptions) { o.Concurrency = 2 })

	ids, err := exp.Export(context.Background(), Export{
		SessionID: "sess",
		Fragments: []*core.Fragment{
			core.NewFragment("spec_ir := 1", "spec", "spec_ir").WithToolSource("Spec_Tool"),
			core.NewFragment("hamiltonian := 2", "ham", "hamiltonian").WithToolSource("Ham_Tool"),
		},
		Program: "package main\n",
		Status:  map[string]any{"fragment_count": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ham_Ham_Tool.go", ProgramID, "spec_Spec_Tool.go", StatusID}, ids)

	stored, err := store.List("sess")
	require.NoError(t, err)
	assert.Equal(t, ids, stored)

	raw, err := store.Get("sess", StatusID)
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.EqualValues(t, 2, status["fragment_count"])
}

type failingStore struct{ *InMemoryStore }

func (failingStore) Save(string, string, []byte) error { return errors.New("disk full") }

func TestExporter_SaveFailure(t *testing.T) {
	exp := NewExporter(failingStore{NewInMemoryStore()})
	_, err := exp.Export(context.Background(), Export{SessionID: "s", Program: "package main"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestExporter_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExporter(NewInMemoryStore()).Export(ctx, Export{SessionID: "s", Program: "package main"})
	assert.ErrorIs(t, err, context.Canceled)
}

package tfim

import (
	"context"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/semantic"
	"github.com/hupe1980/fragmesh/tool"
)

const specTemplate = `spec_n := {{ .N }}
spec_j := {{ goFloat .J }}
spec_h := {{ goFloat .H }}
spec_periodic := {{ .Periodic }}
spec_ir := map[string]any{
	"model":    "TFIM",
	"n_qubits": spec_n,
	"boundary": {{ quote .Boundary }},
	"j":        spec_j,
	"h":        spec_h,
}`

// NewSpecTool returns the tool that pins down the model parameters.
func NewSpecTool(optFns ...func(o *tool.FunctionToolOptions)) *tool.FunctionTool {
	return tool.NewFunctionTool(SpecToolName,
		"Create a transverse-field Ising model specification (chain length, boundary, couplings).",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model":    map[string]any{"type": "string", "description": "Model family, only TFIM"},
				"n_qubits": map[string]any{"type": "integer", "description": "Chain length, 2 to 20"},
				"boundary": map[string]any{"type": "string", "description": "open|periodic (OBC|PBC)"},
				"j":        map[string]any{"type": "number", "description": "ZZ coupling, default 1.0"},
				"h":        map[string]any{"type": "number", "description": "Transverse field, default 1.0"},
			},
			"required": []string{"n_qubits"},
		},
		func(_ context.Context, values map[string]any) (any, error) {
			a := newArgs(SpecToolName, values)
			a.choice("TFIM", map[string]string{"tfim": "TFIM"}, "model")
			n := a.int(4, 2, 20, "n_qubits", "N")
			boundary := a.choice("open", map[string]string{
				"open": "open", "obc": "open", "periodic": "periodic", "pbc": "periodic",
			}, "boundary")
			j := a.float(1.0, false, "j", "J")
			h := a.float(1.0, false, "h", "H")
			if err := a.err(); err != nil {
				return nil, err
			}

			f, err := fragment(SpecToolName, specTemplate, map[string]any{
				"N": n, "J": j, "H": h, "Boundary": boundary, "Periodic": boundary == "periodic",
			}, semantic.Spec, "spec_ir", "spec_n", "spec_j", "spec_h", "spec_periodic")
			if err != nil {
				return nil, err
			}
			return f.WithMetadata("n_qubits", n).
				WithMetadata("boundary", boundary).
				WithMetadata("j", j).
				WithMetadata("h", h), nil
		},
		withDefaults(optFns,
			capability(semantic.Spec, nil, "spec_ir", "spec_n", "spec_j", "spec_h", "spec_periodic"),
			demos(`execution := tool.Execute(map[string]any{"model": "TFIM", "n_qubits": 8, "boundary": "periodic"})`),
		)...,
	)
}

const hamiltonianTemplate = `import "strings"

hamiltonian_bonds := spec_n - 1
if spec_periodic && spec_n > 2 {
	hamiltonian_bonds = spec_n
}
hamiltonian := map[string]float64{}
for i := 0; i < hamiltonian_bonds; i++ {
	p := []byte(strings.Repeat("I", spec_n))
	p[i] = 'Z'
	p[(i+1)%spec_n] = 'Z'
	hamiltonian[string(p)] += -spec_j
}
{{ if .Field }}for i := 0; i < spec_n; i++ {
	p := []byte(strings.Repeat("I", spec_n))
	p[i] = 'X'
	hamiltonian[string(p)] += -spec_h
}
{{ end }}`

// NewHamiltonianTool returns the tool emitting H = -J Σ Z_i Z_{i+1} - h Σ X_i
// as a map from Pauli string to coefficient.
func NewHamiltonianTool(optFns ...func(o *tool.FunctionToolOptions)) *tool.FunctionTool {
	return tool.NewFunctionTool(HamiltonianToolName,
		"Build the TFIM Hamiltonian as Pauli strings from the spec fragment.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"spec_fragment":    map[string]any{"type": "object", "description": "The registered spec fragment"},
				"transverse_field": map[string]any{"type": "boolean", "description": "Include the X terms, default true"},
			},
		},
		func(_ context.Context, values map[string]any) (any, error) {
			if err := requireFragment(HamiltonianToolName, values["spec_fragment"], semantic.Spec); err != nil {
				return nil, err
			}
			field := true
			if v, ok := values["transverse_field"].(bool); ok {
				field = v
			}
			f, err := fragment(HamiltonianToolName, hamiltonianTemplate, map[string]any{"Field": field},
				semantic.Hamiltonian, "hamiltonian", "hamiltonian_bonds")
			if err != nil {
				return nil, err
			}
			return f.WithDependencies(semantic.Spec).WithMetadata("transverse_field", field), nil
		},
		withDefaults(optFns,
			capability(semantic.Hamiltonian, []core.Type{semantic.Spec}, "hamiltonian", "hamiltonian_bonds"),
			demos(`execution := tool.Execute(map[string]any{"spec_fragment": spec})`),
		)...,
	)
}

const ansatzTemplate = `ansatz := map[string]any{
	"type":       {{ quote .Type }},
	"num_qubits": spec_n,
	"num_params": {{ if .Shared }}1{{ else }}spec_n{{ end }},
	"reps":       {{ .Reps }},
}`

// NewAnsatzTool returns the tool describing the RY product-state ansatz.
// hamiltonian_informed shares one angle across the translation-invariant
// chain.
func NewAnsatzTool(optFns ...func(o *tool.FunctionToolOptions)) *tool.FunctionTool {
	return tool.NewFunctionTool(AnsatzToolName,
		"Describe the variational ansatz (ry_product or hamiltonian_informed).",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ansatz_type": map[string]any{"type": "string"},
				"reps":        map[string]any{"type": "integer"},
			},
		},
		func(_ context.Context, values map[string]any) (any, error) {
			a := newArgs(AnsatzToolName, values)
			typ := a.choice("ry_product", map[string]string{
				"ry_product": "ry_product", "efficient_su2": "ry_product", "hamiltonian_informed": "hamiltonian_informed",
			}, "ansatz_type", "type")
			reps := a.int(1, 1, 10, "reps")
			if err := a.err(); err != nil {
				return nil, err
			}
			f, err := fragment(AnsatzToolName, ansatzTemplate, map[string]any{
				"Type": typ, "Shared": typ == "hamiltonian_informed", "Reps": reps,
			}, semantic.Ansatz, "ansatz")
			if err != nil {
				return nil, err
			}
			return f.WithDependencies(semantic.Spec).WithMetadata("ansatz_type", typ).WithMetadata("reps", reps), nil
		},
		withDefaults(optFns,
			capability(semantic.Ansatz, []core.Type{semantic.Spec}, "ansatz"),
			demos(`execution := tool.Execute(map[string]any{"ansatz_type": "hamiltonian_informed"})`),
		)...,
	)
}

const optimizerTemplate = `optimizer := map[string]any{
	"method":        {{ quote .Method }},
	"max_iter":      {{ .MaxIter }},
	"learning_rate": {{ goFloat .LearningRate }},
	"tolerance":     {{ goFloat .Tolerance }},
}`

// NewOptimizerTool returns the optimizer tool. It answers with a legacy
// record list and relies on the schema's tool table for its type.
func NewOptimizerTool(optFns ...func(o *tool.FunctionToolOptions)) *tool.FunctionTool {
	return tool.NewFunctionTool(OptimizerToolName,
		"Configure the classical optimizer (gradient_descent or spsa).",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"method":        map[string]any{"type": "string"},
				"max_iter":      map[string]any{"type": "integer"},
				"learning_rate": map[string]any{"type": "number"},
				"tolerance":     map[string]any{"type": "number"},
			},
		},
		func(_ context.Context, values map[string]any) (any, error) {
			a := newArgs(OptimizerToolName, values)
			method := a.choice("gradient_descent", map[string]string{
				"gradient_descent": "gradient_descent", "gd": "gradient_descent", "l_bfgs_b": "gradient_descent", "spsa": "spsa",
			}, "method", "optimizer")
			maxIter := a.int(200, 1, 10000, "max_iter", "maxiter")
			lr := a.float(0.1, true, "learning_rate")
			tol := a.float(1e-6, true, "tolerance", "tol")
			if err := a.err(); err != nil {
				return nil, err
			}
			src, err := renderSource(OptimizerToolName, optimizerTemplate, map[string]any{
				"Method": method, "MaxIter": maxIter, "LearningRate": lr, "Tolerance": tol,
			})
			if err != nil {
				return nil, err
			}
			return []map[string]any{{
				"Code": src,
				"metadata": map[string]any{
					"method":   method,
					"max_iter": maxIter,
				},
			}}, nil
		},
		withDefaults(optFns,
			demos(`execution := tool.Execute(map[string]any{"method": "spsa", "max_iter": 300})`),
		)...,
	)
}

const estimatorTemplate = `estimator := map[string]any{
	"kind":  {{ quote .Kind }},
	"shots": {{ .Shots }},
	"seed":  int64({{ .Seed }}),
}`

// NewEstimatorTool returns the tool configuring energy estimation: exact
// expectation values or shot noise with a fixed seed.
func NewEstimatorTool(optFns ...func(o *tool.FunctionToolOptions)) *tool.FunctionTool {
	return tool.NewFunctionTool(EstimatorToolName,
		"Configure the energy estimator (exact or sampled with shots).",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind":  map[string]any{"type": "string"},
				"shots": map[string]any{"type": "integer"},
				"seed":  map[string]any{"type": "integer"},
			},
		},
		func(_ context.Context, values map[string]any) (any, error) {
			a := newArgs(EstimatorToolName, values)
			kind := a.choice("exact", map[string]string{
				"exact": "exact", "statevector": "exact", "sampled": "sampled", "primitive": "sampled",
			}, "kind", "estimator")
			shots := 0
			if kind == "sampled" {
				shots = a.int(1024, 1, 1<<20, "shots")
			}
			seed := a.int(7, 0, 1<<31-1, "seed")
			if err := a.err(); err != nil {
				return nil, err
			}
			f, err := fragment(EstimatorToolName, estimatorTemplate, map[string]any{
				"Kind": kind, "Shots": shots, "Seed": seed,
			}, semantic.Estimator, "estimator")
			if err != nil {
				return nil, err
			}
			return f.WithDependencies(semantic.Spec).WithMetadata("kind", kind).WithMetadata("shots", shots), nil
		},
		withDefaults(optFns,
			capability(semantic.Estimator, []core.Type{semantic.Spec}, "estimator"),
			demos(`execution := tool.Execute(map[string]any{"kind": "sampled", "shots": 4096})`),
		)...,
	)
}

const vqeTemplate = `import (
	"fmt"
	"math"
	"math/rand"
)

vqe_shared := ansatz["num_params"].(int) == 1
vqe_method := optimizer["method"].(string)
vqe_lr := optimizer["learning_rate"].(float64)
vqe_tol := optimizer["tolerance"].(float64)
vqe_rng := rand.New(rand.NewSource(estimator["seed"].(int64)))
vqe_shots := estimator["shots"].(int)
vqe_theta := make([]float64, ansatz["num_params"].(int))
for i := range vqe_theta {
	vqe_theta[i] = {{ goFloat .Initial }} * float64(i+1)
}
vqe_energy := func(theta []float64) float64 {
	e := 0.0
	for pauli, coeff := range hamiltonian {
		term := coeff
		for q, op := range pauli {
			angle := theta[0]
			if !vqe_shared {
				angle = theta[q]
			}
			switch op {
			case 'Z':
				term *= math.Cos(angle)
			case 'X':
				term *= math.Sin(angle)
			case 'Y':
				term = 0
			}
		}
		e += term
	}
	if vqe_shots > 0 {
		e += vqe_rng.NormFloat64() / math.Sqrt(float64(vqe_shots))
	}
	return e
}
vqe_iterations := 0
vqe_energy_value := vqe_energy(vqe_theta)
for vqe_iterations < optimizer["max_iter"].(int) {
	grad := make([]float64, len(vqe_theta))
	if vqe_method == "spsa" {
		c := 0.1
		delta := make([]float64, len(vqe_theta))
		for i := range delta {
			delta[i] = 1
			if vqe_rng.Intn(2) == 0 {
				delta[i] = -1
			}
			vqe_theta[i] += c * delta[i]
		}
		up := vqe_energy(vqe_theta)
		for i := range delta {
			vqe_theta[i] -= 2 * c * delta[i]
		}
		down := vqe_energy(vqe_theta)
		for i := range delta {
			vqe_theta[i] += c * delta[i]
			grad[i] = (up - down) / (2 * c * delta[i])
		}
	} else {
		for i := range vqe_theta {
			vqe_theta[i] += 1e-4
			up := vqe_energy(vqe_theta)
			vqe_theta[i] -= 2e-4
			down := vqe_energy(vqe_theta)
			vqe_theta[i] += 1e-4
			grad[i] = (up - down) / 2e-4
		}
	}
	for i := range vqe_theta {
		vqe_theta[i] -= vqe_lr * grad[i]
	}
	vqe_iterations++
	next := vqe_energy(vqe_theta)
	done := math.Abs(vqe_energy_value-next) < vqe_tol
	vqe_energy_value = next
	if done {
		break
	}
}
vqe_result := map[string]any{
	"energy":          vqe_energy_value,
	"energy_per_site": vqe_energy_value / float64(ansatz["num_qubits"].(int)),
	"iterations":      vqe_iterations,
	"parameters":      vqe_theta,
	"method":          vqe_method,
}
fmt.Printf("VQE energy: %.6f after %d iterations\n", vqe_energy_value, vqe_iterations)`

// NewVQETool returns the tool emitting the variational loop. The energy of a
// product state is the sum of Pauli terms with <Z>=cos θ and <X>=sin θ.
func NewVQETool(optFns ...func(o *tool.FunctionToolOptions)) *tool.FunctionTool {
	return tool.NewFunctionTool(VQEToolName,
		"Run the VQE loop over the hamiltonian, ansatz, optimizer and estimator fragments.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"initial_angle": map[string]any{"type": "number", "description": "Angle step of the initial parameters"},
			},
		},
		func(_ context.Context, values map[string]any) (any, error) {
			a := newArgs(VQEToolName, values)
			initial := a.float(0.1, false, "initial_angle")
			if err := a.err(); err != nil {
				return nil, err
			}
			f, err := fragment(VQEToolName, vqeTemplate, map[string]any{"Initial": initial},
				semantic.VQEExecution, "vqe_result", "vqe_energy_value", "vqe_iterations", "vqe_theta")
			if err != nil {
				return nil, err
			}
			return f.WithDependencies(semantic.Hamiltonian, semantic.Ansatz, semantic.Optimizer, semantic.Estimator), nil
		},
		withDefaults(optFns,
			capability(semantic.VQEExecution,
				[]core.Type{semantic.Hamiltonian, semantic.Ansatz, semantic.Optimizer, semantic.Estimator},
				"vqe_result", "vqe_energy_value", "vqe_iterations", "vqe_theta"),
			demos(`execution := tool.Execute(map[string]any{})`),
		)...,
	)
}

func capability(typ core.Type, deps []core.Type, provides ...string) func(o *tool.FunctionToolOptions) {
	return func(o *tool.FunctionToolOptions) {
		o.Capability = tool.Capability{SemanticType: typ, Dependencies: deps, Provides: provides}
	}
}

// withDefaults puts the tool's own options before the caller's.
func withDefaults(optFns []func(o *tool.FunctionToolOptions), defaults ...func(o *tool.FunctionToolOptions)) []func(o *tool.FunctionToolOptions) {
	return append(defaults, optFns...)
}

func demos(d ...string) func(o *tool.FunctionToolOptions) {
	return func(o *tool.FunctionToolOptions) { o.Demos = append(o.Demos, d...) }
}

// requireFragment accepts a missing value but rejects a fragment of the
// wrong type.
func requireFragment(toolName string, v any, want core.Type) error {
	var f *core.Fragment
	switch x := v.(type) {
	case nil:
		return nil
	case *core.Fragment:
		f = x
	case core.Fragment:
		f = &x
	default:
		return nil
	}
	if f != nil && f.SemanticType != want {
		return tool.NewToolError(toolName, "expected a "+string(want)+" fragment, got "+string(f.SemanticType), tool.CodeValidationError)
	}
	return nil
}

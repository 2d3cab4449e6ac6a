// Command fragmesh inspects the fragment dependency graph, assembles
// exported fragment files and runs solving sessions.
//
// Usage:
//
//	fragmesh graph
//	fragmesh assemble --run spec_TFIM_Spec_Tool.go hamiltonian_TFIM_Hamiltonian_Tool.go
//	fragmesh solve "Build a VQE solution for an 8 qubit TFIM chain"
//	fragmesh batch jobs.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package semantic holds the static dependency graph between semantic types
// and the schema tables that describe a fragment workflow: which types
// exist, what each one requires, which type is the final artifact, which
// tool produces which type and what variable each type binds.
//
// A Graph is immutable after construction and validated acyclic; a cycle or
// a dependency on an undeclared type is a configuration error.
package semantic

// Package code defines the Executable Unit abstraction used by the engine
// to run tool-authored Go source, together with the import-line heuristics
// shared with the assembler.
//
// A Unit receives a Request holding the source and the bindings visible to
// it, runs it under the context deadline and reports the value bound to the
// result name plus any requested captures. Backends live in sub-packages
// (see code/yaegi).
package code

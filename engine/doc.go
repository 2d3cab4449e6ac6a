// Package engine executes tool commands and folds their results into a
// solving session.
//
// A command is Go source written by the planner. It is segmented into
// blocks, each ending with a line that binds a tool call to the reserved
// result name:
//
//	h := tool.Execute(map[string]any{"spec_ir": spec_ir})
//	execution := tool.Execute(map[string]any{"hamiltonian": h})
//
// # Block lifecycle
//
//	┌──────────────┐   ┌───────────────┐   ┌──────────────┐   ┌──────────────┐
//	│ SplitBlocks  │──▶│ buildContext  │──▶│  code.Unit   │──▶│   classify   │
//	│ (regex)      │   │ (snapshots)   │   │ (deadline)   │   │ register +   │
//	└──────────────┘   └───────────────┘   └──────────────┘   │ merge        │
//	                                                          └──────────────┘
//
// Context construction layers bindings, later tiers overriding earlier ones:
//
//  1. the tool handle under "tool"
//  2. the session namespace snapshot
//  3. every registered fragment as "<type>_fragment" and "<type>", plus the
//     full list as "fragments"
//  4. the registry's exposed variables
//  5. the tool handle again
//
// Each block runs in its own worker under Options.BlockTimeout. On expiry
// the worker is abandoned and the outcome carries a core.Timeout sentinel;
// nothing from that block reaches the registry or namespace.
//
// # Classification
//
// A bound *core.Fragment is registered directly. A non-empty sequence whose
// first element is a record with a "Code" payload is adapted through the
// legacy adapter first. Fragments of types the graph does not declare are
// rejected. A registered fragment's code is executed once more, under a
// fresh BlockTimeout, to capture the variables it provides, which are then
// merged into the namespace. Any other value is kept on the outcome as is.
//
// # Callbacks
//
// A CallbackManager can observe or veto blocks (CallbackBeforeBlock),
// fragments (CallbackBeforeRegister) and finished outcomes
// (CallbackAfterBlock).
package engine

// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing fragments, workflow steps, stub
// tools and fully wired sessions (graph, registry, namespace, catalog,
// legacy adapter). They are not intended for production usage.
package testutil

// Package model defines the provider-agnostic Oracle abstraction: a
// language model that turns a prompt into text.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (model/openai, model/anthropic) implement Model so the planner
// and the oracle-backed tools remain decoupled from vendor SDKs.
package model

// Package model defines the provider-agnostic abstraction InsightMesh uses to
// talk to language models, plus helpers shared by the direct execution tier
// and the result synthesizer.
//
// Core goals:
//   - Keep request/response shapes minimal and transport independent
//   - Unify provider adapters (OpenAI, Anthropic) behind one interface
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers live in sub-packages; model/provider selects one from explicit
// per-call configuration so no package holds ambient API key state.
package model

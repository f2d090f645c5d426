// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models inside the agent server.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Surface grounding citations with byte offsets into the generated text
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic, Gemini) implement the Model interface from
// this package so prompt-wrapper agents remain decoupled from vendor SDKs.
package model

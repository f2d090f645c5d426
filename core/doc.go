// Package core provides the foundational domain types and interfaces shared by
// the agentdeck client engine, its transports and the reference agent server.
// It defines the core abstractions for:
//
//   - Events (the strictly ordered run protocol records streamed per run)
//   - Parts (user input segments: text, files, structured data)
//   - Runs (identity, status and timing of one agent execution)
//   - Source references and trajectory entries carried by part metadata
//   - Transports (opening a run stream and issuing remote cancels)
//   - File stores for user attachments
//
// The package intentionally keeps implementation concerns (stream decoding,
// message reconstruction, orchestration) out of scope, exposing small types
// and interfaces so transports and renderers can be swapped independently.
package core

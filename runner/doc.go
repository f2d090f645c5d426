// Package runner executes agent runs on the server side of the run protocol.
//
// The Runner resolves the addressed agent, assigns run and session ids,
// streams the agent's events framed by run.created and exactly one terminal
// event, records the session history and keeps a registry of active runs so
// they can be cancelled by id.
package runner

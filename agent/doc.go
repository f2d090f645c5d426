// Package agent contains the server-side agents that answer runs of the run
// protocol. The package focuses on three concerns:
//
//  1. The execution contract (Agent, RunContext) and a name-keyed Registry
//  2. The prompt-wrapper agent (ModelAgent) driving a model.Model
//  3. The sequential workflow agent (SequentialAgent) chaining registered
//     agents over a single stream, tagging every event with its step index
//
// Execution Model:
//   - An agent's Run receives a *RunContext carrying the run identity, the
//     user input and the session history
//   - Agents emit message parts through RunContext.Emit; run.created and the
//     terminal events are owned by the runner
//   - Run returns the agent's final output text, which the sequential agent
//     feeds into the next step
package agent

// Package session keeps the conversation history of server-side sessions so
// a follow-up run with the same session id continues the conversation.
//
// Only a volatile in-memory store is provided; conversation persistence is
// left to deployments that need it.
package session

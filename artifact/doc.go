// Package artifact contains concrete implementations of core.FileStore.
//
// The canonical FileStore interface lives in the core package to avoid
// dependency cycles. Implementation packages provide storage backends for
// user attachments that can be swapped without touching calling code.
package artifact

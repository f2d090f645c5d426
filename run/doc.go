// Package run implements the client side run lifecycle controller.
//
// A Controller owns at most one active run. It opens the transport stream,
// normalizes the event sequence so it always ends with exactly one terminal
// event, and supports dual-channel cancellation: the local stream is aborted
// immediately while a separate remote cancel request stops server side work.
//
// Quick start:
//
//	ctrl := run.New(func(o *run.Options) { o.Transport = httpstream.New(baseURL) })
//	result, err := ctrl.Run(ctx, core.RunRequest{AgentName: "echo", Input: parts}, handler)
//
// Events are delivered strictly in arrival order on a single goroutine.
package run

// Package adapter provides the TCP front end shared by protocol adapters:
// an acceptor feeding a bounded connection queue, and a fixed pool of
// session handlers draining it.
package adapter

import "context"

// Adapter is a protocol server managed by the DittoBox runtime.
//
// Lifecycle:
//  1. Creation with protocol-specific configuration
//  2. Serve starts listening and blocks until shutdown
//  3. Stop (or cancellation of the Serve context) initiates graceful shutdown
//
// Implementations must be safe for concurrent use. Stop may be called
// concurrently with Serve and more than once.
type Adapter interface {
	// Serve starts the protocol server and blocks until ctx is canceled or an
	// unrecoverable error occurs. It returns nil after a graceful shutdown.
	Serve(ctx context.Context) error

	// Stop initiates shutdown and waits for sessions to finish, bounded by
	// ctx. It is idempotent.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging and metrics.
	Protocol() string

	// Addr returns the bound listener address, or "" before Serve has
	// started listening.
	Addr() string
}

// Package kit holds the thin transport glue shared by tabkeeper surfaces.
package kit

import "context"

// Endpoint is a transport-agnostic operation: typed request in, typed
// response out. Surfaces (MCP, CLI) adapt their wire format to this shape.
type Endpoint func(ctx context.Context, req any) (any, error)

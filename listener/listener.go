package listener

import "context"

// Listener is a network endpoint the server runs until shutdown.
type Listener interface {
	Addr() string
	Start(ctx context.Context) error
	Stop() error
	Type() string
}

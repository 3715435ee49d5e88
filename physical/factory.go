package physical

import (
	"context"
	"errors"

	"github.com/stephnangue/vortex/auth/token"
	"github.com/stephnangue/vortex/logger"
)

var ErrUnknownType = errors.New("unknown storage type")

// Factory builds a credential store from the options of a storage block.
type Factory func(ctx context.Context, conf map[string]string, log logger.Logger) (token.Store, error)

// Closer is implemented by stores that hold connections.
type Closer interface {
	Close() error
}

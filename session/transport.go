package session

import (
	"context"
)

// Transport carries whole frames. ReadFrame is only called from one
// goroutine and WriteFrame only from another.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(ctx context.Context, data []byte) error
	Close() error
}

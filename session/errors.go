package session

import (
	"errors"
	"fmt"

	"go.chrisrx.dev/reconf/protocol"
)

var (
	ErrClosed          = errors.New("session: closed")
	ErrConnect         = errors.New("session: connect failed")
	ErrUnexpectedReply = errors.New("session: unexpected reply")
)

// PeerError is an ERROR message received from the peer.
type PeerError struct {
	Code protocol.ErrorCode
	ID   string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("session: peer reported %s (id %s)", e.Code, e.ID)
}

package session

import (
	"context"
	"io"
	"sync"
)

const pipeBuffer = 16

type pipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-memory transports. Closing either end closes
// both.
func Pipe() (Transport, Transport) {
	a := make(chan []byte, pipeBuffer)
	b := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	return &pipeEnd{in: a, out: b, done: done, once: once},
		&pipeEnd{in: b, out: a, done: done, once: once}
}

// ReadFrame returns io.EOF once either end is closed, even if frames are
// still buffered.
func (p *pipeEnd) ReadFrame() ([]byte, error) {
	select {
	case <-p.done:
		return nil, io.EOF
	default:
	}
	select {
	case data := <-p.in:
		return data, nil
	case <-p.done:
		return nil, io.EOF
	}
}

func (p *pipeEnd) WriteFrame(ctx context.Context, data []byte) error {
	select {
	case <-p.done:
		return io.ErrClosedPipe
	default:
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case p.out <- buf:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() {
		close(p.done)
	})
	return nil
}

package session

import (
	"log/slog"
	"net/http"
	"time"

	"go.chrisrx.dev/reconf/protocol"
)

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithConfig seeds the configuration snapshot. doc should already be a
// document tree; see protocol.Normalize.
func WithConfig(doc any) Option {
	return func(s *Session) {
		s.config = protocol.Clone(doc)
	}
}

// WithIDFunc sets the generator for correlation tokens of messages the
// session builds itself.
func WithIDFunc(fn protocol.IDFunc) Option {
	return func(s *Session) {
		s.build = protocol.Builder{NewID: fn}
	}
}

// WithReadResponder makes the session answer CONFIGURATION READ with a
// CONFIGURATION NOTIFY of its snapshot instead of UNSUPPORTED_VERB.
func WithReadResponder() Option {
	return func(s *Session) {
		s.answerReads = true
	}
}

// WithDiffOptions sets the options used when Patch computes a diff.
func WithDiffOptions(opts ...protocol.DiffOption) Option {
	return func(s *Session) {
		s.diffOpts = opts
	}
}

func WithOutgoingBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.outgoingBuffer = n
		}
	}
}

func WithErrorBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.errorBuffer = n
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.writeTimeout = d
	}
}

// WithPingInterval enables websocket keepalive pings. It has no effect on
// sessions created with New.
func WithPingInterval(d time.Duration) Option {
	return func(s *Session) {
		s.pingInterval = d
	}
}

// WithHeader adds request headers to the websocket handshake made by Dial.
func WithHeader(h http.Header) Option {
	return func(s *Session) {
		if s.header == nil {
			s.header = make(http.Header)
		}
		for k, vs := range h {
			for _, v := range vs {
				s.header.Add(k, v)
			}
		}
	}
}

func WithBearerToken(token string) Option {
	return func(s *Session) {
		if s.header == nil {
			s.header = make(http.Header)
		}
		s.header.Set("Authorization", "Bearer "+token)
	}
}

// WithSubscriber registers a Reconfigure observer before the session starts
// reading, so no patch can slip past it.
func WithSubscriber(fn func(Reconfigure)) Option {
	return func(s *Session) {
		s.reconfigure.add(fn)
	}
}

// WithMessageObserver registers fn for every decoded inbound message before
// the session starts reading.
func WithMessageObserver(fn func(*Session, protocol.Message)) Option {
	return func(s *Session) {
		s.messages.add(func(m protocol.Message) {
			fn(s, m)
		})
	}
}

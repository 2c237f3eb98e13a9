package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.chrisrx.dev/reconf/protocol"
)

type State int32

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type outbound struct {
	data []byte
	done chan error
}

type waiter struct {
	match func(protocol.Message) bool
	ch    chan protocol.Message
}

type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	t      Transport
	remote string
	logger *slog.Logger
	build  protocol.Builder

	answerReads    bool
	diffOpts       []protocol.DiffOption
	outgoingBuffer int
	errorBuffer    int
	writeTimeout   time.Duration
	pingInterval   time.Duration
	header         http.Header

	state atomic.Int32

	cfgMu  sync.RWMutex
	config any

	waitMu  sync.Mutex
	waiters []*waiter

	reconfigure observers[Reconfigure]
	messages    observers[protocol.Message]

	outgoing chan *outbound
	errs     chan error

	done      chan struct{}
	closeOnce sync.Once
	causeMu   sync.Mutex
	cause     error
}

func newSession(opts ...Option) *Session {
	s := &Session{
		logger:         slog.Default(),
		build:          protocol.Builder{NewID: protocol.PhraseID},
		config:         map[string]any{},
		outgoingBuffer: 64,
		errorBuffer:    16,
		writeTimeout:   10 * time.Second,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.outgoing = make(chan *outbound, s.outgoingBuffer)
	s.errs = make(chan error, s.errorBuffer)
	s.ctx, s.cancel = context.WithCancel(context.TODO())
	s.state.Store(int32(Connecting))
	return s
}

// New starts a session over an established transport. The session is OPEN
// when New returns.
func New(t Transport, opts ...Option) *Session {
	s := newSession(opts...)
	s.start(t)
	return s
}

// Dial connects to a websocket endpoint such as ws://host:8080/connect and
// starts a session on it. Failures wrap ErrConnect.
func Dial(ctx context.Context, addr string, opts ...Option) (*Session, error) {
	s := newSession(opts...)
	s.logger.Info("attempting connection...", slog.String("addr", addr))
	conn, err := NewConn(ctx, addr, s.header)
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, addr, err)
	}
	s.remote = addr
	if s.pingInterval > 0 {
		conn.KeepAlive(s.ctx, s.pingInterval)
	}
	s.start(conn)
	s.logger.Info("connection successful", slog.String("addr", addr))
	return s, nil
}

// Accept upgrades an inbound HTTP request and starts a session on it.
func Accept(w http.ResponseWriter, r *http.Request, opts ...Option) (*Session, error) {
	s := newSession(opts...)
	conn, err := Upgrade(w, r)
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	s.remote = r.RemoteAddr
	if s.pingInterval > 0 {
		conn.KeepAlive(s.ctx, s.pingInterval)
	}
	s.start(conn)
	return s, nil
}

func (s *Session) start(t Transport) {
	s.t = t
	if s.remote != "" {
		s.logger = s.logger.With(slog.String("remote", s.remote))
	}
	s.state.Store(int32(Open))
	go s.writer()
	go s.reader()
}

// abort moves a session that never opened straight to CLOSED.
func (s *Session) abort() {
	s.closeOnce.Do(func() {
		s.causeMu.Lock()
		s.cause = ErrClosed
		s.causeMu.Unlock()
		s.state.Store(int32(Closed))
		s.cancel()
		close(s.done)
	})
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) Remote() string {
	return s.remote
}

// Done is closed when the session reaches CLOSED.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns nil while the session is open, ErrClosed after Close, or the
// transport error that ended the session.
func (s *Session) Err() error {
	s.causeMu.Lock()
	defer s.causeMu.Unlock()
	return s.cause
}

// Errors delivers non-fatal failures: *protocol.DecodeError for frames that
// could not be decoded, *protocol.ApplyError for rejected patches and
// *PeerError for ERROR messages from the peer. Errors are dropped when the
// channel is full.
func (s *Session) Errors() <-chan error {
	return s.errs
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() error {
	return s.shutdown(ErrClosed)
}

func (s *Session) shutdown(cause error) error {
	var err error
	s.closeOnce.Do(func() {
		s.causeMu.Lock()
		s.cause = cause
		s.causeMu.Unlock()
		// under cfgMu so no patch is applied once CLOSED is visible
		s.cfgMu.Lock()
		s.state.Store(int32(Closed))
		s.cfgMu.Unlock()
		s.cancel()
		close(s.done)
		err = s.t.Close()
		if errors.Is(cause, ErrClosed) {
			s.logger.Info("session closed")
		} else {
			s.logger.Warn("session lost", slog.Any("error", cause))
		}
	})
	return err
}

func (s *Session) closedErr() error {
	cause := s.Err()
	if cause == nil || errors.Is(cause, ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, cause)
}

func (s *Session) reader() {
	for {
		frame, err := s.t.ReadFrame()
		if err != nil {
			s.shutdown(err)
			s.failWaiters()
			return
		}
		// frames that arrive while Close runs are dropped
		select {
		case <-s.done:
			s.failWaiters()
			return
		default:
		}
		s.handleFrame(frame)
	}
}

func (s *Session) writer() {
	for {
		select {
		case out := <-s.outgoing:
			ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
			err := s.t.WriteFrame(ctx, out.data)
			cancel()
			if out.done != nil {
				out.done <- err
			}
			if err != nil {
				s.logger.Error("cannot write frame", slog.Any("error", err))
				s.shutdown(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// Send hands m to the transport. It returns once the write was accepted,
// which says nothing about whether the peer processed it.
func (s *Session) Send(ctx context.Context, m protocol.Message) error {
	if s.State() != Open {
		return s.closedErr()
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	out := &outbound{data: data, done: make(chan error, 1)}
	select {
	case s.outgoing <- out:
	case <-s.done:
		return s.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-out.done:
		return err
	case <-s.done:
		select {
		case err := <-out.done:
			return err
		default:
		}
		return s.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reply queues a frame without waiting. It is used from the reader, which
// must never block on the network.
func (s *Session) reply(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		s.logger.Error("cannot encode reply", slog.Any("error", err))
		return
	}
	select {
	case s.outgoing <- &outbound{data: data}:
	default:
		s.logger.Warn("outgoing queue full, dropping reply",
			slog.String("msg", string(m.Kind)),
			slog.String("id", m.ID),
		)
	}
}

func (s *Session) report(err error) {
	select {
	case s.errs <- err:
	default:
		s.logger.Warn("error channel full, dropping error", slog.Any("error", err))
	}
}

// ReceiveOnce waits for the next inbound message that decodes successfully.
func (s *Session) ReceiveOnce(ctx context.Context) (protocol.Message, error) {
	return s.wait(ctx, s.addWaiter(nil))
}

// Request sends m and waits for the next inbound message with the same id.
// An ERROR reply is returned together with a *PeerError.
func (s *Session) Request(ctx context.Context, m protocol.Message) (protocol.Message, error) {
	if m.ID == "" {
		return protocol.Message{}, fmt.Errorf("session: request without id")
	}
	w := s.addWaiter(func(in protocol.Message) bool {
		return in.ID == m.ID
	})
	if err := s.Send(ctx, m); err != nil {
		s.removeWaiter(w)
		return protocol.Message{}, err
	}
	resp, err := s.wait(ctx, w)
	if err != nil {
		return resp, err
	}
	if code, ok := resp.ErrorCode(); ok {
		return resp, &PeerError{Code: code, ID: resp.ID}
	}
	return resp, nil
}

func (s *Session) addWaiter(match func(protocol.Message) bool) *waiter {
	w := &waiter{match: match, ch: make(chan protocol.Message, 1)}
	s.waitMu.Lock()
	s.waiters = append(s.waiters, w)
	s.waitMu.Unlock()
	return w
}

func (s *Session) removeWaiter(w *waiter) {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	for i, other := range s.waiters {
		if other == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

func (s *Session) wait(ctx context.Context, w *waiter) (protocol.Message, error) {
	select {
	case m := <-w.ch:
		return m, nil
	case <-s.done:
		select {
		case m := <-w.ch:
			return m, nil
		default:
		}
		s.removeWaiter(w)
		return protocol.Message{}, s.closedErr()
	case <-ctx.Done():
		s.removeWaiter(w)
		return protocol.Message{}, ctx.Err()
	}
}

// deliver hands m to every waiter it matches. Matched waiters are removed.
func (s *Session) deliver(m protocol.Message) {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	kept := s.waiters[:0]
	for _, w := range s.waiters {
		if w.match == nil || w.match(m) {
			w.ch <- m
			continue
		}
		kept = append(kept, w)
	}
	clear(s.waiters[len(kept):])
	s.waiters = kept
}

func (s *Session) failWaiters() {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	s.waiters = nil
}

// Subscribe registers fn for Reconfigure events. Observers run on the reader
// goroutine, after the snapshot was replaced, in registration order. They
// must not call ReceiveOnce or Request on the same session.
func (s *Session) Subscribe(fn func(Reconfigure)) (cancel func()) {
	return s.reconfigure.add(fn)
}

// OnMessage registers fn for every decoded inbound message. It runs on the
// reader goroutine after the message was dispatched.
func (s *Session) OnMessage(fn func(protocol.Message)) (cancel func()) {
	return s.messages.add(fn)
}

// Config returns a copy of the current snapshot.
func (s *Session) Config() any {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return protocol.Clone(s.config)
}

// Seed replaces the snapshot without emitting Reconfigure. The owner uses it
// when it learns the peer's full document, for example from a NOTIFY.
func (s *Session) Seed(doc any) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.config = protocol.Clone(doc)
}

// Read asks the peer for its configuration. The peer must run with
// WithReadResponder.
func (s *Session) Read(ctx context.Context) (any, error) {
	resp, err := s.Request(ctx, s.build.Read(""))
	if err != nil {
		return nil, err
	}
	if resp.Kind != protocol.ConfigurationKind || resp.Verb != protocol.NotifyVerb {
		return nil, fmt.Errorf("%w: %s %s", ErrUnexpectedReply, resp.Kind, resp.Verb)
	}
	return resp.Data, nil
}

// Notify announces doc to the peer.
func (s *Session) Notify(ctx context.Context, doc any) error {
	return s.Send(ctx, s.build.Notify(protocol.ConfigurationKind, doc, ""))
}

// Patch sends the diff between the snapshot and next, then adopts next as
// the snapshot. No Reconfigure event is emitted for outbound patches.
func (s *Session) Patch(ctx context.Context, next any) (protocol.Message, error) {
	s.cfgMu.RLock()
	m, err := s.build.Patch(s.config, next, "", s.diffOpts...)
	s.cfgMu.RUnlock()
	if err != nil {
		return protocol.Message{}, err
	}
	if err := s.Send(ctx, m); err != nil {
		return m, err
	}
	s.Seed(next)
	return m, nil
}

// SendPatch validates ps against the snapshot, sends it and adopts the
// result.
func (s *Session) SendPatch(ctx context.Context, ps protocol.PatchSet) (protocol.Message, error) {
	next, err := protocol.Apply(s.Config(), ps)
	if err != nil {
		return protocol.Message{}, err
	}
	m := s.build.PatchOps(ps, "")
	if err := s.Send(ctx, m); err != nil {
		return m, err
	}
	s.Seed(next)
	return m, nil
}

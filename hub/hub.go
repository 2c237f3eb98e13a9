// Package hub keeps track of agents connected to a controller and exposes
// their configuration over HTTP.
package hub

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.chrisrx.dev/reconf/protocol"
	"go.chrisrx.dev/reconf/session"
)

type Peer struct {
	ID      string
	Since   time.Time
	Session *session.Session
}

// PeerInfo is the JSON view of a peer.
type PeerInfo struct {
	ID     string    `json:"id"`
	Remote string    `json:"remote"`
	State  string    `json:"state"`
	Since  time.Time `json:"since"`
}

func (p *Peer) Info() PeerInfo {
	return PeerInfo{
		ID:     p.ID,
		Remote: p.Session.Remote(),
		State:  p.Session.State().String(),
		Since:  p.Since,
	}
}

type Hub struct {
	logger         *slog.Logger
	newID          protocol.IDFunc
	sessionOpts    []session.Option
	requestTimeout time.Duration

	mu    sync.RWMutex
	peers map[string]*Peer
}

type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}

// WithIDFunc sets how peer ids are generated. ULIDs are used by default.
func WithIDFunc(fn protocol.IDFunc) Option {
	return func(h *Hub) {
		h.newID = fn
	}
}

// WithSessionOptions adds options to every accepted session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(h *Hub) {
		h.sessionOpts = append(h.sessionOpts, opts...)
	}
}

// WithRequestTimeout bounds READ round trips and outbound patches started
// from HTTP handlers.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

func New(opts ...Option) *Hub {
	h := &Hub{
		logger:         slog.Default(),
		newID:          protocol.ULID,
		requestTimeout: 5 * time.Second,
		peers:          make(map[string]*Peer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Accept upgrades r into a session and registers it as a peer. Every
// CONFIGURATION NOTIFY from the peer becomes the session snapshot, and the
// peer is removed once the session closes.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request) (*Peer, error) {
	id := h.newID()
	logger := h.logger.With(slog.String("peer", id))
	opts := append(slices.Clone(h.sessionOpts),
		session.WithLogger(logger),
		session.WithMessageObserver(seedFromNotify),
	)
	s, err := session.Accept(w, r, opts...)
	if err != nil {
		return nil, err
	}
	p := &Peer{ID: id, Since: time.Now(), Session: s}

	h.mu.Lock()
	h.peers[id] = p
	h.mu.Unlock()
	logger.Info("peer connected", slog.String("remote", s.Remote()))

	go h.watch(p, logger)
	return p, nil
}

func seedFromNotify(s *session.Session, m protocol.Message) {
	if m.Kind == protocol.ConfigurationKind && m.Verb == protocol.NotifyVerb {
		s.Seed(m.Data)
	}
}

func (h *Hub) watch(p *Peer, logger *slog.Logger) {
	for {
		select {
		case err := <-p.Session.Errors():
			logger.Warn("peer error", slog.Any("error", err))
		case <-p.Session.Done():
			h.mu.Lock()
			delete(h.peers, p.ID)
			h.mu.Unlock()
			logger.Info("peer disconnected", slog.Any("reason", p.Session.Err()))
			return
		}
	}
}

func (h *Hub) Get(id string) (*Peer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[id]
	return p, ok
}

// Peers returns the connected peers ordered by id.
func (h *Hub) Peers() []*Peer {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()
	slices.SortFunc(peers, func(a, b *Peer) int {
		return strings.Compare(a.ID, b.ID)
	})
	return peers
}

// Close ends every session.
func (h *Hub) Close() {
	for _, p := range h.Peers() {
		p.Session.Close()
	}
}

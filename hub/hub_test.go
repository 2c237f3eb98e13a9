package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"

	"go.chrisrx.dev/reconf/protocol"
	"go.chrisrx.dev/reconf/session"
)

const testTimeout = 2 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doc(t *testing.T, s string) any {
	t.Helper()
	v, err := protocol.ParseDocument([]byte(s))
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(WithLogger(testLogger()), WithRequestTimeout(time.Second))
	e := echo.New()
	e.HideBanner = true
	h.Register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

// connectAgent dials the hub, announces seed and waits until the hub has
// registered the peer with that snapshot.
func connectAgent(t *testing.T, h *Hub, srv *httptest.Server, seed any, opts ...session.Option) (*session.Session, *Peer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	addr := "ws" + strings.TrimPrefix(srv.URL, "http") + ConnectPath
	opts = append([]session.Option{
		session.WithLogger(testLogger()),
		session.WithConfig(seed),
	}, opts...)
	agent, err := session.Dial(ctx, addr, opts...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		agent.Close()
	})
	if err := agent.Notify(ctx, seed); err != nil {
		t.Fatalf("notify: %v", err)
	}

	var peer *Peer
	eventually(t, func() bool {
		peers := h.Peers()
		if len(peers) != 1 {
			return false
		}
		peer = peers[0]
		return cmp.Equal(peer.Session.Config(), seed)
	})
	return agent, peer
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func TestPeerLifecycle(t *testing.T) {
	h, srv := newTestHub(t)
	agent, peer := connectAgent(t, h, srv, doc(t, `{"a":1}`))

	status, body := do(t, http.MethodGet, srv.URL+"/peers", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	var infos []PeerInfo
	if err := json.Unmarshal(body, &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != peer.ID || infos[0].State != "OPEN" {
		t.Fatalf("unexpected peers: %+v", infos)
	}

	agent.Close()
	eventually(t, func() bool {
		return len(h.Peers()) == 0
	})
	if _, ok := h.Get(peer.ID); ok {
		t.Fatal("peer still registered after disconnect")
	}
}

func TestGetConfig(t *testing.T) {
	h, srv := newTestHub(t)
	agent, peer := connectAgent(t, h, srv, doc(t, `{"a":1}`), session.WithReadResponder())
	url := srv.URL + "/peers/" + peer.ID + "/config"

	status, body := do(t, http.MethodGet, url, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if diff := cmp.Diff(doc(t, `{"a":1}`), doc(t, string(body))); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// the agent changes locally without telling the hub
	agent.Seed(doc(t, `{"a":2}`))

	status, body = do(t, http.MethodGet, url+"?fresh=1", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if diff := cmp.Diff(doc(t, `{"a":2}`), doc(t, string(body))); diff != "" {
		t.Errorf("fresh read mismatch (-want +got):\n%s", diff)
	}
	eventually(t, func() bool {
		return cmp.Equal(peer.Session.Config(), doc(t, `{"a":2}`))
	})
}

func TestGetConfigFreshUnsupported(t *testing.T) {
	h, srv := newTestHub(t)
	_, peer := connectAgent(t, h, srv, doc(t, `{"a":1}`))

	status, body := do(t, http.MethodGet, srv.URL+"/peers/"+peer.ID+"/config?fresh=1", "")
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if !strings.Contains(string(body), string(protocol.CodeUnsupportedVerb)) {
		t.Errorf("body does not name the peer error: %s", body)
	}
}

func TestPutConfig(t *testing.T) {
	h, srv := newTestHub(t)
	events := make(chan session.Reconfigure, 4)
	_, peer := connectAgent(t, h, srv, doc(t, `{"name":"agent","limits":{"cpu":1}}`),
		session.WithSubscriber(func(r session.Reconfigure) {
			events <- r
		}),
	)

	next := `{"name":"agent","limits":{"cpu":2},"key":{"type":"Buffer","data":[1,2,3]}}`
	status, body := do(t, http.MethodPut, srv.URL+"/peers/"+peer.ID+"/config", next)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	var resp struct {
		ID    string            `json:"id"`
		Patch protocol.PatchSet `json:"patch"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" || len(resp.Patch) == 0 {
		t.Fatalf("unexpected response: %s", body)
	}

	select {
	case ev := <-events:
		if ev.ID != resp.ID {
			t.Errorf("reconfigure id = %q, want %q", ev.ID, resp.ID)
		}
		if diff := cmp.Diff(doc(t, next), ev.Config); diff != "" {
			t.Errorf("agent config mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(testTimeout):
		t.Fatal("agent was not reconfigured")
	}
	if diff := cmp.Diff(doc(t, next), peer.Session.Config()); diff != "" {
		t.Errorf("hub snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestPatchConfig(t *testing.T) {
	h, srv := newTestHub(t)
	events := make(chan session.Reconfigure, 4)
	agent, peer := connectAgent(t, h, srv, doc(t, `{"mode":"slow"}`),
		session.WithSubscriber(func(r session.Reconfigure) {
			events <- r
		}),
	)
	url := srv.URL + "/peers/" + peer.ID + "/config"

	status, body := do(t, http.MethodPatch, url, `[{"op":"replace","path":"/mode","value":"fast"}]`)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	select {
	case ev := <-events:
		if diff := cmp.Diff(doc(t, `{"mode":"fast"}`), ev.Config); diff != "" {
			t.Errorf("agent config mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(testTimeout):
		t.Fatal("agent was not reconfigured")
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"not json", `[{"op":`, http.StatusBadRequest},
		{"not a patch set", `{"op":"add"}`, http.StatusBadRequest},
		{"unknown op", `[{"op":"merge","path":"/mode"}]`, http.StatusBadRequest},
		{"failed test", `[{"op":"test","path":"/mode","value":"slow"}]`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, http.MethodPatch, url, tt.body)
			if status != tt.status {
				t.Fatalf("status = %d, want %d, body = %s", status, tt.status, body)
			}
		})
	}
	select {
	case ev := <-events:
		t.Fatalf("rejected patch reached the agent: %+v", ev)
	default:
	}
	if diff := cmp.Diff(doc(t, `{"mode":"fast"}`), agent.Config()); diff != "" {
		t.Errorf("agent config mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownPeer(t *testing.T) {
	_, srv := newTestHub(t)
	url := srv.URL + "/peers/nobody/config"
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPatch} {
		status, body := do(t, method, url, `{}`)
		if status != http.StatusNotFound {
			t.Errorf("%s: status = %d, body = %s", method, status, body)
		}
	}
}

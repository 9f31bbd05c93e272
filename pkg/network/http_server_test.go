package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pacroyale/viewer/pkg/faults"
	"github.com/pacroyale/viewer/pkg/input"
	"github.com/pacroyale/viewer/pkg/protocol"
	"github.com/pacroyale/viewer/pkg/state"
)

// MockView records calls from the handlers
type MockView struct {
	mutex     sync.Mutex
	session   int64
	moves     []protocol.Direction
	moveRes   input.Result
	createErr error
	joined    int
}

func NewMockView() *MockView {
	return &MockView{session: 1, moveRes: input.Forwarded}
}

func (m *MockView) Render() state.RenderState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return state.RenderState{ViewerID: "viewer-test", SessionID: m.session, GridSize: 23}
}

func (m *MockView) GetStats() map[string]interface{} {
	return map[string]interface{}{"mounted": true}
}

func (m *MockView) Move(dir protocol.Direction) input.Result {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.moves = append(m.moves, dir)
	return m.moveRes
}

func (m *MockView) NextSession() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.session++
	return m.session
}

func (m *MockView) PreviousSession() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.session > 1 {
		m.session--
	}
	return m.session
}

func (m *MockView) SelectSession(id int64) error {
	if id < 1 {
		return faults.Invariantf("select_session", "session id %d below minimum", id)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.session = id
	return nil
}

func (m *MockView) CreateNextSession(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.createErr
}

func (m *MockView) Join(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.joined++
	return nil
}

func (m *MockView) Moves() []protocol.Direction {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]protocol.Direction(nil), m.moves...)
}

func (m *MockView) Joined() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.joined
}

func (m *MockView) SetMoveResult(r input.Result) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.moveRes = r
}

func newTestServer(view ViewAPI) (*HTTPServer, *httptest.Server) {
	s := NewHTTPServer("viewer-test", "127.0.0.1", 0, nil)
	if view != nil {
		s.Bind(view)
	}
	return s, httptest.NewServer(s.mux)
}

func post(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func TestHTTPServer_Health(t *testing.T) {
	_, ts := newTestServer(nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "healthy" || body["viewer_id"] != "viewer-test" {
		t.Errorf("Unexpected health response %v", body)
	}
}

func TestHTTPServer_UnboundHandlersAnswer501(t *testing.T) {
	_, ts := newTestServer(nil)
	defer ts.Close()

	for _, path := range []string{"/state", "/stats", "/move", "/session"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotImplemented {
			t.Errorf("%s: expected 501, got %d", path, resp.StatusCode)
		}
		if resp.Header.Get("X-Viewer-ID") != "viewer-test" {
			t.Errorf("%s: missing X-Viewer-ID header", path)
		}
	}
}

func TestHTTPServer_State(t *testing.T) {
	_, ts := newTestServer(NewMockView())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/state")
	if err != nil {
		t.Fatalf("GET /state failed: %v", err)
	}
	defer resp.Body.Close()

	var rs state.RenderState
	if err := json.NewDecoder(resp.Body).Decode(&rs); err != nil {
		t.Fatalf("Invalid state body: %v", err)
	}
	if rs.SessionID != 1 || rs.GridSize != 23 {
		t.Errorf("Unexpected render state %+v", rs)
	}
	if resp.Header.Get("X-Message-Type") != "STATE" {
		t.Errorf("Expected X-Message-Type STATE, got %s", resp.Header.Get("X-Message-Type"))
	}
}

func TestHTTPServer_Move(t *testing.T) {
	view := NewMockView()
	_, ts := newTestServer(view)
	defer ts.Close()

	resp := post(t, ts.URL+"/move", map[string]string{"direction": "left"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", resp.StatusCode)
	}
	if moves := view.Moves(); len(moves) != 1 || moves[0] != protocol.Left {
		t.Errorf("Expected one Left move, got %v", moves)
	}

	view.SetMoveResult(input.Debounced)
	resp = post(t, ts.URL+"/move", map[string]string{"direction": "up"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Debounced move should answer 429, got %d", resp.StatusCode)
	}

	resp = post(t, ts.URL+"/move", map[string]string{"direction": "sideways"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Unknown direction should answer 400, got %d", resp.StatusCode)
	}
}

func TestHTTPServer_Session(t *testing.T) {
	view := NewMockView()
	_, ts := newTestServer(view)
	defer ts.Close()

	resp := post(t, ts.URL+"/session", map[string]string{"action": "next"})
	var rs state.RenderState
	json.NewDecoder(resp.Body).Decode(&rs)
	resp.Body.Close()
	if rs.SessionID != 2 {
		t.Errorf("Expected session 2 after next, got %d", rs.SessionID)
	}

	resp = post(t, ts.URL+"/session", map[string]interface{}{"action": "select", "id": 0})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Invalid select should answer 409, got %d", resp.StatusCode)
	}

	view.mutex.Lock()
	view.createErr = faults.Transportf("send", errors.New("relay down"))
	view.mutex.Unlock()
	resp = post(t, ts.URL+"/session", map[string]string{"action": "create"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Transport fault should answer 502, got %d", resp.StatusCode)
	}

	resp = post(t, ts.URL+"/session", map[string]string{"action": "join"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || view.Joined() != 1 {
		t.Errorf("Join should succeed, got %d (joined %d)", resp.StatusCode, view.Joined())
	}

	resp = post(t, ts.URL+"/session", map[string]string{"action": "explode"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Unknown action should answer 400, got %d", resp.StatusCode)
	}
}

func TestHTTPServer_StartAndStop(t *testing.T) {
	s := NewHTTPServer("viewer-test", "127.0.0.1", 0, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.Port() == 0 {
		t.Fatal("Port should be known after Start")
	}

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(s.Port()) + "/health")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	s, ts := newTestServer(NewMockView())
	defer ts.Close()

	s.Hub.Broadcast(state.RenderState{SessionID: 3})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rs state.RenderState
	if err := conn.ReadJSON(&rs); err != nil {
		t.Fatalf("Expected the last render on connect: %v", err)
	}
	if rs.SessionID != 3 {
		t.Errorf("Expected session 3, got %d", rs.SessionID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Hub.Broadcast(state.RenderState{SessionID: 4})
	if err := conn.ReadJSON(&rs); err != nil {
		t.Fatalf("Expected a broadcast frame: %v", err)
	}
	if rs.SessionID != 4 {
		t.Errorf("Expected session 4, got %d", rs.SessionID)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for s.Hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Hub.Clients() != 0 {
		t.Error("Closed subscriber should be removed")
	}
}

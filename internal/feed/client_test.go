package feed

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matricare/sync-client/internal/store"
	"github.com/matricare/sync-client/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// feedServer is a minimal websocket alert source for tests.
type feedServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *feedServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection arrived")
		return nil
	}
}

func newTestClient(t *testing.T, url string, delay time.Duration) (*Client, *store.StatusStore) {
	t.Helper()
	status := store.NewStatusStore(nil, zap.NewNop())
	c := NewClient(url, delay, status, zap.NewNop())
	t.Cleanup(c.Disable)
	return c, status
}

func TestEnable_DeliversValidAlerts(t *testing.T) {
	fs := newFeedServer(t)
	c, status := newTestClient(t, fs.url(), 50*time.Millisecond)

	c.Enable()
	conn := fs.waitConn(t)

	err := conn.WriteMessage(websocket.TextMessage, []byte(`{"patientId":"p1","patientName":"Amina","risk":"HIGH","message":"SpO2 below threshold"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(status.Alerts()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := status.Alerts()[0]
	assert.Equal(t, "p1", got.PatientID)
	assert.Equal(t, model.RiskLevelHigh, got.Risk)
	assert.False(t, got.ReceivedAt.IsZero(), "receivedAt defaults to arrival time")
	assert.Equal(t, StateConnected, c.State())
}

func TestEnable_DropsMalformedAndIncompleteMessages(t *testing.T) {
	fs := newFeedServer(t)
	c, status := newTestClient(t, fs.url(), 50*time.Millisecond)

	c.Enable()
	conn := fs.waitConn(t)

	bad := []string{
		`not even json`,
		`{"risk":"HIGH"}`,
		`{"patientId":"p2"}`,
		`{}`,
	}
	for _, msg := range bad {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"patientId":"p3","risk":"LOW"}`)))

	require.Eventually(t, func() bool {
		return len(status.Alerts()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "p3", status.Alerts()[0].PatientID, "only the complete message survives")
}

func TestReconnect_AfterServerClose(t *testing.T) {
	fs := newFeedServer(t)
	c, _ := newTestClient(t, fs.url(), 50*time.Millisecond)

	c.Enable()
	first := fs.waitConn(t)
	first.Close()

	second := fs.waitConn(t)
	require.NotNil(t, second, "client reconnects after the fixed delay")

	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisable_CancelsPendingReconnect(t *testing.T) {
	fs := newFeedServer(t)
	c, status := newTestClient(t, fs.url(), 100*time.Millisecond)

	c.Enable()
	conn := fs.waitConn(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"patientId":"p1","risk":"HIGH"}`)))
	require.Eventually(t, func() bool {
		return len(status.Alerts()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Drop the connection so a reconnect timer gets armed, then disable
	// while it is pending.
	conn.Close()
	require.Eventually(t, func() bool {
		return c.State() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
	c.Disable()

	assert.Empty(t, status.Alerts(), "disable clears the alert feed")

	select {
	case <-fs.conns:
		t.Fatal("no reconnect may happen after disable")
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestEnable_DisableEnableWhileDialingKeepsOneConnection(t *testing.T) {
	// A server that accepts the TCP dial but stalls the websocket upgrade
	// until released, so two dial attempts can be held in flight at once.
	gate := make(chan struct{})
	dials := make(chan struct{}, 4)
	conns := make(chan *websocket.Conn, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials <- struct{}{}
		<-gate
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, status := newTestClient(t, url, 50*time.Millisecond)

	c.Enable()
	<-dials
	c.Disable()
	c.Enable()
	<-dials

	// Both dials complete; only the second enable's attempt may keep its
	// connection, the stale one must be closed.
	close(gate)
	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	first := <-conns
	second := <-conns
	live := 0
	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			live++
		}
	}
	require.Equal(t, 1, live, "exactly one connection may survive a disable/enable during dial")

	// The surviving connection is the one feeding the sink.
	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetWriteDeadline(time.Now().Add(500 * time.Millisecond))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"patientId":"p1","risk":"HIGH"}`))
	}
	require.Eventually(t, func() bool {
		return len(status.Alerts()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, status.Alerts(), 1, "the stale connection must not deliver alerts")
}

func TestEnable_WhileConnectedIsNoOp(t *testing.T) {
	fs := newFeedServer(t)
	c, _ := newTestClient(t, fs.url(), 50*time.Millisecond)

	c.Enable()
	fs.waitConn(t)
	c.Enable()

	select {
	case <-fs.conns:
		t.Fatal("second enable must not open a second connection")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDisable_WhenNeverEnabledIsNoOp(t *testing.T) {
	fs := newFeedServer(t)
	c, _ := newTestClient(t, fs.url(), 50*time.Millisecond)

	c.Disable()
	assert.Equal(t, StateDisconnected, c.State())
}

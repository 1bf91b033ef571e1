package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zap.NewNop(), func(id string) (model.SessionSnapshot, bool) {
		if id != "s-1" {
			return model.SessionSnapshot{}, false
		}
		return model.SessionSnapshot{ID: "s-1", State: model.StateIdle}, true
	})
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_SnapshotThenEvents(t *testing.T) {
	hub, srv := newHubServer(t)
	conn := dial(t, srv, "s-1")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap model.SessionSnapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, model.StateIdle, snap.State)

	require.Eventually(t, func() bool { return hub.Clients("s-1") == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(model.SessionEvent{SessionID: "other", Seq: 9})
	hub.Broadcast(model.SessionEvent{SessionID: "s-1", Seq: 1, From: model.StateIdle, To: model.StateRequesting})

	var ev model.SessionEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.EqualValues(t, 1, ev.Seq, "events of other sessions are not delivered")
	assert.Equal(t, model.StateRequesting, ev.To)
}

func TestHub_UnknownSession(t *testing.T) {
	_, srv := newHubServer(t)
	resp, err := http.Get(srv.URL + "/ws/sessions/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHub_CloseSessionDisconnects(t *testing.T) {
	hub, srv := newHubServer(t)
	conn := dial(t, srv, "s-1")

	var snap json.RawMessage
	require.NoError(t, conn.ReadJSON(&snap))
	require.Eventually(t, func() bool { return hub.Clients("s-1") == 1 }, time.Second, 5*time.Millisecond)

	hub.CloseSession("s-1")
	assert.Equal(t, 0, hub.Clients("s-1"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHub_EventsDuringRegistrationAreNotLost(t *testing.T) {
	var hub *Hub
	var calls atomic.Int32
	hub = NewHub(zap.NewNop(), func(id string) (model.SessionSnapshot, bool) {
		if calls.Add(1) == 1 {
			return model.SessionSnapshot{ID: id, State: model.StateSigning, Seq: 3}, true
		}
		// the session moves on while the client is being registered
		hub.Broadcast(model.SessionEvent{SessionID: id, Seq: 4, From: model.StateSigning, To: model.StatePending})
		snap := model.SessionSnapshot{ID: id, State: model.StatePending, Seq: 4}
		hub.Broadcast(model.SessionEvent{SessionID: id, Seq: 5, From: model.StatePending, To: model.StateDone})
		return snap, true
	})
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "s-1")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap model.SessionSnapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, model.StatePending, snap.State)

	var ev model.SessionEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.EqualValues(t, 5, ev.Seq, "events already in the snapshot are skipped")
	assert.Equal(t, model.StateDone, ev.To)
}

func TestHub_SessionClosedDuringUpgrade(t *testing.T) {
	var calls atomic.Int32
	hub := NewHub(zap.NewNop(), func(id string) (model.SessionSnapshot, bool) {
		return model.SessionSnapshot{ID: id}, calls.Add(1) == 1
	})
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "s-1")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 0, hub.Clients("s-1"))
}

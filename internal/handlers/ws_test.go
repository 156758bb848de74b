// internal/handlers/ws_test.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/closemaster/closemaster/internal/game"
)

// wireMessage is the client-side view of any server message.
type wireMessage struct {
	Type     string          `json:"type"`
	OK       bool            `json:"ok"`
	RoomID   string          `json:"roomId"`
	PlayerID string          `json:"playerId"`
	Token    string          `json:"token"`
	Error    string          `json:"error"`
	State    *game.GameState `json:"state"`
}

func newTestServer(t *testing.T) (*httptest.Server, *testEnv) {
	t.Helper()
	e := newTestEnv(t)
	mux := http.NewServeMux()
	mux.Handle("/ws", GameWSHandler(quietLogger(), e.hub, e.d))
	mux.Handle("/", PingHandler(e.reg, e.hub))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, e
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, subprotocols ...string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: subprotocols})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

// readUntil reads messages until one has the wanted type.
func readUntil(t *testing.T, ctx context.Context, c *websocket.Conn, typ string) wireMessage {
	t.Helper()
	for {
		var msg wireMessage
		require.NoError(t, wsjson.Read(ctx, c, &msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestWebsocketRound(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(t, ctx, srv, Subprotocol)
	require.NoError(t, wsjson.Write(ctx, alice, InboundMessage{Type: "create_room", Name: "Alice", PlayerID: "alice"}))
	created := readUntil(t, ctx, alice, "create_room")
	require.True(t, created.OK)
	require.NotEmpty(t, created.Token)

	bob := dial(t, ctx, srv, Subprotocol)
	require.NoError(t, wsjson.Write(ctx, bob, InboundMessage{Type: "join_room", Name: "Bob", PlayerID: "bob", RoomID: created.RoomID}))
	joined := readUntil(t, ctx, bob, "join_room")
	require.True(t, joined.OK)

	require.NoError(t, wsjson.Write(ctx, alice, InboundMessage{Type: "start_round"}))
	for _, c := range []*websocket.Conn{alice, bob} {
		for {
			msg := readUntil(t, ctx, c, "game_state")
			require.NotNil(t, msg.State)
			if msg.State.Phase != game.PhaseInRound {
				continue
			}
			for _, p := range msg.State.Players {
				if p.ID == msg.State.YouID {
					assert.Len(t, p.Hand, game.StartCards)
				} else {
					assert.Empty(t, p.Hand)
					assert.Equal(t, game.StartCards, p.HandSize)
				}
			}
			break
		}
	}

	require.NoError(t, wsjson.Write(ctx, bob, InboundMessage{Type: "action_close"}))
	errMsg := readUntil(t, ctx, bob, "error")
	assert.Equal(t, "NotYourTurn", errMsg.Error)
}

func TestWebsocketDisconnectStartsGrace(t *testing.T) {
	srv, e := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(t, ctx, srv, Subprotocol)
	require.NoError(t, wsjson.Write(ctx, alice, InboundMessage{Type: "create_room", Name: "Alice", PlayerID: "alice"}))
	created := readUntil(t, ctx, alice, "create_room")

	bob := dial(t, ctx, srv, Subprotocol)
	require.NoError(t, wsjson.Write(ctx, bob, InboundMessage{Type: "join_room", Name: "Bob", PlayerID: "bob", RoomID: created.RoomID}))
	readUntil(t, ctx, bob, "join_room")

	bob.Close(websocket.StatusNormalClosure, "bye")
	require.Eventually(t, func() bool {
		st, err := e.reg.Snapshot(created.RoomID, "alice")
		return err == nil && len(st.Players) == 2 && !st.Players[1].Connected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketRequiresSubprotocol(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, srv)
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, BadSubprotocolError, websocket.CloseStatus(err))
}

func TestPingHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	res, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["rooms"])

	res2, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	res2.Body.Close()
	assert.Equal(t, http.StatusNotFound, res2.StatusCode)
}

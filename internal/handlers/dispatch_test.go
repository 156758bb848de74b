// internal/handlers/dispatch_test.go
package handlers

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/closemaster/closemaster/internal/auth"
	"github.com/closemaster/closemaster/internal/game"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type testEnv struct {
	hub *Hub
	reg *game.Registry
	d   *Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := quietLogger()
	signer, err := auth.NewSigner(time.Hour)
	require.NoError(t, err)
	hub := NewHub(logger)
	reg := game.NewRegistry(hub, game.WithSeed(5), game.WithLogger(logger), game.WithGracePeriod(time.Hour))
	return &testEnv{hub: hub, reg: reg, d: NewDispatcher(hub, reg, signer, logger)}
}

func (e *testEnv) connect(id string) *Client {
	c := NewClient(id, quietLogger())
	e.hub.Register(c)
	return c
}

// drain returns everything queued for c so far.
func drain(c *Client) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case msg := <-c.OutChan:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// lastOfType returns the most recent drained message with the given type.
func lastOfType(t *testing.T, msgs []map[string]interface{}, typ string) map[string]interface{} {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i]["type"] == typ {
			return msgs[i]
		}
	}
	t.Fatalf("no %q message in %v", typ, msgs)
	return nil
}

func stateOf(t *testing.T, msg map[string]interface{}) game.GameState {
	t.Helper()
	st, ok := msg["state"].(game.GameState)
	require.True(t, ok)
	return st
}

func TestCreateAndJoin(t *testing.T) {
	e := newTestEnv(t)
	host := e.connect("c1")
	e.d.Handle(host, InboundMessage{Type: "create_room", Name: "Alice", PlayerID: "p1"})

	msgs := drain(host)
	reply := lastOfType(t, msgs, "create_room")
	assert.Equal(t, true, reply["ok"])
	assert.Equal(t, "p1", reply["playerId"])
	assert.NotEmpty(t, reply["token"])
	roomID := reply["roomId"].(string)
	assert.Equal(t, roomID, stateOf(t, lastOfType(t, msgs, "game_state")).RoomID)

	guest := e.connect("c2")
	e.d.Handle(guest, InboundMessage{Type: "join_room", Name: "Bob", RoomID: roomID})
	reply = lastOfType(t, drain(guest), "join_room")
	assert.Equal(t, true, reply["ok"])
	assert.NotEmpty(t, reply["playerId"], "server assigns an id")

	st := stateOf(t, lastOfType(t, drain(host), "game_state"))
	assert.Len(t, st.Players, 2)
}

func TestSeatErrors(t *testing.T) {
	e := newTestEnv(t)
	c := e.connect("c1")

	e.d.Handle(c, InboundMessage{Type: "join_room", Name: "Bob", RoomID: "NOPE"})
	reply := lastOfType(t, drain(c), "join_room")
	assert.Equal(t, false, reply["ok"])
	assert.Equal(t, "RoomNotFound", reply["error"])

	e.d.Handle(c, InboundMessage{Type: "create_room", Name: " "})
	reply = lastOfType(t, drain(c), "create_room")
	assert.Equal(t, "InvalidName", reply["error"])

	e.d.Handle(c, InboundMessage{Type: "create_room", Name: "Alice"})
	drain(c)
	e.d.Handle(c, InboundMessage{Type: "create_room", Name: "Alice"})
	reply = lastOfType(t, drain(c), "create_room")
	assert.Equal(t, "AlreadyInRoom", reply["error"])
	assert.Equal(t, 1, e.reg.Count())
}

func TestActionErrorsGoToSenderOnly(t *testing.T) {
	e := newTestEnv(t)
	host := e.connect("c1")
	e.d.Handle(host, InboundMessage{Type: "create_room", Name: "Alice", PlayerID: "p1"})
	roomID := lastOfType(t, drain(host), "create_room")["roomId"].(string)
	guest := e.connect("c2")
	e.d.Handle(guest, InboundMessage{Type: "join_room", Name: "Bob", PlayerID: "p2", RoomID: roomID})
	drain(host)
	drain(guest)

	e.d.Handle(guest, InboundMessage{Type: "start_round"})
	errMsg := lastOfType(t, drain(guest), "error")
	assert.Equal(t, "start_round", errMsg["event"])
	assert.Equal(t, "NotHost", errMsg["error"])
	assert.Empty(t, drain(host))

	e.d.Handle(host, InboundMessage{Type: "start_round"})
	st := stateOf(t, lastOfType(t, drain(guest), "game_state"))
	assert.Equal(t, game.PhaseInRound, st.Phase)
	drain(host)

	e.d.Handle(guest, InboundMessage{Type: "action_draw"})
	assert.Equal(t, "NotYourTurn", lastOfType(t, drain(guest), "error")["error"])

	e.d.Handle(host, InboundMessage{Type: "action_drop", SelectedIDs: []int{-1}})
	assert.Equal(t, "CardNotInHand", lastOfType(t, drain(host), "error")["error"])

	e.d.Handle(host, InboundMessage{Type: "action_draw"})
	st = stateOf(t, lastOfType(t, drain(host), "game_state"))
	assert.True(t, st.HasDrawn)

	e.d.Handle(host, InboundMessage{Type: "action_close"})
	assert.Equal(t, "CloseAfterDraw", lastOfType(t, drain(host), "error")["error"])
}

func TestActionWithoutSeat(t *testing.T) {
	e := newTestEnv(t)
	c := e.connect("c1")
	e.d.Handle(c, InboundMessage{Type: "action_draw"})
	msg := lastOfType(t, drain(c), "error")
	assert.Equal(t, "NotInRoom", msg["error"])

	e.d.Handle(c, InboundMessage{Type: "leave_room"})
	assert.Equal(t, "NotInRoom", lastOfType(t, drain(c), "leave_room")["error"])
}

func TestPingAndUnknown(t *testing.T) {
	e := newTestEnv(t)
	c := e.connect("c1")
	e.d.Handle(c, InboundMessage{Type: "ping"})
	e.d.Handle(c, InboundMessage{Type: "dance"})
	msgs := drain(c)
	require.Len(t, msgs, 2)
	assert.Equal(t, "pong", msgs[0]["type"])
	assert.Equal(t, "UnknownType", msgs[1]["error"])
}

func TestRejoinWithToken(t *testing.T) {
	e := newTestEnv(t)
	host := e.connect("c1")
	e.d.Handle(host, InboundMessage{Type: "create_room", Name: "Alice", PlayerID: "p1"})
	roomID := lastOfType(t, drain(host), "create_room")["roomId"].(string)

	guest := e.connect("c2")
	e.d.Handle(guest, InboundMessage{Type: "join_room", Name: "Bob", PlayerID: "p2", RoomID: roomID})
	token := lastOfType(t, drain(guest), "join_room")["token"].(string)
	e.d.Handle(host, InboundMessage{Type: "start_round"})
	drain(host)

	// Connection drops.
	e.d.Disconnect(guest)
	e.hub.Unregister(guest)
	st := stateOf(t, lastOfType(t, drain(host), "game_state"))
	assert.False(t, st.Players[1].Connected)

	imposter := e.connect("c3")
	e.d.Handle(imposter, InboundMessage{Type: "rejoin_room", Token: "garbage"})
	assert.Equal(t, "InvalidToken", lastOfType(t, drain(imposter), "rejoin_room")["error"])

	back := e.connect("c4")
	e.d.Handle(back, InboundMessage{Type: "rejoin_room", Token: token, RoomID: roomID})
	msgs := drain(back)
	reply := lastOfType(t, msgs, "rejoin_room")
	assert.Equal(t, true, reply["ok"])
	assert.Equal(t, "p2", reply["playerId"])

	st = stateOf(t, lastOfType(t, msgs, "game_state"))
	assert.Equal(t, "p2", st.YouID)
	assert.Len(t, st.Players[1].Hand, game.StartCards)
	assert.True(t, st.Players[1].Connected)

	// The stale connection's late disconnect does not unseat the new one.
	e.d.Disconnect(guest)
	snap, err := e.reg.Snapshot(roomID, "p2")
	require.NoError(t, err)
	assert.True(t, snap.Players[1].Connected)
}

func TestRejoinReleasesLiveConnection(t *testing.T) {
	e := newTestEnv(t)
	host := e.connect("c1")
	e.d.Handle(host, InboundMessage{Type: "create_room", Name: "Alice", PlayerID: "p1"})
	roomID := lastOfType(t, drain(host), "create_room")["roomId"].(string)

	guest := e.connect("c2")
	e.d.Handle(guest, InboundMessage{Type: "join_room", Name: "Bob", PlayerID: "p2", RoomID: roomID})
	token := lastOfType(t, drain(guest), "join_room")["token"].(string)

	// The token is replayed while the original socket is still open.
	other := e.connect("c3")
	e.d.Handle(other, InboundMessage{Type: "rejoin_room", Token: token})
	assert.Equal(t, true, lastOfType(t, drain(other), "rejoin_room")["ok"])

	taken := lastOfType(t, drain(guest), "seat_taken")
	assert.Equal(t, roomID, taken["roomId"])
	_, _, seated := guest.Seat()
	assert.False(t, seated)

	e.d.Handle(guest, InboundMessage{Type: "leave_room"})
	reply := lastOfType(t, drain(guest), "leave_room")
	assert.Equal(t, false, reply["ok"])
	assert.Equal(t, "NotInRoom", reply["error"])

	// A displaced socket that still believes it is seated is refused by the room.
	guest.setSeat(roomID, "p2")
	e.d.Handle(guest, InboundMessage{Type: "update_rules", Rules: map[string]interface{}{}})
	assert.Equal(t, "NotInRoom", lastOfType(t, drain(guest), "error")["error"])
	e.d.Handle(guest, InboundMessage{Type: "leave_room"})
	assert.Equal(t, "NotInRoom", lastOfType(t, drain(guest), "leave_room")["error"])

	snap, err := e.reg.Snapshot(roomID, "p2")
	require.NoError(t, err)
	require.Len(t, snap.Players, 2)
	assert.True(t, snap.Players[1].Connected)

	// Closing the displaced socket leaves the new holder online.
	e.d.Disconnect(guest)
	snap, err = e.reg.Snapshot(roomID, "p2")
	require.NoError(t, err)
	assert.True(t, snap.Players[1].Connected)
}

func TestTokenOfRemovedSeatRejected(t *testing.T) {
	e := newTestEnv(t)
	host := e.connect("c1")
	e.d.Handle(host, InboundMessage{Type: "create_room", Name: "Alice", PlayerID: "p1"})
	roomID := lastOfType(t, drain(host), "create_room")["roomId"].(string)

	first := e.connect("c2")
	e.d.Handle(first, InboundMessage{Type: "join_room", Name: "Bob", PlayerID: "shared", RoomID: roomID})
	token := lastOfType(t, drain(first), "join_room")["token"].(string)
	e.d.Handle(first, InboundMessage{Type: "leave_room"})
	require.Equal(t, true, lastOfType(t, drain(first), "leave_room")["ok"])

	second := e.connect("c3")
	e.d.Handle(second, InboundMessage{Type: "join_room", Name: "Carol", PlayerID: "shared", RoomID: roomID})
	require.Equal(t, true, lastOfType(t, drain(second), "join_room")["ok"])

	thief := e.connect("c4")
	e.d.Handle(thief, InboundMessage{Type: "rejoin_room", Token: token})
	reply := lastOfType(t, drain(thief), "rejoin_room")
	assert.Equal(t, false, reply["ok"])
	assert.Equal(t, "InvalidToken", reply["error"])
	_, _, seated := thief.Seat()
	assert.False(t, seated)

	_, _, seated = second.Seat()
	assert.True(t, seated, "the new holder keeps the seat")
}

func TestLeaveRoom(t *testing.T) {
	e := newTestEnv(t)
	c := e.connect("c1")
	e.d.Handle(c, InboundMessage{Type: "create_room", Name: "Alice"})
	drain(c)

	e.d.Handle(c, InboundMessage{Type: "leave_room"})
	assert.Equal(t, true, lastOfType(t, drain(c), "leave_room")["ok"])
	assert.Equal(t, 0, e.reg.Count())

	_, _, seated := c.Seat()
	assert.False(t, seated)
}

func TestClientWriteAfterClose(t *testing.T) {
	c := NewClient("c1", quietLogger())
	c.Close()
	assert.False(t, c.Write(map[string]interface{}{"type": "pong"}))
	c.Close()
}

func TestClientWriteDropsWhenFull(t *testing.T) {
	c := NewClient("c1", quietLogger())
	for i := 0; i < outBufferSize; i++ {
		require.True(t, c.Write(map[string]interface{}{"type": "pong"}))
	}
	assert.False(t, c.Write(map[string]interface{}{"type": "pong"}))
}

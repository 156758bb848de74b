// internal/game/helpers_test.go
package game

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/closemaster/closemaster/internal/models"
)

// newTestRoom seats n connected players (p1..pn) in a lobby room with p1 as host.
func newTestRoom(t *testing.T, n int) *Room {
	t.Helper()
	host := models.NewPlayer("p1", "P1", "c1")
	r := newRoom("TEST", host, DefaultRules(), rand.New(rand.NewSource(42)))
	for i := 2; i <= n; i++ {
		id := fmt.Sprintf("p%d", i)
		require.NoError(t, r.addPlayer(models.NewPlayer(id, fmt.Sprintf("P%d", i), "c"+id[1:])))
	}
	return r
}

// startTestRound starts a round and rigs the open card to a neutral 5 so
// tests control pending effects explicitly.
func startTestRound(t *testing.T, r *Room) {
	t.Helper()
	require.NoError(t, r.StartRound(r.HostID))
	setOpen(t, r, models.Rank5)
	r.PendingDraw = 0
	r.PendingSkips = 0
}

// pullRank removes one card of the given rank from the draw pile. When the
// draw pile has none left it takes one from a hand, paying that hand back
// with a draw pile card of another rank.
func pullRank(t *testing.T, r *Room, rank models.Rank) *models.Card {
	t.Helper()
	if c := takeFromDrawPile(r, func(c *models.Card) bool { return c.Rank == rank }); c != nil {
		return c
	}
	for _, p := range r.Players {
		for i, c := range p.Hand {
			if c.Rank != rank {
				continue
			}
			repl := takeFromDrawPile(r, func(c *models.Card) bool { return c.Rank != rank })
			require.NotNil(t, repl)
			p.Hand[i] = repl
			return c
		}
	}
	t.Fatalf("no %s left to pull", rank)
	return nil
}

func takeFromDrawPile(r *Room, match func(*models.Card) bool) *models.Card {
	for i, c := range r.Deck.DrawPile {
		if match(c) {
			r.Deck.DrawPile = append(r.Deck.DrawPile[:i], r.Deck.DrawPile[i+1:]...)
			return c
		}
	}
	return nil
}

// setHand replaces a player's hand with cards of the given ranks, trading
// through the draw pile so the card count stays intact.
func setHand(t *testing.T, r *Room, playerID string, ranks ...models.Rank) []*models.Card {
	t.Helper()
	p := r.Player(playerID)
	require.NotNil(t, p)
	r.Deck.ReturnToBottom(p.Hand...)
	p.Hand = []*models.Card{}
	hand := make([]*models.Card, 0, len(ranks))
	for _, rank := range ranks {
		hand = append(hand, pullRank(t, r, rank))
	}
	p.Hand = hand
	require.NoError(t, r.CheckInvariant())
	return hand
}

// setOpen swaps the discard pile for a single card of the given rank.
func setOpen(t *testing.T, r *Room, rank models.Rank) *models.Card {
	t.Helper()
	r.Deck.ReturnToBottom(r.Deck.DiscardPile...)
	r.Deck.DiscardPile = []*models.Card{}
	c := pullRank(t, r, rank)
	r.Deck.Discard(c)
	return c
}

func ids(cards ...*models.Card) []int {
	out := make([]int, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

type delivery struct {
	ConnID string
	Event  string
	State  GameState
}

// fakeTransport records every push.
type fakeTransport struct {
	mu   sync.Mutex
	sent []delivery
}

func (f *fakeTransport) Deliver(connID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, _ := payload.(GameState)
	f.sent = append(f.sent, delivery{ConnID: connID, Event: event, State: st})
}

func (f *fakeTransport) last(connID string) (GameState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].ConnID == connID {
			return f.sent[i].State, true
		}
	}
	return GameState{}, false
}

func (f *fakeTransport) count(connID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.sent {
		if d.ConnID == connID {
			n++
		}
	}
	return n
}

// manualClock fires timers only when Advance is called.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due callbacks synchronously.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

// pending reports how many timers are still armed.
func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

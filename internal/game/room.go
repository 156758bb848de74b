// internal/game/room.go
package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/closemaster/closemaster/internal/models"
)

// Phase is the coarse room lifecycle.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseInRound Phase = "in_round"
)

// TurnState is scoped to the room: only the turn holder can move it.
type TurnState string

const (
	TurnNone         TurnState = ""
	TurnAwaitingDraw TurnState = "awaiting_draw"
	TurnAwaitingDrop TurnState = "awaiting_drop"
)

// Room is one table. All fields are guarded by Mu; the registry locks it for
// the full length of each inbound intent, snapshot push included.
type Room struct {
	ID      string
	HostID  string
	Players []*models.Player
	Phase   Phase
	Rules   Rules

	Deck         *Deck
	TurnPlayerID string
	Turn         TurnState
	PendingSkips int
	PendingDraw  int

	RoundNumber    int
	roundStartedAt time.Time
	LastRound      *models.RoundRecord

	log []string
	rng *rand.Rand

	// closed is set once the roster empties; a closed room accepts nothing.
	closed bool
	// graceGen invalidates grace timers that fire after a reconnect.
	graceGen    map[string]int
	graceTimers map[string]Timer

	Mu sync.Mutex
}

func newRoom(id string, host *models.Player, rules Rules, rng *rand.Rand) *Room {
	return &Room{
		ID:          id,
		HostID:      host.ID,
		Players:     []*models.Player{host},
		Phase:       PhaseLobby,
		Rules:       rules,
		rng:         rng,
		graceGen:    make(map[string]int),
		graceTimers: make(map[string]Timer),
	}
}

// Player looks up a seated player by logical id.
func (r *Room) Player(id string) *models.Player {
	if i := r.playerIndex(id); i >= 0 {
		return r.Players[i]
	}
	return nil
}

// holds reports whether the actor is seated here and, when it names a
// connection, whether that connection still owns the seat.
func (r *Room) holds(actor Seat) bool {
	p := r.Player(actor.PlayerID)
	if p == nil {
		return false
	}
	return actor.ConnID == "" || p.ConnID == actor.ConnID
}

func (r *Room) playerIndex(id string) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Log returns a copy of the bounded event log.
func (r *Room) Log() []string {
	out := make([]string, len(r.log))
	copy(out, r.log)
	return out
}

func (r *Room) logf(format string, args ...interface{}) {
	r.log = append(r.log, fmt.Sprintf(format, args...))
	if over := len(r.log) - LogLimit; over > 0 {
		r.log = append(r.log[:0], r.log[over:]...)
	}
}

// CardCount sums both piles and every hand.
func (r *Room) CardCount() int {
	n := 0
	if r.Deck != nil {
		n += r.Deck.Size()
	}
	for _, p := range r.Players {
		n += len(p.Hand)
	}
	return n
}

// CheckInvariant verifies that an in-round room still accounts for the
// whole card set, with no card held in two places.
func (r *Room) CheckInvariant() error {
	if r.Phase != PhaseInRound {
		return nil
	}
	seen := make(map[int]struct{}, DeckSize)
	count := func(cards []*models.Card) bool {
		for _, c := range cards {
			if _, dup := seen[c.ID]; dup {
				return false
			}
			seen[c.ID] = struct{}{}
		}
		return true
	}
	ok := count(r.Deck.DrawPile) && count(r.Deck.DiscardPile)
	for _, p := range r.Players {
		ok = ok && count(p.Hand)
	}
	if got := r.CardCount(); !ok || got != DeckSize {
		return &InvariantError{RoomID: r.ID, Want: DeckSize, Got: got}
	}
	return nil
}

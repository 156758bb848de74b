// internal/game/turn.go
package game

import (
	"time"

	"github.com/closemaster/closemaster/internal/models"
)

// The methods below assume the room lock is held. Each one validates fully
// before touching state, so a rejected intent leaves the room as it was.

// StartRound deals a fresh round. Only the host may call it.
func (r *Room) StartRound(actorID string) error {
	if r.Phase != PhaseLobby {
		return ErrRoundInProgress
	}
	if r.playerIndex(actorID) < 0 {
		return ErrNotInRoom
	}
	if actorID != r.HostID {
		return ErrNotHost
	}
	if len(r.Players) < 2 {
		return ErrInsufficientPlayers
	}

	r.Deck = NewDeck(r.rng)
	r.PendingDraw = 0
	r.PendingSkips = 0
	for _, p := range r.Players {
		p.Hand = make([]*models.Card, 0, r.Rules.StartCards)
		p.HasDrawn = false
	}

	for i := 0; i < r.Rules.StartCards; i++ {
		for _, p := range r.Players {
			card, err := r.Deck.DrawTop()
			if err != nil {
				break
			}
			p.Hand = append(p.Hand, card)
		}
	}

	r.Phase = PhaseInRound
	r.RoundNumber++
	r.roundStartedAt = time.Now()
	r.setTurn(0)

	open, err := r.Deck.DrawTop()
	if err != nil {
		// unreachable with rule limits: at most 49 cards are dealt
		r.logf("Round %d started with no open card", r.RoundNumber)
		return nil
	}
	r.Deck.Discard(open)
	r.logf("Round %d started! Open card: %s", r.RoundNumber, open)
	switch open.Rank {
	case models.Rank7:
		r.PendingDraw = 2
		r.logf("Open card 7: %s must draw 2", r.Players[0].Name)
	case models.RankJack:
		r.PendingSkips = 1
		r.logf("Open card J: next turn skips a player")
	}
	return nil
}

// checkTurn gates every in-round action on phase and turn ownership.
func (r *Room) checkTurn(actorID string) (*models.Player, error) {
	if r.Phase != PhaseInRound {
		return nil, ErrRoundNotActive
	}
	p := r.Player(actorID)
	if p == nil {
		return nil, ErrNotInRoom
	}
	if r.TurnPlayerID != actorID {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

// Draw takes the pending forced-draw count, or one card, into the actor's
// hand. It returns how many cards were actually drawn; fewer than asked means
// the piles ran dry, which is not an error.
func (r *Room) Draw(actorID string, fromDiscard bool) (int, error) {
	p, err := r.checkTurn(actorID)
	if err != nil {
		return 0, err
	}
	if p.HasDrawn || r.Turn != TurnAwaitingDraw {
		return 0, ErrAlreadyDrawn
	}

	want := 1
	if r.PendingDraw > 0 {
		want = r.PendingDraw
	}
	useDiscard := fromDiscard && r.Rules.AllowDrawFromDiscard

	drawn := 0
	for i := 0; i < want; i++ {
		if useDiscard {
			if card, ok := r.Deck.TakeDiscard(); ok {
				p.Hand = append(p.Hand, card)
				drawn++
				continue
			}
		}
		card, err := r.Deck.DrawTop()
		if err != nil {
			r.logf("No cards left to draw for %s", p.Name)
			break
		}
		p.Hand = append(p.Hand, card)
		drawn++
	}

	if want > 1 {
		r.logf("%s drew %d cards (forced)", p.Name, drawn)
	} else {
		r.logf("%s drew a card", p.Name)
	}
	p.HasDrawn = true
	r.PendingDraw = 0
	r.Turn = TurnAwaitingDrop
	return drawn, nil
}

// Drop discards one or more same-rank cards from the actor's hand in the
// order they were selected. An emptied hand closes the round on the spot and
// the returned record is non-nil.
func (r *Room) Drop(actorID string, selectedIDs []int) (*models.RoundRecord, error) {
	p, err := r.checkTurn(actorID)
	if err != nil {
		return nil, err
	}

	selected := make([]*models.Card, 0, len(selectedIDs))
	seen := make(map[int]struct{}, len(selectedIDs))
	for _, id := range selectedIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		card, ok := p.FindCard(id)
		if !ok {
			return nil, ErrCardNotInHand
		}
		selected = append(selected, card)
	}
	if len(selected) == 0 {
		return nil, ErrEmptySelection
	}
	rank := selected[0].Rank
	for _, c := range selected[1:] {
		if c.Rank != rank {
			return nil, ErrMixedRanks
		}
	}
	open := r.Deck.OpenCard()
	matchesOpen := open != nil && open.Rank == rank
	if !p.HasDrawn && !matchesOpen {
		return nil, ErrMustDrawFirst
	}

	p.RemoveCards(selected)
	r.Deck.Discard(selected...)
	n := len(selected)
	switch rank {
	case models.RankJack:
		r.PendingSkips += n
		r.logf("%s dropped %dx J: skipping next players", p.Name, n)
	case models.Rank7:
		r.PendingDraw += 2 * n
		r.logf("%s dropped %dx 7: next player draws %d", p.Name, n, r.PendingDraw)
	default:
		r.logf("%s dropped %dx %s", p.Name, n, rank)
	}
	p.HasDrawn = false

	if len(p.Hand) == 0 {
		r.logf("%s emptied their hand", p.Name)
		return r.settle(p, true), nil
	}
	r.advanceTurn()
	return nil, nil
}

// Close ends the round and scores it with the actor as closer. It is only
// allowed before the actor draws.
func (r *Room) Close(actorID string) (*models.RoundRecord, error) {
	p, err := r.checkTurn(actorID)
	if err != nil {
		return nil, err
	}
	if p.HasDrawn || r.Turn != TurnAwaitingDraw {
		return nil, ErrCloseAfterDraw
	}
	return r.settle(p, false), nil
}

// advanceTurn moves the pointer 1+PendingSkips seats and consumes the skips.
func (r *Room) advanceTurn() {
	n := len(r.Players)
	if n == 0 {
		return
	}
	idx := r.playerIndex(r.TurnPlayerID)
	if idx < 0 {
		idx = 0
	}
	steps := 1 + r.PendingSkips
	r.PendingSkips = 0
	if n == 2 && r.Rules.ClampHeadsUpSkips {
		steps = 1
	}
	next := (idx + steps) % n
	r.logf("Turn: %s -> %s", r.Players[idx].Name, r.Players[next].Name)
	r.setTurn(next)
}

func (r *Room) setTurn(index int) {
	r.TurnPlayerID = r.Players[index].ID
	r.Turn = TurnAwaitingDraw
	for _, p := range r.Players {
		p.HasDrawn = false
	}
}

// addPlayer seats a new player at the end of the rotation.
func (r *Room) addPlayer(p *models.Player) error {
	if r.Phase != PhaseLobby {
		return ErrRoundInProgress
	}
	if r.playerIndex(p.ID) >= 0 {
		return ErrAlreadyInRoom
	}
	if len(r.Players) >= r.Rules.MaxPlayers {
		return ErrRoomFull
	}
	r.Players = append(r.Players, p)
	r.logf("%s joined the room", p.Name)
	return nil
}

// removePlayer unseats a player for good and reports whether the roster is
// now empty. A removed hand goes under the draw pile so the round keeps its
// full card set; pending skip and draw counters are left alone.
func (r *Room) removePlayer(id string) (empty bool) {
	idx := r.playerIndex(id)
	if idx < 0 {
		return len(r.Players) == 0
	}
	gone := r.Players[idx]
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	r.logf("%s left", gone.Name)

	if r.Phase == PhaseInRound {
		r.Deck.ReturnToBottom(gone.Hand...)
	}
	gone.Hand = nil

	if len(r.Players) == 0 {
		r.closed = true
		return true
	}

	next := idx % len(r.Players)
	if r.HostID == id {
		r.HostID = r.Players[next].ID
		r.logf("New host: %s", r.Players[next].Name)
	}

	if r.Phase != PhaseInRound {
		return false
	}
	if len(r.Players) < 2 {
		r.abortRound()
		return false
	}
	if r.TurnPlayerID == id {
		for i := 0; i < len(r.Players); i++ {
			cand := (next + i) % len(r.Players)
			if r.Players[cand].Connected {
				next = cand
				break
			}
		}
		r.logf("Turn passes to %s", r.Players[next].Name)
		r.setTurn(next)
	}
	return false
}

// abortRound drops an unplayable round without scoring it.
func (r *Room) abortRound() {
	r.logf("Round %d abandoned: not enough players", r.RoundNumber)
	r.resetTable()
}

func (r *Room) resetTable() {
	for _, p := range r.Players {
		p.Hand = []*models.Card{}
		p.HasDrawn = false
	}
	r.Deck = nil
	r.Phase = PhaseLobby
	r.TurnPlayerID = ""
	r.Turn = TurnNone
	r.PendingDraw = 0
	r.PendingSkips = 0
}

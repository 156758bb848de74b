// internal/game/settlement.go
package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/closemaster/closemaster/internal/models"
)

// Settlement is the scored outcome of a close.
type Settlement struct {
	Deltas  map[string]int
	Correct bool
	Lowest  int
	Highest int
}

// Settle scores hands at close. totals is keyed by player id. A correct
// close leaves every player on the lowest total at 0 and charges the rest
// their own totals; an incorrect closer is charged twice the highest total
// instead, while the true lowest still scores 0.
func Settle(closerID string, totals map[string]int, autoClose bool) Settlement {
	var lowest, highest int
	first := true
	for _, t := range totals {
		if first || t < lowest {
			lowest = t
		}
		if first || t > highest {
			highest = t
		}
		first = false
	}

	correct := autoClose || totals[closerID] == lowest
	deltas := make(map[string]int, len(totals))
	for id, t := range totals {
		switch {
		case id == closerID && !correct:
			deltas[id] = 2 * highest
		case t == lowest:
			deltas[id] = 0
		default:
			deltas[id] = t
		}
	}
	return Settlement{Deltas: deltas, Correct: correct, Lowest: lowest, Highest: highest}
}

// settle applies Settle to the room, records the round and returns the
// table to the lobby. Scores are the only thing carried into the next round.
func (r *Room) settle(closer *models.Player, autoClose bool) *models.RoundRecord {
	totals := make(map[string]int, len(r.Players))
	for _, p := range r.Players {
		totals[p.ID] = p.HandTotal()
	}
	s := Settle(closer.ID, totals, autoClose)

	rec := &models.RoundRecord{
		RoundID:      uuid.New(),
		RoomID:       r.ID,
		RoundNumber:  r.RoundNumber,
		CloserID:     closer.ID,
		CorrectClose: s.Correct,
		AutoClose:    autoClose,
		Lowest:       s.Lowest,
		Highest:      s.Highest,
		Results:      make([]models.PlayerResult, 0, len(r.Players)),
		StartedAt:    r.roundStartedAt,
		EndedAt:      time.Now(),
	}
	for _, p := range r.Players {
		p.Score += s.Deltas[p.ID]
		rec.Results = append(rec.Results, models.PlayerResult{
			PlayerID:  p.ID,
			Name:      p.Name,
			HandTotal: totals[p.ID],
			Delta:     s.Deltas[p.ID],
			Score:     p.Score,
		})
	}

	if s.Correct {
		r.logf("%s called CLOSE with %d pts: correct", closer.Name, totals[closer.ID])
	} else {
		r.logf("%s called CLOSE with %d pts: wrong, +%d penalty", closer.Name, totals[closer.ID], 2*s.Highest)
	}
	r.LastRound = rec
	r.resetTable()
	return rec
}

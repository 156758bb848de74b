// internal/game/sync_state.go
package game

import (
	"github.com/closemaster/closemaster/internal/models"
)

// PlayerState is one seat as seen by the requesting player. Hand is filled
// for the requester only; everyone else is reduced to HandSize.
type PlayerState struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Score     int           `json:"score"`
	HandSize  int           `json:"handSize"`
	Hand      []models.Card `json:"hand,omitempty"`
	HasDrawn  bool          `json:"hasDrawn"`
	Connected bool          `json:"connected"`
	IsHost    bool          `json:"isHost"`
	IsTurn    bool          `json:"isTurn"`
}

// GameState is the payload of the per-player game_state push.
type GameState struct {
	RoomID                string              `json:"roomId"`
	HostID                string              `json:"hostId"`
	YouID                 string              `json:"youId"`
	Phase                 Phase               `json:"phase"`
	Round                 int                 `json:"round"`
	TurnPlayerID          string              `json:"turnId,omitempty"`
	TurnState             TurnState           `json:"turnState,omitempty"`
	DiscardTop            *models.Card        `json:"discardTop,omitempty"`
	DrawPileSize          int                 `json:"drawPileSize"`
	DiscardSize           int                 `json:"discardSize"`
	PendingDraw           int                 `json:"pendingDraw"`
	PendingSkips          int                 `json:"pendingSkips"`
	HasDrawn              bool                `json:"hasDrawn"`
	MatchingOpenCardCount int                 `json:"matchingOpenCardCount"`
	Players               []PlayerState       `json:"players"`
	Log                   []string            `json:"log"`
	Rules                 Rules               `json:"rules"`
	LastRound             *models.RoundRecord `json:"lastRound,omitempty"`
}

// StateFor builds the snapshot for one player. Assumes the room lock is held.
func (r *Room) StateFor(playerID string) GameState {
	st := GameState{
		RoomID:       r.ID,
		HostID:       r.HostID,
		YouID:        playerID,
		Phase:        r.Phase,
		Round:        r.RoundNumber,
		TurnPlayerID: r.TurnPlayerID,
		TurnState:    r.Turn,
		PendingDraw:  r.PendingDraw,
		PendingSkips: r.PendingSkips,
		Rules:        r.Rules,
		LastRound:    r.LastRound,
		Players:      make([]PlayerState, 0, len(r.Players)),
	}

	if r.Deck != nil {
		st.DrawPileSize = len(r.Deck.DrawPile)
		st.DiscardSize = len(r.Deck.DiscardPile)
		if top := r.Deck.OpenCard(); top != nil {
			c := *top
			st.DiscardTop = &c
		}
	}

	for _, p := range r.Players {
		ps := PlayerState{
			ID:        p.ID,
			Name:      p.Name,
			Score:     p.Score,
			HandSize:  len(p.Hand),
			HasDrawn:  p.HasDrawn,
			Connected: p.Connected,
			IsHost:    p.ID == r.HostID,
			IsTurn:    p.ID == r.TurnPlayerID,
		}
		if p.ID == playerID {
			ps.Hand = make([]models.Card, len(p.Hand))
			for i, c := range p.Hand {
				ps.Hand[i] = *c
			}
			st.HasDrawn = p.HasDrawn
			if st.DiscardTop != nil {
				st.MatchingOpenCardCount = p.CountRank(st.DiscardTop.Rank)
			}
		}
		st.Players = append(st.Players, ps)
	}

	lines := r.log
	if len(lines) > SnapshotLogLines {
		lines = lines[len(lines)-SnapshotLogLines:]
	}
	st.Log = append([]string{}, lines...)
	return st
}

package models

import "github.com/google/uuid"

// Player is a seat in a room. ID is the stable logical identity supplied by
// the client; ConnID is the current transport handle and may be swapped on
// reconnect. SeatKey is minted once per seat, so a reused ID never inherits
// an earlier seat's tokens.
type Player struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Hand      []*Card `json:"-"`
	Score     int     `json:"score"`
	HasDrawn  bool    `json:"hasDrawn"`
	Connected bool    `json:"connected"`
	ConnID    string  `json:"-"`
	SeatKey   string  `json:"-"`
}

func NewPlayer(id, name, connID string) *Player {
	return &Player{
		ID:        id,
		Name:      name,
		Hand:      []*Card{},
		Connected: true,
		ConnID:    connID,
		SeatKey:   uuid.NewString(),
	}
}

// HandTotal sums the value of every card held.
func (p *Player) HandTotal() int {
	total := 0
	for _, c := range p.Hand {
		total += c.Value
	}
	return total
}

// FindCard returns the card with the given id if it is in the hand.
func (p *Player) FindCard(id int) (*Card, bool) {
	for _, c := range p.Hand {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// RemoveCards drops the given cards from the hand, keeping the order of the rest.
func (p *Player) RemoveCards(cards []*Card) {
	drop := make(map[int]struct{}, len(cards))
	for _, c := range cards {
		drop[c.ID] = struct{}{}
	}
	kept := p.Hand[:0]
	for _, c := range p.Hand {
		if _, ok := drop[c.ID]; !ok {
			kept = append(kept, c)
		}
	}
	p.Hand = kept
}

// CountRank reports how many held cards share the given rank.
func (p *Player) CountRank(r Rank) int {
	n := 0
	for _, c := range p.Hand {
		if c.Rank == r {
			n++
		}
	}
	return n
}

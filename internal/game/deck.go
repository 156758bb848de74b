package game

import (
	"math/rand"
	"sync/atomic"

	"github.com/closemaster/closemaster/internal/models"
)

// DeckSize is the full card set for a round: 52 ranked cards plus 2 jokers.
const DeckSize = 54

var cardSeq atomic.Int64

// BuildCards enumerates a fresh 54-card set. Ids come from a process-wide
// sequence so no two cards ever share one, even across rooms and rounds.
func BuildCards() []*models.Card {
	cards := make([]*models.Card, 0, DeckSize)
	for _, suit := range models.Suits {
		for _, rank := range models.Ranks {
			cards = append(cards, &models.Card{
				ID:    int(cardSeq.Add(1)),
				Rank:  rank,
				Suit:  suit,
				Value: models.RankValue(rank),
			})
		}
	}
	for i := 0; i < 2; i++ {
		cards = append(cards, &models.Card{
			ID:    int(cardSeq.Add(1)),
			Rank:  models.RankJoker,
			Value: 0,
		})
	}
	return cards
}

// Shuffle permutes cards in place (Fisher-Yates).
func Shuffle(rng *rand.Rand, cards []*models.Card) {
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// Deck holds the two shared piles of a round. The last element of each
// slice is its top.
type Deck struct {
	DrawPile    []*models.Card
	DiscardPile []*models.Card

	rng *rand.Rand
}

// NewDeck builds and shuffles a full set into the draw pile.
func NewDeck(rng *rand.Rand) *Deck {
	cards := BuildCards()
	Shuffle(rng, cards)
	return &Deck{
		DrawPile:    cards,
		DiscardPile: []*models.Card{},
		rng:         rng,
	}
}

// Size counts the cards in both piles.
func (d *Deck) Size() int {
	return len(d.DrawPile) + len(d.DiscardPile)
}

// OpenCard returns the exposed top of the discard pile, or nil.
func (d *Deck) OpenCard() *models.Card {
	if len(d.DiscardPile) == 0 {
		return nil
	}
	return d.DiscardPile[len(d.DiscardPile)-1]
}

// Replenish refills an empty draw pile from the discard pile, keeping the
// open card in place. It reports whether the draw pile can now supply a card.
func (d *Deck) Replenish() bool {
	if len(d.DrawPile) > 0 {
		return true
	}
	if len(d.DiscardPile) <= 1 {
		return false
	}
	top := d.DiscardPile[len(d.DiscardPile)-1]
	rest := d.DiscardPile[:len(d.DiscardPile)-1]
	Shuffle(d.rng, rest)
	d.DrawPile = rest
	d.DiscardPile = []*models.Card{top}
	return true
}

// DrawTop pops the top of the draw pile, replenishing first when needed.
func (d *Deck) DrawTop() (*models.Card, error) {
	if !d.Replenish() {
		return nil, ErrPilesExhausted
	}
	n := len(d.DrawPile) - 1
	card := d.DrawPile[n]
	d.DrawPile = d.DrawPile[:n]
	return card, nil
}

// TakeDiscard pops the open card. The discard pile is never emptied this
// way: with one card left the caller has to draw from the draw pile.
func (d *Deck) TakeDiscard() (*models.Card, bool) {
	if len(d.DiscardPile) <= 1 {
		return nil, false
	}
	n := len(d.DiscardPile) - 1
	card := d.DiscardPile[n]
	d.DiscardPile = d.DiscardPile[:n]
	return card, true
}

// Discard pushes cards onto the discard pile in the given order.
func (d *Deck) Discard(cards ...*models.Card) {
	d.DiscardPile = append(d.DiscardPile, cards...)
}

// ReturnToBottom slides cards under the draw pile.
func (d *Deck) ReturnToBottom(cards ...*models.Card) {
	if len(cards) == 0 {
		return
	}
	pile := make([]*models.Card, 0, len(cards)+len(d.DrawPile))
	pile = append(pile, cards...)
	d.DrawPile = append(pile, d.DrawPile...)
}

package models

import "strconv"

// Rank is the face category of a card.
type Rank string

const (
	RankAce   Rank = "A"
	Rank2     Rank = "2"
	Rank3     Rank = "3"
	Rank4     Rank = "4"
	Rank5     Rank = "5"
	Rank6     Rank = "6"
	Rank7     Rank = "7"
	Rank8     Rank = "8"
	Rank9     Rank = "9"
	Rank10    Rank = "10"
	RankJack  Rank = "J"
	RankQueen Rank = "Q"
	RankKing  Rank = "K"
	RankJoker Rank = "JOKER"
)

// Ranks lists the 13 suited ranks in deck-build order.
var Ranks = []Rank{
	RankAce, Rank2, Rank3, Rank4, Rank5, Rank6, Rank7,
	Rank8, Rank9, Rank10, RankJack, RankQueen, RankKing,
}

// Suit is one of the four french suits. Jokers carry no suit.
type Suit string

const (
	SuitSpades   Suit = "S"
	SuitHearts   Suit = "H"
	SuitDiamonds Suit = "D"
	SuitClubs    Suit = "C"
)

var Suits = []Suit{SuitSpades, SuitHearts, SuitDiamonds, SuitClubs}

// Card is immutable once built. Piles and hands hold pointers to the same
// instance; a card moves between them, it is never copied into two places.
type Card struct {
	ID    int  `json:"id"`
	Rank  Rank `json:"rank"`
	Suit  Suit `json:"suit,omitempty"`
	Value int  `json:"value"`
}

// RankValue maps a rank to its scoring value: A=1, 2-10 face value,
// J/Q/K=10, JOKER=0.
func RankValue(r Rank) int {
	switch r {
	case RankAce:
		return 1
	case RankJack, RankQueen, RankKing:
		return 10
	case RankJoker:
		return 0
	}
	v, err := strconv.Atoi(string(r))
	if err != nil {
		return 0
	}
	return v
}

func (c Card) String() string {
	if c.Suit == "" {
		return string(c.Rank)
	}
	return string(c.Rank) + string(c.Suit)
}

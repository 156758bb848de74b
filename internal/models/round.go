package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayerResult is one player's line in a settled round.
type PlayerResult struct {
	PlayerID  string `json:"player_id"`
	Name      string `json:"name"`
	HandTotal int    `json:"hand_total"`
	Delta     int    `json:"delta"`
	Score     int    `json:"score"`
}

// RoundRecord captures the outcome of one close. It is pushed to the
// historian queue and kept on the room for the next snapshots.
type RoundRecord struct {
	RoundID      uuid.UUID      `json:"round_id"`
	RoomID       string         `json:"room_id"`
	RoundNumber  int            `json:"round_number"`
	CloserID     string         `json:"closer_id"`
	CorrectClose bool           `json:"correct_close"`
	AutoClose    bool           `json:"auto_close"`
	Lowest       int            `json:"lowest"`
	Highest      int            `json:"highest"`
	Results      []PlayerResult `json:"results"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      time.Time      `json:"ended_at"`
}

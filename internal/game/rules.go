// internal/game/rules.go
package game

import "fmt"

const (
	// MaxPlayers is the hard seat cap of a room.
	MaxPlayers = 7
	// StartCards is the default hand size dealt at round start.
	StartCards = 7
	// LogLimit bounds the room event log.
	LogLimit = 50
	// SnapshotLogLines is how much of the log a snapshot carries.
	SnapshotLogLines = 20
	// MaxNameLength caps player names, counted in runes.
	MaxNameLength = 15
)

// Rules are per-room house rules the host may tune while the room is in the lobby.
type Rules struct {
	StartCards           int  `json:"startCards"`           // cards dealt to each player at round start
	MaxPlayers           int  `json:"maxPlayers"`           // seat cap, never above MaxPlayers
	AllowDrawFromDiscard bool `json:"allowDrawFromDiscard"` // allow taking the open card instead of the draw pile top
	ClampHeadsUpSkips    bool `json:"clampHeadsUpSkips"`    // with 2 players, jacks do not hand the turn straight back
}

// DefaultRules returns the standard rule set.
func DefaultRules() Rules {
	return Rules{
		StartCards:           StartCards,
		MaxPlayers:           MaxPlayers,
		AllowDrawFromDiscard: true,
		ClampHeadsUpSkips:    false,
	}
}

// Update applies the keys present in newRules. Unknown keys are ignored and
// absent keys keep their value. On any error the rules are left untouched.
func (rules *Rules) Update(newRules map[string]interface{}) error {
	next := *rules

	assignBool := func(field *bool, key string) error {
		if val, exists := newRules[key]; exists && val != nil {
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("invalid type for %s", key)
			}
			*field = b
		}
		return nil
	}

	assignInt := func(field *int, key string, minVal, maxVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var n int
		switch v := val.(type) {
		case float64: // JSON numbers
			n = int(v)
			if float64(n) != v {
				return fmt.Errorf("%s must be a whole number", key)
			}
		case int:
			n = v
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if n < minVal || n > maxVal {
			return fmt.Errorf("%s must be between %d and %d", key, minVal, maxVal)
		}
		*field = n
		return nil
	}

	if err := assignInt(&next.StartCards, "startCards", 1, StartCards); err != nil {
		return err
	}
	if err := assignInt(&next.MaxPlayers, "maxPlayers", 2, MaxPlayers); err != nil {
		return err
	}
	if err := assignBool(&next.AllowDrawFromDiscard, "allowDrawFromDiscard"); err != nil {
		return err
	}
	if err := assignBool(&next.ClampHeadsUpSkips, "clampHeadsUpSkips"); err != nil {
		return err
	}

	*rules = next
	return nil
}

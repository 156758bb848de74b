package game

import (
	"errors"
	"fmt"
)

// UserError is a rejected intent. It is reported to the originating client
// only and never leaves the room partially mutated.
type UserError struct {
	Code    string
	Message string
}

func (e *UserError) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches on Code so a detailed copy still satisfies errors.Is against
// the sentinel it was derived from.
func (e *UserError) Is(target error) bool {
	t, ok := target.(*UserError)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of the sentinel carrying a more specific message.
func (e *UserError) WithMessage(msg string) *UserError {
	return &UserError{Code: e.Code, Message: msg}
}

func userError(code, msg string) *UserError {
	return &UserError{Code: code, Message: msg}
}

var (
	ErrInvalidName         = userError("InvalidName", "a player name is required")
	ErrInvalidPlayerID     = userError("InvalidPlayerID", "player id is too long")
	ErrRoomNotFound        = userError("RoomNotFound", "room not found")
	ErrRoomFull            = userError("RoomFull", "room is full")
	ErrRoundInProgress     = userError("RoundInProgress", "a round is already in progress")
	ErrNotHost             = userError("NotHost", "only the host can do that")
	ErrInsufficientPlayers = userError("InsufficientPlayers", "at least 2 players are needed")
	ErrNotInRoom           = userError("NotInRoom", "you are not seated in this room")
	ErrAlreadyInRoom       = userError("AlreadyInRoom", "that player is already seated")
	ErrRoundNotActive      = userError("RoundNotActive", "no round is in progress")
	ErrNotYourTurn         = userError("NotYourTurn", "it is not your turn")
	ErrAlreadyDrawn        = userError("AlreadyDrawn", "you have already drawn this turn")
	ErrMustDrawFirst       = userError("MustDrawFirst", "draw first or match the open card rank")
	ErrMixedRanks          = userError("MixedRanks", "select cards of the same rank only")
	ErrEmptySelection      = userError("EmptySelection", "select at least one card")
	ErrCardNotInHand       = userError("CardNotInHand", "selected card is not in your hand")
	ErrCloseAfterDraw      = userError("CloseAfterDraw", "close must be called before drawing")
	ErrInvalidRules        = userError("InvalidRules", "invalid rule update")
	ErrInvalidToken        = userError("InvalidToken", "seat token is invalid")
)

// ErrPilesExhausted means neither pile can supply a card. The draw path
// absorbs it as "no card for this unit".
var ErrPilesExhausted = errors.New("draw and discard piles exhausted")

// InvariantError reports a card-count mismatch. It indicates a bug.
type InvariantError struct {
	RoomID string
	Want   int
	Got    int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("room %s: card invariant violated: want %d cards, counted %d", e.RoomID, e.Want, e.Got)
}

// AsUserError unwraps err into a *UserError when it is one.
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

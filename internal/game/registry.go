// internal/game/registry.go
package game

import (
	"context"
	"crypto/subtle"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/closemaster/closemaster/internal/models"
)

// EventGameState is the outbound snapshot event name.
const EventGameState = "game_state"

const (
	roomCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ0123456789"
	roomCodeLength = 4
	maxPlayerIDLen = 64

	// DefaultGracePeriod is how long a disconnected seat is held.
	DefaultGracePeriod = 60 * time.Second
)

// Transport delivers an event to one client connection. Implementations must
// not block: the registry calls Deliver while holding a room lock.
type Transport interface {
	Deliver(connID string, event string, payload interface{})
}

// RoundRecorder receives every settled round.
type RoundRecorder interface {
	RecordRound(ctx context.Context, rec models.RoundRecord) error
}

// Seat identifies a player inside a room. Key is the per-seat secret that
// seat tokens carry. On an intent, a non-empty ConnID must be the connection
// that currently holds the seat, so a displaced socket cannot act.
type Seat struct {
	RoomID   string
	PlayerID string
	ConnID   string
	Key      string
}

// Registry owns every live room. Rooms are independent; each is mutated
// only under its own lock, one intent at a time.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	rng   *rand.Rand // guarded by mu

	clock     Clock
	transport Transport
	recorder  RoundRecorder
	logger    *logrus.Logger
	grace     time.Duration
	rules     Rules
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock used for grace timers.
func WithClock(c Clock) Option {
	return func(reg *Registry) { reg.clock = c }
}

// WithSeed makes room codes and shuffles reproducible.
func WithSeed(seed int64) Option {
	return func(reg *Registry) { reg.rng = rand.New(rand.NewSource(seed)) }
}

func WithLogger(l *logrus.Logger) Option {
	return func(reg *Registry) { reg.logger = l }
}

// WithRecorder forwards settled rounds to rec.
func WithRecorder(rec RoundRecorder) Option {
	return func(reg *Registry) { reg.recorder = rec }
}

func WithGracePeriod(d time.Duration) Option {
	return func(reg *Registry) { reg.grace = d }
}

// WithRules sets the rules new rooms start with.
func WithRules(r Rules) Option {
	return func(reg *Registry) { reg.rules = r }
}

// NewRegistry builds an empty registry that pushes snapshots through t.
func NewRegistry(t Transport, opts ...Option) *Registry {
	reg := &Registry{
		rooms:     make(map[string]*Room),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:     realClock{},
		transport: t,
		logger:    logrus.StandardLogger(),
		grace:     DefaultGracePeriod,
		rules:     DefaultRules(),
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// Get returns a live room.
func (reg *Registry) Get(roomID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[normalizeRoomID(roomID)]
	return room, ok
}

// Count returns the number of live rooms.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// CreateRoom opens a room with the caller as its only member and host.
func (reg *Registry) CreateRoom(connID, playerID, name string) (Seat, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Seat{}, err
	}
	playerID, err = normalizePlayerID(playerID)
	if err != nil {
		return Seat{}, err
	}
	host := models.NewPlayer(playerID, name, connID)

	reg.mu.Lock()
	code := reg.newRoomCodeLocked()
	room := newRoom(code, host, reg.rules, rand.New(rand.NewSource(reg.rng.Int63())))
	reg.rooms[code] = room
	reg.mu.Unlock()

	room.Mu.Lock()
	defer room.Mu.Unlock()
	room.logf("%s created room %s", name, code)
	reg.logger.WithFields(logrus.Fields{"room": code, "player": playerID}).Info("room created")
	reg.broadcast(room)
	return Seat{RoomID: code, PlayerID: playerID, ConnID: connID, Key: host.SeatKey}, nil
}

// JoinRoom seats a new player at the end of the rotation of a lobby room.
func (reg *Registry) JoinRoom(connID, roomID, playerID, name string) (Seat, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Seat{}, err
	}
	playerID, err = normalizePlayerID(playerID)
	if err != nil {
		return Seat{}, err
	}
	p := models.NewPlayer(playerID, name, connID)
	seat := Seat{RoomID: normalizeRoomID(roomID), PlayerID: playerID, ConnID: connID, Key: p.SeatKey}
	err = reg.withRoom(seat.RoomID, func(room *Room) error {
		return room.addPlayer(p)
	})
	if err != nil {
		return Seat{}, err
	}
	reg.logger.WithFields(logrus.Fields{"room": seat.RoomID, "player": playerID}).Info("player joined")
	return seat, nil
}

// StartRound deals a round on behalf of the host.
func (reg *Registry) StartRound(actor Seat) error {
	return reg.withSeat(actor, func(room *Room) error {
		return room.StartRound(actor.PlayerID)
	})
}

// Draw performs the turn holder's draw.
func (reg *Registry) Draw(actor Seat, fromDiscard bool) error {
	return reg.withSeat(actor, func(room *Room) error {
		_, err := room.Draw(actor.PlayerID, fromDiscard)
		return err
	})
}

// Drop discards the selected cards; an emptied hand settles the round.
func (reg *Registry) Drop(actor Seat, selectedIDs []int) error {
	return reg.withSeat(actor, func(room *Room) error {
		rec, err := room.Drop(actor.PlayerID, selectedIDs)
		if rec != nil {
			reg.record(*rec)
		}
		return err
	})
}

// Close settles the round with the actor as closer.
func (reg *Registry) Close(actor Seat) error {
	return reg.withSeat(actor, func(room *Room) error {
		rec, err := room.Close(actor.PlayerID)
		if rec != nil {
			reg.record(*rec)
		}
		return err
	})
}

// UpdateRules lets the host change house rules between rounds.
func (reg *Registry) UpdateRules(actor Seat, changes map[string]interface{}) error {
	return reg.withSeat(actor, func(room *Room) error {
		if room.playerIndex(actor.PlayerID) < 0 {
			return ErrNotInRoom
		}
		if actor.PlayerID != room.HostID {
			return ErrNotHost
		}
		if room.Phase != PhaseLobby {
			return ErrRoundInProgress
		}
		next := room.Rules
		if err := next.Update(changes); err != nil {
			return ErrInvalidRules.WithMessage(err.Error())
		}
		if next.MaxPlayers < len(room.Players) {
			return ErrInvalidRules.WithMessage("maxPlayers is below the current roster")
		}
		room.Rules = next
		room.logf("House rules updated")
		return nil
	})
}

// Rejoin moves a seat to the connection s.ConnID. s.Key must match the key
// minted when the seat was taken. Any pending removal is cancelled. When the
// seat was still live on another connection, that connection id is returned
// so the caller can release it.
func (reg *Registry) Rejoin(s Seat) (prevConnID string, err error) {
	err = reg.withRoom(s.RoomID, func(room *Room) error {
		p := room.Player(s.PlayerID)
		if p == nil {
			return ErrNotInRoom
		}
		if s.Key == "" || subtle.ConstantTimeCompare([]byte(s.Key), []byte(p.SeatKey)) != 1 {
			return ErrInvalidToken
		}
		if p.Connected && p.ConnID != s.ConnID {
			prevConnID = p.ConnID
		}
		reg.cancelGraceLocked(room, s.PlayerID)
		p.Connected = true
		p.ConnID = s.ConnID
		room.logf("%s reconnected", p.Name)
		reg.logger.WithFields(logrus.Fields{
			"room":     room.ID,
			"player":   s.PlayerID,
			"replaced": prevConnID,
		}).Info("player reconnected")
		return nil
	})
	if err != nil {
		return "", err
	}
	return prevConnID, nil
}

// Disconnect marks a seat offline and starts its grace timer. It is a no-op
// when the seat has already moved to another connection.
func (reg *Registry) Disconnect(roomID, playerID, connID string) {
	room, ok := reg.Get(roomID)
	if !ok {
		return
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	if room.closed {
		return
	}
	p := room.Player(playerID)
	if p == nil || p.ConnID != connID {
		return
	}
	p.Connected = false
	p.ConnID = ""

	reg.cancelGraceLocked(room, playerID)
	gen := room.graceGen[playerID]
	room.graceTimers[playerID] = reg.clock.AfterFunc(reg.grace, func() {
		reg.expireSeat(room, playerID, gen)
	})
	room.logf("%s disconnected", p.Name)
	reg.logger.WithFields(logrus.Fields{"room": room.ID, "player": playerID, "grace": reg.grace}).Info("player disconnected")
	reg.broadcast(room)
}

// Leave removes a player immediately.
func (reg *Registry) Leave(actor Seat) error {
	room, ok := reg.Get(actor.RoomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.Mu.Lock()
	if room.closed {
		room.Mu.Unlock()
		return ErrRoomNotFound
	}
	if !room.holds(actor) {
		room.Mu.Unlock()
		return ErrNotInRoom
	}
	reg.cancelGraceLocked(room, actor.PlayerID)
	empty := reg.unseatLocked(room, actor.PlayerID)
	room.Mu.Unlock()

	if empty {
		reg.destroy(room)
	}
	return nil
}

// Snapshot returns the current view of the room for one player.
func (reg *Registry) Snapshot(roomID, playerID string) (GameState, error) {
	room, ok := reg.Get(roomID)
	if !ok {
		return GameState{}, ErrRoomNotFound
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	if room.Player(playerID) == nil {
		return GameState{}, ErrNotInRoom
	}
	return room.StateFor(playerID), nil
}

// expireSeat runs when a grace timer fires. A reconnect bumps the seat's
// generation, so a timer that lost the race finds a stale gen and stops.
func (reg *Registry) expireSeat(room *Room, playerID string, gen int) {
	room.Mu.Lock()
	if room.closed || room.graceGen[playerID] != gen {
		room.Mu.Unlock()
		return
	}
	p := room.Player(playerID)
	if p == nil || p.Connected {
		room.Mu.Unlock()
		return
	}
	delete(room.graceTimers, playerID)
	reg.logger.WithFields(logrus.Fields{"room": room.ID, "player": playerID}).Info("grace period expired")
	empty := reg.unseatLocked(room, playerID)
	room.Mu.Unlock()

	if empty {
		reg.destroy(room)
	}
}

func (reg *Registry) unseatLocked(room *Room, playerID string) bool {
	empty := room.removePlayer(playerID)
	delete(room.graceGen, playerID)
	if !empty {
		reg.verify(room)
		reg.broadcast(room)
	}
	return empty
}

// cancelGraceLocked stops any pending removal and invalidates timers that
// already fired but are still waiting for the room lock.
func (reg *Registry) cancelGraceLocked(room *Room, playerID string) {
	if t, ok := room.graceTimers[playerID]; ok {
		t.Stop()
		delete(room.graceTimers, playerID)
	}
	room.graceGen[playerID]++
}

func (reg *Registry) destroy(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.rooms[room.ID] == room {
		delete(reg.rooms, room.ID)
		reg.logger.WithField("room", room.ID).Info("room destroyed")
	}
}

// withRoom runs one intent against a room under its lock. On success the
// card invariant is checked and every member gets a fresh snapshot; on
// error nothing is pushed.
func (reg *Registry) withRoom(roomID string, fn func(room *Room) error) error {
	room, ok := reg.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	if room.closed {
		return ErrRoomNotFound
	}
	if err := fn(room); err != nil {
		return err
	}
	reg.verify(room)
	reg.broadcast(room)
	return nil
}

// withSeat is withRoom for an intent that must come from the seat's current
// connection.
func (reg *Registry) withSeat(actor Seat, fn func(room *Room) error) error {
	return reg.withRoom(actor.RoomID, func(room *Room) error {
		if !room.holds(actor) {
			return ErrNotInRoom
		}
		return fn(room)
	})
}

func (reg *Registry) verify(room *Room) {
	if err := room.CheckInvariant(); err != nil {
		reg.logger.WithError(err).WithFields(logrus.Fields{
			"room":  room.ID,
			"round": room.RoundNumber,
		}).Error("card invariant violated")
	}
}

func (reg *Registry) broadcast(room *Room) {
	if reg.transport == nil {
		return
	}
	for _, p := range room.Players {
		if p.Connected && p.ConnID != "" {
			reg.transport.Deliver(p.ConnID, EventGameState, room.StateFor(p.ID))
		}
	}
}

func (reg *Registry) record(rec models.RoundRecord) {
	reg.logger.WithFields(logrus.Fields{
		"room":    rec.RoomID,
		"round":   rec.RoundNumber,
		"closer":  rec.CloserID,
		"correct": rec.CorrectClose,
	}).Info("round settled")
	if reg.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := reg.recorder.RecordRound(ctx, rec); err != nil {
			reg.logger.WithError(err).WithField("room", rec.RoomID).Warn("failed to record round")
		}
	}()
}

func (reg *Registry) newRoomCodeLocked() string {
	buf := make([]byte, roomCodeLength)
	for {
		for i := range buf {
			buf[i] = roomCodeChars[reg.rng.Intn(len(roomCodeChars))]
		}
		if _, taken := reg.rooms[string(buf)]; !taken {
			return string(buf)
		}
	}
}

func normalizeRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameLength]))
	}
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

func normalizePlayerID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return uuid.NewString(), nil
	}
	if len(id) > maxPlayerIDLen {
		return "", ErrInvalidPlayerID
	}
	return id, nil
}

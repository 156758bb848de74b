// internal/handlers/dispatch.go
package handlers

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/closemaster/closemaster/internal/auth"
	"github.com/closemaster/closemaster/internal/game"
)

// InboundMessage is every client intent. Only the fields relevant to Type
// are read.
type InboundMessage struct {
	Type        string                 `json:"type"`
	RoomID      string                 `json:"roomId,omitempty"`
	Name        string                 `json:"name,omitempty"`
	PlayerID    string                 `json:"playerId,omitempty"`
	Token       string                 `json:"token,omitempty"`
	FromDiscard bool                   `json:"fromDiscard,omitempty"`
	SelectedIDs []int                  `json:"selectedIds,omitempty"`
	Rules       map[string]interface{} `json:"rules,omitempty"`
}

// Dispatcher routes inbound messages from a client to the registry and
// writes replies back to that client.
type Dispatcher struct {
	hub    *Hub
	reg    *game.Registry
	signer *auth.Signer
	logger *logrus.Logger
}

func NewDispatcher(hub *Hub, reg *game.Registry, signer *auth.Signer, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, reg: reg, signer: signer, logger: logger}
}

// Handle processes one message to completion.
func (d *Dispatcher) Handle(c *Client, msg InboundMessage) {
	d.logger.WithFields(logrus.Fields{"conn": c.ID, "type": msg.Type}).Debug("received message")

	switch msg.Type {
	case "create_room":
		d.handleSeat(c, msg, func() (game.Seat, error) {
			return d.reg.CreateRoom(c.ID, msg.PlayerID, msg.Name)
		})
	case "join_room":
		d.handleSeat(c, msg, func() (game.Seat, error) {
			return d.reg.JoinRoom(c.ID, msg.RoomID, msg.PlayerID, msg.Name)
		})
	case "rejoin_room":
		d.handleSeat(c, msg, func() (game.Seat, error) {
			return d.rejoin(c, msg)
		})
	case "leave_room":
		d.handleLeave(c, msg)
	case "start_round":
		d.handleAction(c, msg, func(actor game.Seat) error {
			return d.reg.StartRound(actor)
		})
	case "action_draw":
		d.handleAction(c, msg, func(actor game.Seat) error {
			return d.reg.Draw(actor, msg.FromDiscard)
		})
	case "action_drop":
		d.handleAction(c, msg, func(actor game.Seat) error {
			return d.reg.Drop(actor, msg.SelectedIDs)
		})
	case "action_close":
		d.handleAction(c, msg, func(actor game.Seat) error {
			return d.reg.Close(actor)
		})
	case "update_rules":
		d.handleAction(c, msg, func(actor game.Seat) error {
			return d.reg.UpdateRules(actor, msg.Rules)
		})
	case "ping":
		c.Write(map[string]interface{}{"type": "pong"})
	default:
		c.WriteError(msg.Type, "UnknownType", fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

// Disconnect hands a closed connection's seat to the grace period logic.
func (d *Dispatcher) Disconnect(c *Client) {
	roomID, playerID, ok := c.Seat()
	if !ok {
		return
	}
	d.reg.Disconnect(roomID, playerID, c.ID)
}

func (d *Dispatcher) handleSeat(c *Client, msg InboundMessage, seatFn func() (game.Seat, error)) {
	if _, _, seated := c.Seat(); seated {
		d.replyError(c, msg.Type, game.ErrAlreadyInRoom)
		return
	}
	seat, err := seatFn()
	if err != nil {
		d.replyError(c, msg.Type, err)
		return
	}
	c.setSeat(seat.RoomID, seat.PlayerID)

	reply := map[string]interface{}{
		"type":     msg.Type,
		"ok":       true,
		"roomId":   seat.RoomID,
		"playerId": seat.PlayerID,
	}
	if d.signer != nil {
		token, err := d.signer.IssueSeatToken(seat.RoomID, seat.PlayerID, seat.Key)
		if err != nil {
			d.logger.WithError(err).Error("failed to sign seat token")
		} else {
			reply["token"] = token
		}
	}
	c.Write(reply)
	d.logger.WithFields(logrus.Fields{
		"conn":   c.ID,
		"room":   seat.RoomID,
		"player": seat.PlayerID,
		"type":   msg.Type,
	}).Info("client seated")
}

// rejoin takes over a seat, either one waiting out its grace period or one
// still held by another connection. The displaced connection is unseated and
// told why.
func (d *Dispatcher) rejoin(c *Client, msg InboundMessage) (game.Seat, error) {
	if d.signer == nil {
		return game.Seat{}, game.ErrInvalidToken
	}
	claims, err := d.signer.VerifySeatToken(msg.Token)
	if err != nil {
		d.logger.WithError(err).WithField("conn", c.ID).Warn("rejected seat token")
		return game.Seat{}, game.ErrInvalidToken
	}
	if msg.RoomID != "" && msg.RoomID != claims.RoomID {
		return game.Seat{}, game.ErrInvalidToken
	}
	seat := game.Seat{
		RoomID:   claims.RoomID,
		PlayerID: claims.PlayerID,
		ConnID:   c.ID,
		Key:      claims.SeatKey,
	}
	prev, err := d.reg.Rejoin(seat)
	if err != nil {
		return game.Seat{}, err
	}
	if prev != "" {
		d.displace(prev, seat)
	}
	return seat, nil
}

func (d *Dispatcher) displace(connID string, seat game.Seat) {
	if d.hub == nil {
		return
	}
	old, ok := d.hub.Get(connID)
	if !ok || !old.releaseSeat(seat.RoomID, seat.PlayerID) {
		return
	}
	old.Write(map[string]interface{}{
		"type":     "seat_taken",
		"roomId":   seat.RoomID,
		"playerId": seat.PlayerID,
	})
	d.logger.WithFields(logrus.Fields{
		"conn":   connID,
		"room":   seat.RoomID,
		"player": seat.PlayerID,
	}).Info("seat moved to another connection")
}

func (d *Dispatcher) handleLeave(c *Client, msg InboundMessage) {
	roomID, playerID, ok := c.Seat()
	if !ok {
		d.replyError(c, msg.Type, game.ErrNotInRoom)
		return
	}
	// The seat is released even if the room already dropped it.
	err := d.reg.Leave(game.Seat{RoomID: roomID, PlayerID: playerID, ConnID: c.ID})
	c.releaseSeat(roomID, playerID)
	if err != nil {
		d.replyError(c, msg.Type, err)
		return
	}
	c.Write(map[string]interface{}{"type": msg.Type, "ok": true, "roomId": roomID})
}

func (d *Dispatcher) handleAction(c *Client, msg InboundMessage, act func(actor game.Seat) error) {
	roomID, playerID, ok := c.Seat()
	if !ok {
		c.WriteError(msg.Type, game.ErrNotInRoom.Code, game.ErrNotInRoom.Message)
		return
	}
	if err := act(game.Seat{RoomID: roomID, PlayerID: playerID, ConnID: c.ID}); err != nil {
		code, message := errorCode(err)
		if code == internalErrorCode {
			d.logger.WithError(err).WithFields(logrus.Fields{"room": roomID, "type": msg.Type}).Error("action failed")
		}
		c.WriteError(msg.Type, code, message)
	}
}

// replyError answers a seat request with {type, ok:false, error, message}.
func (d *Dispatcher) replyError(c *Client, msgType string, err error) {
	code, message := errorCode(err)
	if code == internalErrorCode {
		d.logger.WithError(err).WithField("type", msgType).Error("request failed")
	}
	c.Write(map[string]interface{}{
		"type":    msgType,
		"ok":      false,
		"error":   code,
		"message": message,
	})
}

const internalErrorCode = "Internal"

func errorCode(err error) (code, message string) {
	if ue, ok := game.AsUserError(err); ok {
		return ue.Code, ue.Message
	}
	return internalErrorCode, "internal server error"
}

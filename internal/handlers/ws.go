// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/closemaster/closemaster/internal/middleware"
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "game"

const (
	readLimit    = 16 << 10
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// GameWSHandler upgrades the request, registers the connection with the hub
// and feeds its messages to the dispatcher until the socket closes. The seat
// the connection held then enters its grace period.
func GameWSHandler(logger *logrus.Logger, hub *Hub, d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept failed")
			return
		}
		defer c.Close(websocket.StatusInternalError, "unexpected handler exit")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must use the 'game' subprotocol")
			return
		}
		c.SetReadLimit(readLimit)

		client := NewClient(uuid.NewString(), logger)
		hub.Register(client)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go writePump(ctx, c, client, logger)

		err = readPump(ctx, c, client, d, logger)

		d.Disconnect(client)
		hub.Unregister(client)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump reads until the connection fails. Normal closures return nil.
func readPump(ctx context.Context, c *websocket.Conn, client *Client, d *Dispatcher, logger *logrus.Logger) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			logger.WithField("conn", client.ID).Warn("ignoring non-text message")
			continue
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.WriteError("", "InvalidMessage", "Invalid JSON format.")
			continue
		}
		d.Handle(client, msg)
	}
}

// writePump drains OutChan to the socket and keeps the connection alive
// with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, client *Client, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.WithError(err).WithField("conn", client.ID).Warn("failed to marshal outgoing message")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("conn", client.ID).Warn("failed to write to websocket")
				// Closing makes the blocked Read fail so the handler cleans up.
				c.Close(websocket.StatusGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("conn", client.ID).Warn("ping failed, assuming disconnect")
				c.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

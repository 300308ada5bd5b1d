package chunkserv

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bosley/chunkscribe/scribe"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

type wsConnection struct {
	conn      *websocket.Conn
	client    *Client
	send      chan []byte
	closeOnce sync.Once
	server    *Server

	// Cancelled when the connection goes away or the server shuts down
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.server.clients.Remove(c.client.ID)
		slog.Debug("Client connection closed", "clientID", c.client.ID, "remoteAddr", c.client.Addr)
	})
}

// enqueue hands a message to the write pump. Messages for a closed
// connection are dropped.
func (c *wsConnection) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "error", err, "clientID", c.client.ID)
		return
	}

	select {
	case c.send <- data:
	case <-c.ctx.Done():
		slog.Debug("Dropping message for closed connection",
			"clientID", c.client.ID,
			"type", msg.Type)
	}
}

func (c *wsConnection) sendStatus(typ, ref, message, errMsg string) {
	msg, err := newMessage(typ, c.client.ID.String(), ref, StatusPayload{Message: message, Error: errMsg})
	if err != nil {
		slog.Error("Failed to build message", "error", err, "clientID", c.client.ID)
		return
	}
	c.enqueue(msg)
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.close()
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.ctx.Done():
			c.close()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.server.config.MaxUploadBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Error("WebSocket read error", "error", err, "clientID", c.client.ID)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var req Request
		switch messageType {
		case websocket.BinaryMessage:
			req = Request{Type: TypeRequestTranscription, Audio: data}
		default:
			if err := json.Unmarshal(data, &req); err != nil {
				c.sendStatus(TypeError, "", "invalid message", err.Error())
				continue
			}
		}

		if req.Type != TypeRequestTranscription {
			c.sendStatus(TypeError, req.Ref, "unknown message type", req.Type)
			continue
		}
		if len(req.Audio) == 0 {
			c.sendStatus(TypeError, req.Ref, "empty audio", "")
			continue
		}

		// Binary frames carry no tag, so every request gets one the caller
		// can match its events by.
		if req.Ref == "" {
			req.Ref = uuid.NewString()
		}
		if !c.server.beginRequest() {
			c.sendStatus(TypeError, req.Ref, "server shutting down", "")
			continue
		}
		go c.handleRequest(req)
	}
}

// handleRequest runs one transcription request and forwards its events to
// this connection.
func (c *wsConnection) handleRequest(req Request) {
	defer c.server.requests.Done()

	c.client.activeRequests.Add(1)
	defer c.client.activeRequests.Add(-1)

	clientID := c.client.ID.String()
	slog.Info("Received transcription request",
		"clientID", clientID,
		"ref", req.Ref,
		"bytes", len(req.Audio))

	c.sendStatus(string(scribe.EventProcessStarted), req.Ref, startedMessage, "")

	pub := scribe.PublisherFunc(func(e scribe.Event) {
		msg, err := eventMessage(e, clientID, req.Ref)
		if err != nil {
			slog.Error("Failed to build event message", "error", err, "clientID", clientID)
			return
		}
		c.enqueue(msg)
	})

	if err := c.server.processor.Process(c.ctx, req.Audio, pub); err != nil {
		slog.Warn("Transcription request failed",
			"error", err,
			"clientID", clientID,
			"ref", req.Ref)
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/watzon/topiccache/internal/discovery"
	"github.com/watzon/topiccache/internal/metrics"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongTimeout    = 60 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Client is one connected participant.
type Client struct {
	ID     discovery.ParticipantID
	conn   *websocket.Conn
	broker *Broker
	logger zerolog.Logger

	// endpoints counts the live announcements made on this connection.
	endpoints map[discovery.Endpoint]int
	held      int
	mu        sync.Mutex

	sendCh chan []byte
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a client for participant id.
func NewClient(conn *websocket.Conn, broker *Broker, id discovery.ParticipantID) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:        id,
		conn:      conn,
		broker:    broker,
		logger:    broker.logger.With().Str("participant", string(id)).Logger(),
		endpoints: make(map[discovery.Endpoint]int),
		sendCh:    make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run starts the client's write and ping loops and reads until the
// connection closes.
func (c *Client) Run() {
	go c.writePump()
	go c.pingPump()
	c.readPump()
}

// Close terminates the client connection.
func (c *Client) Close() {
	c.close(websocket.StatusNormalClosure, "closing")
}

func (c *Client) closeForShutdown() {
	c.close(websocket.StatusGoingAway, "server shutting down")
}

func (c *Client) close(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
		close(c.done)
	}
	c.mu.Unlock()

	c.cancel()
	c.conn.Close(code, reason)
}

// Send queues a message to be sent to the client.
func (c *Client) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return context.Canceled
	default:
		c.logger.Warn().Msg("Client send buffer full, dropping message")
		return nil
	}
}

// SendError sends an error message to the client.
func (c *Client) SendError(msgID string, code ErrorCode, message string) error {
	payload, _ := json.Marshal(&ErrorPayload{
		Code:    string(code),
		Message: message,
	})

	return c.Send(&Message{
		ID:      msgID,
		Type:    MessageTypeError,
		Payload: payload,
	})
}

// Endpoints returns the number of live endpoints announced on this
// connection.
func (c *Client) Endpoints() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

func (c *Client) reserve(ep discovery.Endpoint, limit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit > 0 && c.held >= limit {
		return ErrEndpointLimit
	}
	c.endpoints[ep]++
	c.held++
	return nil
}

func (c *Client) release(ep discovery.Endpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.endpoints[ep]
	if !ok {
		return ErrEndpointNotAnnounced
	}
	if n == 1 {
		delete(c.endpoints, ep)
	} else {
		c.endpoints[ep] = n - 1
	}
	c.held--
	return nil
}

func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			metrics.RecordRealtimeMessage("invalid")
			_ = c.SendError("", ErrorCodeInvalidMessage, "Invalid JSON message")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) writePump() {
	for {
		select {
		case data := <-c.sendCh:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.logger.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-c.done:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) pingPump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, pongTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed")
				c.Close()
				return
			}
		case <-c.done:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	metrics.RecordRealtimeMessage(string(msg.Type))

	switch msg.Type {
	case MessageTypeAnnounce:
		c.handleEndpoint(msg, c.broker.Announce)
	case MessageTypeWithdraw:
		c.handleEndpoint(msg, c.broker.Withdraw)
	case MessageTypePing:
		c.handlePing(msg)
	default:
		_ = c.SendError(msg.ID, ErrorCodeInvalidMessage, "Unknown message type")
	}
}

func (c *Client) handleEndpoint(msg *Message, apply func(*Client, discovery.Endpoint) (bool, error)) {
	var payload EndpointPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		_ = c.SendError(msg.ID, ErrorCodeInvalidPayload, "Invalid endpoint payload")
		return
	}

	ep := discovery.Endpoint{
		Participant: c.ID,
		Kind:        payload.Kind,
		Topic:       payload.Topic,
		Type:        payload.Type,
	}

	changed, err := apply(c, ep)
	switch {
	case err == nil:
	case errors.Is(err, discovery.ErrInvalidEndpoint):
		_ = c.SendError(msg.ID, ErrorCodeInvalidPayload, err.Error())
		return
	case errors.Is(err, ErrEndpointLimit):
		_ = c.SendError(msg.ID, ErrorCodeEndpointLimit, err.Error())
		return
	case errors.Is(err, ErrEndpointNotAnnounced):
		_ = c.SendError(msg.ID, ErrorCodeUnknownEndpoint, err.Error())
		return
	default:
		c.logger.Error().Err(err).Str("topic", ep.Topic).Msg("Failed to apply endpoint")
		_ = c.SendError(msg.ID, ErrorCodeInternalError, err.Error())
		return
	}

	ack, _ := json.Marshal(&AckPayload{Changed: changed})
	_ = c.Send(&Message{
		ID:      msg.ID,
		Type:    MessageTypeAck,
		Payload: ack,
	})
}

func (c *Client) handlePing(msg *Message) {
	_ = c.Send(&Message{
		ID:   msg.ID,
		Type: MessageTypePong,
	})
}

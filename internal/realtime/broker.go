package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/watzon/topiccache/internal/discovery"
	"github.com/watzon/topiccache/internal/metrics"
)

// Broker tracks connected participants and forwards their endpoint
// announcements to the discovery listener.
type Broker struct {
	listener *discovery.Listener
	logger   zerolog.Logger

	maxConnections int
	maxEndpoints   int

	clients map[discovery.ParticipantID]*Client
	mu      sync.RWMutex
	closed  bool
}

// BrokerConfig holds configuration for the broker.
type BrokerConfig struct {
	MaxConnections             int
	MaxEndpointsPerParticipant int
}

// NewBroker creates a broker feeding listener.
func NewBroker(listener *discovery.Listener, cfg *BrokerConfig, logger zerolog.Logger) *Broker {
	if cfg == nil {
		cfg = &BrokerConfig{
			MaxConnections:             1000,
			MaxEndpointsPerParticipant: 512,
		}
	}

	return &Broker{
		listener:       listener,
		logger:         logger,
		maxConnections: cfg.MaxConnections,
		maxEndpoints:   cfg.MaxEndpointsPerParticipant,
		clients:        make(map[discovery.ParticipantID]*Client),
	}
}

// RegisterClient adds a new client to the broker.
func (b *Broker) RegisterClient(client *Client) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	if _, ok := b.clients[client.ID]; ok {
		return ErrParticipantConnected
	}
	if b.maxConnections > 0 && len(b.clients) >= b.maxConnections {
		return ErrConnectionLimit
	}

	b.clients[client.ID] = client
	metrics.UpdateRealtimeStats(len(b.clients))
	b.logger.Debug().
		Str("participant", string(client.ID)).
		Int("total_clients", len(b.clients)).
		Msg("Participant connected")
	return nil
}

// UnregisterClient removes a client and withdraws every endpoint its
// participant still holds. The id stays claimed until its endpoints are
// withdrawn.
func (b *Broker) UnregisterClient(client *Client) {
	b.mu.Lock()
	current, ok := b.clients[client.ID]
	if !ok || current != client {
		b.mu.Unlock()
		return
	}
	removed := b.listener.OnParticipantRemoved(client.ID)
	delete(b.clients, client.ID)
	total := len(b.clients)
	metrics.UpdateRealtimeStats(total)
	b.mu.Unlock()

	b.logger.Debug().
		Str("participant", string(client.ID)).
		Int("registrations", removed).
		Int("total_clients", total).
		Msg("Participant disconnected")
}

// Announce records ep for client, subject to the per-participant limit.
func (b *Broker) Announce(client *Client, ep discovery.Endpoint) (bool, error) {
	if err := ep.Validate(); err != nil {
		return false, err
	}
	if err := client.reserve(ep, b.maxEndpoints); err != nil {
		return false, err
	}

	changed, err := b.listener.OnEndpointDiscovered(ep)
	if err != nil {
		_ = client.release(ep)
		return false, err
	}
	return changed, nil
}

// Withdraw removes one announcement of ep previously made by client.
func (b *Broker) Withdraw(client *Client, ep discovery.Endpoint) (bool, error) {
	if err := ep.Validate(); err != nil {
		return false, err
	}
	if err := client.release(ep); err != nil {
		return false, err
	}
	return b.listener.OnEndpointRemoved(ep)
}

// ClientCount returns the number of connected participants.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop disconnects every client. Their endpoints are withdrawn as their
// connections unwind.
func (b *Broker) Stop() {
	b.mu.Lock()
	b.closed = true
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.Unlock()

	for _, client := range clients {
		client.closeForShutdown()
	}
}

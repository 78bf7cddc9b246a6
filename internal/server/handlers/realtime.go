package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/watzon/topiccache/internal/discovery"
	"github.com/watzon/topiccache/internal/realtime"
	"github.com/watzon/topiccache/internal/requestctx"
)

// RealtimeHandler accepts participant WebSocket connections.
type RealtimeHandler struct {
	broker         *realtime.Broker
	originPatterns []string
}

func NewRealtimeHandler(broker *realtime.Broker, originPatterns []string) *RealtimeHandler {
	return &RealtimeHandler{broker: broker, originPatterns: originPatterns}
}

// HandleWebSocket upgrades the connection and runs the participant until it
// disconnects. The participant id is the "participant" query parameter or a
// fresh uuid.
func (h *RealtimeHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := requestctx.Logger(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to accept WebSocket connection")
		return
	}

	id := r.URL.Query().Get("participant")
	if id == "" {
		id = uuid.New().String()
	}

	client := realtime.NewClient(conn, h.broker, discovery.ParticipantID(id))
	if err := h.broker.RegisterClient(client); err != nil {
		status := websocket.StatusTryAgainLater
		if errors.Is(err, realtime.ErrParticipantConnected) {
			status = websocket.StatusPolicyViolation
		}
		logger.Warn().Err(err).Str("participant", id).Msg("Rejected participant")
		conn.Close(status, err.Error())
		return
	}
	defer h.broker.UnregisterClient(client)

	connectedPayload, _ := json.Marshal(&realtime.ConnectedPayload{
		ParticipantID: id,
	})

	_ = client.Send(&realtime.Message{
		Type:    realtime.MessageTypeConnected,
		Payload: connectedPayload,
	})

	client.Run()
}

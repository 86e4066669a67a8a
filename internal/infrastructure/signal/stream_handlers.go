package signal

import (
	"encoding/json"

	"studiocast/internal/core/domain"
	apperrors "studiocast/pkg/errors"
	"studiocast/pkg/utils"
)

func (g *Gateway) handleGetStreamStatus(ch *Channel, data []byte) error {
	var payload GetStreamStatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.NewInvalidInputError("invalid get-stream-status payload")
	}
	if payload.RoomID == "" {
		return apperrors.NewInvalidInputError("roomId is required")
	}

	status := g.streams.Status(payload.RoomID)
	g.BroadcastToRoom(payload.RoomID, EventStreamStatus, status)
	return nil
}

// NotifyStreamStatus fans a stream status transition out to the room. Wired
// as the encoder manager's status-change callback.
func (g *Gateway) NotifyStreamStatus(change domain.StreamStatusChange) {
	g.BroadcastToRoom(change.RoomID, EventStreamStatusUpdate, map[string]interface{}{
		"roomId":    change.RoomID,
		"oldStatus": change.OldStatus,
		"status":    change.NewStatus,
		"timestamp": utils.Now(),
	})
}

package signal

import (
	"encoding/json"
)

// handleRelay forwards an opaque negotiation payload to exactly one target
// channel. Incomplete payloads and unknown targets are dropped without a
// caller-visible error; stale targets are routine during reconnect churn.
func (g *Gateway) handleRelay(ch *Channel, event string, data []byte) error {
	var payload RelayPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.TargetChannelID == "" || len(payload.Payload) == 0 {
		return nil
	}

	err := g.SendToChannel(payload.TargetChannelID, event, map[string]interface{}{
		"senderChannelId": ch.id,
		"payload":         json.RawMessage(payload.Payload),
	})
	if err != nil {
		g.logger.Debugw("relay target not connected",
			"event", event, "channel_id", ch.id, "target", payload.TargetChannelID)
		return nil
	}

	g.metrics.RecordMessageRelayed(event)
	return nil
}

func (g *Gateway) handleConnectionState(ch *Channel, data []byte) error {
	var payload ConnectionStatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.ConnectionState == "" {
		return nil
	}

	roomID, participant := ch.identity()

	if payload.TargetChannelID != "" {
		if err := g.SendToChannel(payload.TargetChannelID, EventConnectionState, map[string]interface{}{
			"senderChannelId": ch.id,
			"state":           payload.ConnectionState,
		}); err != nil {
			g.logger.Debugw("connection state target not connected",
				"channel_id", ch.id, "target", payload.TargetChannelID)
		}
	}

	if roomID != "" {
		g.BroadcastToRoomExcept(roomID, ch.id, EventPeerConnUpdate, map[string]interface{}{
			"userId": participant.UserID,
			"state":  payload.ConnectionState,
		})
	}
	return nil
}

func (g *Gateway) handleStreamStateChange(ch *Channel, data []byte) error {
	var payload StreamStatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}

	roomID, participant := ch.identity()
	if roomID == "" {
		return nil
	}

	g.BroadcastToRoomExcept(roomID, ch.id, EventParticipantStream, map[string]interface{}{
		"userId":   participant.UserID,
		"userName": participant.UserName,
		"hasVideo": payload.HasVideo,
		"hasAudio": payload.HasAudio,
	})
	return nil
}

func (g *Gateway) handleRequestReconnect(ch *Channel, data []byte) error {
	var payload RequestReconnectPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.TargetUserID == "" {
		return nil
	}

	target := g.channelByUserID(payload.TargetUserID)
	if target == nil {
		return nil
	}

	_, participant := ch.identity()
	return target.send(EventReconnectRequest, map[string]interface{}{
		"fromUserId":    participant.UserID,
		"fromChannelId": ch.id,
		"fromUserName":  participant.UserName,
	})
}

func (g *Gateway) handlePingConnection(ch *Channel, data []byte) error {
	var payload PingConnectionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}

	g.mu.RLock()
	_, connected := g.channels[payload.TargetChannelID]
	g.mu.RUnlock()

	return ch.send(EventPingResponse, map[string]interface{}{
		"targetChannelId": payload.TargetChannelID,
		"connected":       connected,
	})
}

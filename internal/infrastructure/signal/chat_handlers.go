package signal

import (
	"context"
	"encoding/json"
	"strings"

	"studiocast/internal/core/domain"
	apperrors "studiocast/pkg/errors"
	"studiocast/pkg/utils"
	"studiocast/pkg/validation"
)

func (g *Gateway) handleSendMessage(ctx context.Context, ch *Channel, data []byte) error {
	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}

	message := strings.TrimSpace(payload.Message)
	if payload.RoomID == "" || message == "" || payload.UserName == "" {
		return nil
	}
	if err := validation.ValidateMessage(message); err != nil {
		return err
	}

	room, err := g.lifecycle.GetRoom(ctx, payload.RoomID)
	if err != nil || room.Status != domain.RoomStatusLive {
		return apperrors.NewInvalidStateError("session not live")
	}

	msg := ChatMessage{
		ID:        utils.GenerateMessageID(),
		Message:   message,
		UserName:  payload.UserName,
		UserID:    payload.UserID,
		Timestamp: utils.Now(),
	}

	g.BroadcastToRoom(payload.RoomID, EventReceiveMessage, msg)
	g.metrics.RecordMessageRelayed("chat")
	g.lifecycle.TouchRoom(ctx, payload.RoomID)
	return nil
}

func (g *Gateway) handleTyping(ch *Channel, data []byte, isTyping bool) error {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.RoomID == "" {
		return nil
	}

	_, participant := ch.identity()
	g.BroadcastToRoomExcept(payload.RoomID, ch.id, EventUserTyping, map[string]interface{}{
		"userId":   participant.UserID,
		"userName": participant.UserName,
		"isTyping": isTyping,
	})
	return nil
}

func (g *Gateway) handleParticipantStatus(ch *Channel, data []byte) error {
	var payload ParticipantStatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.RoomID == "" || payload.UserID == "" || len(payload.Status) == 0 {
		return nil
	}

	g.BroadcastToRoomExcept(payload.RoomID, ch.id, EventParticipantChanged, map[string]interface{}{
		"userId":    payload.UserID,
		"status":    json.RawMessage(payload.Status),
		"timestamp": utils.Now(),
	})
	return nil
}

// handleHostAction broadcasts a moderation action. A kick additionally
// removes the target through the normal leave path so the registry and the
// room group stay consistent.
func (g *Gateway) handleHostAction(ctx context.Context, ch *Channel, data []byte) error {
	var payload HostActionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.RoomID == "" || payload.Action == "" {
		return nil
	}

	_, caller := ch.identity()

	room, err := g.lifecycle.GetRoom(ctx, payload.RoomID)
	if err != nil || room.HostID != caller.UserID {
		return apperrors.NewForbiddenError("not allowed")
	}

	g.BroadcastToRoom(payload.RoomID, EventHostActionBroadcast, map[string]interface{}{
		"action":       payload.Action,
		"targetUserId": payload.TargetUserID,
		"hostId":       caller.UserID,
		"hostName":     caller.UserName,
		"timestamp":    utils.Now(),
	})

	if payload.Action == "kick" && payload.TargetUserID != "" {
		target := g.channelByUserID(payload.TargetUserID)
		if target == nil {
			return nil
		}
		targetRoom, targetParticipant := target.identity()
		if targetRoom != payload.RoomID {
			return nil
		}

		_ = target.send(EventKickedFromSession, map[string]interface{}{
			"message": "Removed by " + caller.UserName,
		})
		if err := g.lifecycle.LeaveSession(ctx, targetParticipant, targetRoom, domain.EndReasonHostEnded); err != nil {
			g.logger.Infow("kick removal failed",
				"room_id", payload.RoomID, "target_user_id", payload.TargetUserID, "error", err)
		}
	}
	return nil
}

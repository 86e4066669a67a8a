package signal

import (
	"context"
	"encoding/json"

	"studiocast/internal/core/domain"
	apperrors "studiocast/pkg/errors"
	"studiocast/pkg/validation"
)

func (g *Gateway) handleStartSession(ctx context.Context, ch *Channel, data []byte) error {
	var payload StartSessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.NewInvalidInputError("invalid start-session payload")
	}
	if err := validation.ValidateRoomID(string(payload.RoomID)); err != nil {
		return err
	}
	if err := validation.ValidateUserID(string(payload.UserID)); err != nil {
		return err
	}
	if err := validation.ValidateUserName(payload.UserName); err != nil {
		return err
	}

	caller := domain.Participant{
		UserID:    payload.UserID,
		UserName:  payload.UserName,
		ChannelID: ch.id,
		IsHost:    true,
	}

	result, err := g.lifecycle.StartSession(ctx, caller, payload.RoomID, payload.SessionID)
	if err != nil {
		return err
	}

	g.logger.Infow("session started",
		"room_id", payload.RoomID, "user_id", payload.UserID, "channel_id", ch.id)

	return ch.send(EventSessionStartSuccess, result)
}

func (g *Gateway) handleJoinLiveSession(ctx context.Context, ch *Channel, data []byte) error {
	var payload JoinSessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.NewInvalidInputError("invalid join-live-session payload")
	}
	if err := validation.ValidateRoomID(string(payload.RoomID)); err != nil {
		return err
	}
	if err := validation.ValidateUserID(string(payload.UserID)); err != nil {
		return err
	}
	if err := validation.ValidateUserName(payload.UserName); err != nil {
		return err
	}

	caller := domain.Participant{
		UserID:    payload.UserID,
		UserName:  payload.UserName,
		ChannelID: ch.id,
	}

	result, err := g.lifecycle.JoinLiveSession(ctx, caller, payload.RoomID, payload.SessionID)
	if err != nil {
		return err
	}

	g.logger.Infow("participant joined",
		"room_id", payload.RoomID, "user_id", payload.UserID, "channel_id", ch.id)

	return ch.send(EventJoinSuccess, result)
}

func (g *Gateway) handleEndSession(ctx context.Context, ch *Channel, data []byte) error {
	var payload EndSessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.NewInvalidInputError("invalid end-session payload")
	}
	if payload.RoomID == "" || payload.UserID == "" {
		return apperrors.NewInvalidInputError("roomId and userId are required")
	}

	return g.lifecycle.EndSession(ctx, payload.UserID, payload.RoomID, payload.SessionID, domain.EndReasonHostEnded)
}

func (g *Gateway) handleLeaveSession(ctx context.Context, ch *Channel) error {
	roomID, participant := ch.identity()
	if roomID == "" {
		return nil
	}
	return g.lifecycle.LeaveSession(ctx, participant, roomID, domain.EndReasonHostLeft)
}

package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"
	apperrors "studiocast/pkg/errors"
	"studiocast/pkg/utils"
	"studiocast/pkg/validation"

	"go.uber.org/zap"
)

// lifecycleService coordinates session lifecycle across the room registry,
// the persisted session store and the signaling transport. A single mutex
// serializes every registry-mutating operation, so each start/join/end/leave
// runs to completion without interleaving with another one.
type lifecycleService struct {
	registry    ports.RoomRegistry
	sessions    ports.SessionRepository
	broadcaster ports.Broadcaster
	streams     ports.StreamManager
	metrics     ports.MetricsRecorder

	idleWindow time.Duration

	mu     sync.Mutex
	logger *zap.SugaredLogger
}

func NewLifecycleService(
	registry ports.RoomRegistry,
	sessions ports.SessionRepository,
	broadcaster ports.Broadcaster,
	streams ports.StreamManager,
	metrics ports.MetricsRecorder,
	idleWindow time.Duration,
	logger *zap.SugaredLogger,
) ports.LifecycleService {
	return &lifecycleService{
		registry:    registry,
		sessions:    sessions,
		broadcaster: broadcaster,
		streams:     streams,
		metrics:     metrics,
		idleWindow:  idleWindow,
		logger:      logger,
	}
}

func (s *lifecycleService) StartSession(ctx context.Context, caller domain.Participant, roomID domain.RoomID, sessionID domain.SessionID) (*ports.StartSessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validation.ValidateRoomID(string(roomID)); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	session, err := s.findSession(ctx, sessionID, roomID)
	if err != nil {
		// The caller learns nothing about whether the session exists,
		// only that they may not start it.
		return nil, apperrors.NewUnauthorizedError("only the host can start the session")
	}
	if session.Host != caller.UserID {
		return nil, apperrors.NewUnauthorizedError("only the host can start the session")
	}
	if !session.CanTransitionTo(domain.SessionStatusLive) {
		return nil, apperrors.NewInvalidStateError("session cannot go live from its current state")
	}

	now := utils.Now()
	room := &domain.Room{
		ID:           roomID,
		HostID:       caller.UserID,
		SessionID:    session.ID,
		Participants: map[domain.UserID]struct{}{caller.UserID: {}},
		Status:       domain.RoomStatusLive,
		StartedAt:    now,
		LastActivity: now,
	}

	// Claim the room first so a racing second start is rejected before the
	// session document is touched.
	if err := s.registry.Create(ctx, room); err != nil {
		if err == domain.ErrRoomExists {
			return nil, apperrors.NewAlreadyExistsError("room")
		}
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to create room", http.StatusInternalServerError)
	}

	session.Status = domain.SessionStatusLive
	session.StartedAt = &now
	if err := s.sessions.Update(ctx, session); err != nil {
		if derr := s.registry.Delete(ctx, roomID); derr != nil {
			s.logger.Warnw("failed to roll back room after persistence error", "room_id", roomID, "error", derr)
		}
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to persist session", http.StatusInternalServerError)
	}

	caller.IsHost = true
	s.broadcaster.JoinRoom(roomID, caller)

	s.broadcaster.BroadcastToRoom(roomID, "session-started", map[string]interface{}{
		"roomId":   roomID,
		"hostName": caller.UserName,
	})

	if s.metrics != nil {
		s.metrics.RecordRoomOpened()
	}

	s.logger.Infow("session started",
		"room_id", roomID,
		"session_id", session.ID,
		"host_id", caller.UserID,
	)

	return &ports.StartSessionResult{
		RoomID:       roomID,
		Participants: s.broadcaster.RoomParticipants(roomID),
	}, nil
}

func (s *lifecycleService) JoinLiveSession(ctx context.Context, caller domain.Participant, roomID domain.RoomID, sessionID domain.SessionID) (*ports.JoinSessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.registry.Get(ctx, roomID)
	if err != nil || room.Status != domain.RoomStatusLive {
		return nil, apperrors.NewInvalidStateError("session not live")
	}

	lookupID := sessionID
	if lookupID == "" {
		lookupID = room.SessionID
	}
	if _, err := s.sessions.GetByID(ctx, lookupID); err != nil {
		return nil, apperrors.NewNotFoundError("session")
	}

	if err := s.registry.AddParticipant(ctx, roomID, caller.UserID); err != nil {
		// The room vanished between validation and mutation (racing end);
		// fail gracefully rather than crash the join.
		return nil, apperrors.NewInvalidStateError("session not live")
	}

	caller.IsHost = false
	s.broadcaster.JoinRoom(roomID, caller)

	s.broadcaster.BroadcastToRoomExcept(roomID, caller.ChannelID, "user-joined", map[string]interface{}{
		"userId":    caller.UserID,
		"userName":  caller.UserName,
		"channelId": caller.ChannelID,
	})

	participants := s.broadcaster.RoomParticipants(roomID)
	s.broadcaster.BroadcastToRoom(roomID, "room-stats", map[string]interface{}{
		"participantCount": len(participants),
	})

	if err := s.registry.Touch(ctx, roomID, utils.Now()); err != nil {
		s.logger.Debugw("failed to touch room", "room_id", roomID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordParticipantJoined(roomID)
	}

	s.logger.Infow("participant joined",
		"room_id", roomID,
		"user_id", caller.UserID,
	)

	var hostName string
	for _, p := range participants {
		if p.IsHost {
			hostName = p.UserName
			break
		}
	}

	return &ports.JoinSessionResult{
		RoomID:       roomID,
		Participants: participants,
		HostName:     hostName,
	}, nil
}

func (s *lifecycleService) EndSession(ctx context.Context, callerID domain.UserID, roomID domain.RoomID, sessionID domain.SessionID, reason domain.EndReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endSessionLocked(ctx, callerID, roomID, sessionID, reason)
}

// endSessionLocked is the single end path. Explicit end, host leave, host
// disconnect and the idle sweep all arrive here, so they are equivalent by
// construction.
func (s *lifecycleService) endSessionLocked(ctx context.Context, callerID domain.UserID, roomID domain.RoomID, sessionID domain.SessionID, reason domain.EndReason) error {
	room, err := s.registry.Get(ctx, roomID)
	if err != nil {
		return apperrors.NewNotFoundError("room")
	}
	if room.HostID != callerID {
		return apperrors.NewForbiddenError("only the host can end the session")
	}

	endTime := utils.Now()
	duration := int(endTime.Sub(room.StartedAt) / time.Minute)

	lookupID := sessionID
	if lookupID == "" {
		lookupID = room.SessionID
	}
	if session, err := s.sessions.GetByID(ctx, lookupID); err == nil {
		session.Status = domain.SessionStatusEnded
		session.EndedAt = &endTime
		session.DurationMinutes = duration
		if err := s.sessions.Update(ctx, session); err != nil {
			s.logger.Warnw("failed to persist ended session", "session_id", session.ID, "error", err)
		}
	}

	// The room must be gone before any client observes the end event.
	if err := s.registry.Delete(ctx, roomID); err != nil {
		s.logger.Warnw("failed to delete room", "room_id", roomID, "error", err)
	}

	s.broadcaster.BroadcastToRoom(roomID, "session-ended", map[string]interface{}{
		"roomId":   roomID,
		"duration": duration,
		"reason":   reason,
	})
	s.broadcaster.CloseRoom(roomID)

	s.streams.StopStream(roomID)

	if s.metrics != nil {
		s.metrics.RecordRoomClosed(reason)
	}

	s.logger.Infow("session ended",
		"room_id", roomID,
		"duration_minutes", duration,
		"reason", reason,
	)
	return nil
}

func (s *lifecycleService) LeaveSession(ctx context.Context, caller domain.Participant, roomID domain.RoomID, reason domain.EndReason) error {
	if roomID == "" {
		return nil
	}

	if caller.IsHost {
		return s.EndSession(ctx, caller.UserID, roomID, "", reason)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.RemoveParticipant(ctx, roomID, caller.UserID); err != nil {
		// Room already gone; nothing to announce.
		return nil
	}

	s.broadcaster.LeaveRoom(roomID, caller.ChannelID)
	s.broadcaster.BroadcastToRoom(roomID, "user-left", map[string]interface{}{
		"userId":    caller.UserID,
		"userName":  caller.UserName,
		"channelId": caller.ChannelID,
	})

	if err := s.registry.Touch(ctx, roomID, utils.Now()); err != nil {
		s.logger.Debugw("failed to touch room", "room_id", roomID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordParticipantLeft(roomID)
	}

	return nil
}

func (s *lifecycleService) GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.Room, error) {
	return s.registry.Get(ctx, roomID)
}

// TouchRoom refreshes the room's last-activity stamp. Called by relays on
// every broadcast into the room, which is what the idle sweep measures.
func (s *lifecycleService) TouchRoom(ctx context.Context, roomID domain.RoomID) {
	if err := s.registry.Touch(ctx, roomID, utils.Now()); err != nil {
		s.logger.Debugw("failed to touch room", "room_id", roomID, "error", err)
	}
}

// SweepIdleRooms force-ends rooms whose last activity is older than the idle
// window. This bounds memory growth from abandoned rooms whose channels never
// cleanly disconnected.
func (s *lifecycleService) SweepIdleRooms(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.registry.List(ctx)
	if err != nil {
		s.logger.Warnw("idle sweep failed to list rooms", "error", err)
		return 0
	}

	now := utils.Now()
	ended := 0
	for _, room := range rooms {
		if now.Sub(room.LastActivity) <= s.idleWindow {
			continue
		}
		s.logger.Infow("ending idle room",
			"room_id", room.ID,
			"idle", now.Sub(room.LastActivity).String(),
		)
		if err := s.endSessionLocked(ctx, room.HostID, room.ID, room.SessionID, domain.EndReasonIdleTimeout); err != nil {
			s.logger.Warnw("idle sweep failed to end room", "room_id", room.ID, "error", err)
			continue
		}
		ended++
	}
	return ended
}

func (s *lifecycleService) findSession(ctx context.Context, sessionID domain.SessionID, roomID domain.RoomID) (*domain.Session, error) {
	if sessionID != "" {
		if session, err := s.sessions.GetByID(ctx, sessionID); err == nil {
			return session, nil
		}
	}
	return s.sessions.GetByRoomID(ctx, roomID)
}

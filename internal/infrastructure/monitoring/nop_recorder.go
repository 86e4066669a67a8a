package monitoring

import "studiocast/internal/core/domain"

// NopRecorder discards all metrics. Used in tests and when Prometheus is
// disabled.
type NopRecorder struct{}

func (NopRecorder) RecordRoomOpened()                                        {}
func (NopRecorder) RecordRoomClosed(domain.EndReason)                        {}
func (NopRecorder) RecordParticipantJoined(domain.RoomID)                    {}
func (NopRecorder) RecordParticipantLeft(domain.RoomID)                      {}
func (NopRecorder) RecordMessageRelayed(string)                              {}
func (NopRecorder) RecordFrameForwarded(domain.RoomID, int)                  {}
func (NopRecorder) RecordFrameDropped(domain.RoomID)                         {}
func (NopRecorder) RecordStreamStatus(domain.RoomID, domain.StreamStatus)    {}

package monitoring

import (
	"studiocast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	roomsActive       prometheus.Gauge
	roomsClosedTotal  *prometheus.CounterVec
	participantsTotal *prometheus.GaugeVec

	messagesRelayedTotal *prometheus.CounterVec

	framesForwardedTotal *prometheus.CounterVec
	framesDroppedTotal   *prometheus.CounterVec
	frameBytesTotal      prometheus.Counter

	streamStatusTransitions *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "studiocast_rooms_active",
			Help: "Number of rooms currently live",
		}),

		roomsClosedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studiocast_rooms_closed_total",
			Help: "Total number of rooms closed, by end reason",
		}, []string{"reason"}),

		participantsTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "studiocast_room_participants",
			Help: "Number of participants in each room",
		}, []string{"room_id"}),

		messagesRelayedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studiocast_messages_relayed_total",
			Help: "Total number of relayed signaling and chat messages",
		}, []string{"kind"}),

		framesForwardedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studiocast_frames_forwarded_total",
			Help: "Total number of video frames forwarded to encoders",
		}, []string{"room_id"}),

		framesDroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studiocast_frames_dropped_total",
			Help: "Total number of video frames dropped before the encoder",
		}, []string{"room_id"}),

		frameBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "studiocast_frame_bytes_total",
			Help: "Total amount of frame data forwarded in bytes",
		}),

		streamStatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studiocast_stream_status_transitions_total",
			Help: "Total number of encoder status transitions",
		}, []string{"status"}),
	}
}

func (p *PrometheusCollector) RecordRoomOpened() {
	p.roomsActive.Inc()
}

func (p *PrometheusCollector) RecordRoomClosed(reason domain.EndReason) {
	p.roomsActive.Dec()
	p.roomsClosedTotal.WithLabelValues(string(reason)).Inc()
}

func (p *PrometheusCollector) RecordParticipantJoined(roomID domain.RoomID) {
	p.participantsTotal.WithLabelValues(string(roomID)).Inc()
}

func (p *PrometheusCollector) RecordParticipantLeft(roomID domain.RoomID) {
	p.participantsTotal.WithLabelValues(string(roomID)).Dec()
}

func (p *PrometheusCollector) RecordMessageRelayed(kind string) {
	p.messagesRelayedTotal.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RecordFrameForwarded(roomID domain.RoomID, bytes int) {
	p.framesForwardedTotal.WithLabelValues(string(roomID)).Inc()
	p.frameBytesTotal.Add(float64(bytes))
}

func (p *PrometheusCollector) RecordFrameDropped(roomID domain.RoomID) {
	p.framesDroppedTotal.WithLabelValues(string(roomID)).Inc()
}

func (p *PrometheusCollector) RecordStreamStatus(roomID domain.RoomID, status domain.StreamStatus) {
	p.streamStatusTransitions.WithLabelValues(string(status)).Inc()

	if status == domain.StreamStatusStopped {
		p.framesForwardedTotal.DeleteLabelValues(string(roomID))
		p.framesDroppedTotal.DeleteLabelValues(string(roomID))
		p.participantsTotal.DeleteLabelValues(string(roomID))
	}
}

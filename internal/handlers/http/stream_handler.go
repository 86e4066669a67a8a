package http

import (
	"io"
	"net/http"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"
	apperrors "studiocast/pkg/errors"

	"github.com/gin-gonic/gin"
)

// maxChunkBytes bounds a single uploaded frame or recording chunk.
const maxChunkBytes = 8 << 20

type StreamHandler struct {
	streams    ports.StreamManager
	lifecycle  ports.LifecycleService
	recordings ports.RecordingSink
}

func NewStreamHandler(streams ports.StreamManager, lifecycle ports.LifecycleService, recordings ports.RecordingSink) *StreamHandler {
	return &StreamHandler{
		streams:    streams,
		lifecycle:  lifecycle,
		recordings: recordings,
	}
}

// SetupRoutes registers the stream control API. The auth and host-permission
// middleware are attached by the caller.
func (h *StreamHandler) SetupRoutes(api *gin.RouterGroup, hostOnly gin.HandlerFunc) {
	api.POST("/sessions/:id/stream/start", hostOnly, h.StartStream)
	api.POST("/sessions/:id/stream/stop", hostOnly, h.StopStream)
	api.GET("/sessions/:id/stream/status", h.GetStreamStatus)
	api.POST("/sessions/:id/stream/chunk", hostOnly, h.ProcessStreamChunk)
	api.POST("/sessions/:id/recordings/:participantId", h.UploadRecordingChunk)
}

func (h *StreamHandler) StartStream(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	var req struct {
		Platform     domain.Platform    `json:"platform" binding:"required"`
		StreamKeyRef string             `json:"streamKeyRef" binding:"required"`
		VideoConfig  domain.VideoConfig `json:"videoConfig"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if err := h.streams.StartStream(c.Request.Context(), roomID, req.Platform, req.StreamKeyRef, req.VideoConfig); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.streams.Status(roomID),
	})
}

func (h *StreamHandler) StopStream(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	h.streams.StopStream(roomID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"roomId": roomID},
	})
}

func (h *StreamHandler) GetStreamStatus(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.streams.Status(roomID),
	})
}

// ProcessStreamChunk accepts one JPEG frame in the request body and forwards
// it to the room's encoder. The socket binary path is the usual route; this
// endpoint exists for clients that cannot keep a socket open.
func (h *StreamHandler) ProcessStreamChunk(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	frame, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChunkBytes))
	if err != nil || len(frame) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "chunk body required"})
		return
	}

	h.streams.SendFrame(roomID, frame)
	h.lifecycle.TouchRoom(c.Request.Context(), roomID)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *StreamHandler) UploadRecordingChunk(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	participantID := domain.UserID(c.Param("participantId"))

	chunk, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChunkBytes))
	if err != nil || len(chunk) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "chunk body required"})
		return
	}

	url, err := h.recordings.Put(c.Request.Context(), domain.SessionID(roomID), participantID, chunk)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"url": url},
	})
}

func (h *StreamHandler) respondError(c *gin.Context, err error) {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		c.JSON(appErr.HTTPStatus, gin.H{
			"success": false,
			"error":   string(appErr.Code),
			"message": appErr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
}

package signal

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"studiocast/internal/core/domain"
)

// Channel is one connected client. The gateway owns every channel; the
// identity fields are attached once by Broadcaster.JoinRoom after the
// handshake succeeds and cleared again when the channel leaves its room.
type Channel struct {
	id   domain.ChannelID
	conn *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration

	limiter *rate.Limiter

	mu       sync.RWMutex
	roomID   domain.RoomID
	userID   domain.UserID
	userName string
	isHost   bool
}

func newChannel(id domain.ChannelID, conn *websocket.Conn, writeTimeout time.Duration, limiter *rate.Limiter) *Channel {
	return &Channel{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
		limiter:      limiter,
	}
}

func (c *Channel) ID() domain.ChannelID {
	return c.id
}

func (c *Channel) attachIdentity(roomID domain.RoomID, p domain.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.userID = p.UserID
	c.userName = p.UserName
	c.isHost = p.IsHost
}

func (c *Channel) clearIdentity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = ""
	c.userID = ""
	c.userName = ""
	c.isHost = false
}

// identity returns a snapshot of the channel's attachment. RoomID is empty
// until the channel has joined a room.
func (c *Channel) identity() (domain.RoomID, domain.Participant) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, domain.Participant{
		UserID:    c.userID,
		UserName:  c.userName,
		ChannelID: c.id,
		IsHost:    c.isHost,
	}
}

// send writes one event envelope. Writes are serialized per channel because
// broadcasts and the connection's own handler loop both write here.
func (c *Channel) send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(Envelope{Event: event, Data: data})
}

func (c *Channel) sendError(err error) {
	payload := ErrorPayload{Message: err.Error()}
	if appErr := appError(err); appErr != nil {
		payload.Code = string(appErr.Code)
		payload.Message = appErr.Message
	}
	_ = c.send(EventError, payload)
}

func (c *Channel) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// allow applies the per-channel event rate limit. A nil limiter disables
// limiting.
func (c *Channel) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

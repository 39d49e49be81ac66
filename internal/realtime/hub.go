package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// AudienceChangeHandler is called when the connected-client count for a
// meeting changes (e.g. to end a meeting when everyone has left).
type AudienceChangeHandler func(meetingID uuid.UUID, count int)

// Hub maintains meeting_id -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: local broadcast + publish to Redis.
type Hub struct {
	// meetingID -> map[clientID]*Client
	meetings   map[uuid.UUID]map[string]*Client
	subs       map[uuid.UUID]func() // cancel Redis subscription per meeting
	mu         sync.RWMutex
	logger     *zap.Logger
	redis      RedisPublisher
	redisSub   RedisSubscriber
	onAudience AudienceChangeHandler
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishMeetingEvent(meetingID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to meeting channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeMeeting(meetingID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		meetings: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetAudienceChangeHandler sets the callback for audience count changes.
// Invoked on every register/unregister, including the drop to zero.
func (h *Hub) SetAudienceChangeHandler(fn AudienceChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAudience = fn
}

// Register adds a client to a meeting room. Starts Redis subscription for this meeting if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.meetings[c.MeetingID] == nil {
		h.meetings[c.MeetingID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeMeeting(c.MeetingID, func(event string, payload []byte) {
				h.BroadcastToMeeting(c.MeetingID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.MeetingID] = cancel
			}
		}
	}
	h.meetings[c.MeetingID][c.ID] = c
	count := len(h.meetings[c.MeetingID])
	onAudience := h.onAudience
	h.mu.Unlock()
	if onAudience != nil {
		onAudience(c.MeetingID, count)
	}
	h.logger.Debug("client joined meeting channel", zap.String("client_id", c.ID), zap.String("meeting_id", c.MeetingID.String()))
}

// Unregister removes a client from a meeting room. Cancels Redis subscription when last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	count := -1
	if m, ok := h.meetings[c.MeetingID]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			count = len(m)
			if count == 0 {
				delete(h.meetings, c.MeetingID)
				if cancel, ok := h.subs[c.MeetingID]; ok {
					cancel()
					delete(h.subs, c.MeetingID)
				}
			}
		}
	}
	onAudience := h.onAudience
	h.mu.Unlock()
	if onAudience != nil && count >= 0 {
		onAudience(c.MeetingID, count)
	}
	h.logger.Debug("client left meeting channel", zap.String("client_id", c.ID), zap.String("meeting_id", c.MeetingID.String()))
}

// BroadcastToMeeting sends a message to all clients in a meeting (local only).
func (h *Hub) BroadcastToMeeting(meetingID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	// Snapshot the clients under the lock; Register/Unregister mutate the
	// map concurrently and iterating it unlocked would race.
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.meetings[meetingID]))
	for _, c := range h.meetings[meetingID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// PublishToMeetingOnly publishes to Redis only (no direct local broadcast):
// the Redis subscriber callback performs the broadcast once for all
// instances, including this one, avoiding duplicate delivery. Falls back to
// a local broadcast when Redis is not wired.
func (h *Hub) PublishToMeetingOnly(meetingID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		_ = h.redis.PublishMeetingEvent(meetingID, event, data)
		return
	}
	h.BroadcastToMeeting(meetingID, event, payload)
}

// AudienceCount returns the number of connected clients in a meeting.
func (h *Hub) AudienceCount(meetingID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.meetings[meetingID])
}

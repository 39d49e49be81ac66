package engine

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// EventType identifies a forwarded provider event. Consumers only ever see
// this vocabulary, never the provider SDK's own event shapes.
type EventType string

const (
	EventParticipantJoined  EventType = "participant_joined"
	EventParticipantLeft    EventType = "participant_left"
	EventParticipantUpdated EventType = "participant_updated"
	EventTrackStarted       EventType = "track_started"
	EventTrackStopped       EventType = "track_stopped"
	EventRecordingStarted   EventType = "recording_started"
	EventRecordingStopped   EventType = "recording_stopped"
	EventError              EventType = "error"
	EventAppMessage         EventType = "app_message"
)

// Event is the normalized event delivered to listeners.
type Event struct {
	Type        EventType       `json:"type"`
	Participant *Participant    `json:"participant,omitempty"`
	Error       *EngineError    `json:"error,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Participant is the remote participant view kept while joined.
type Participant struct {
	SessionID    string `json:"session_id"`
	UserName     string `json:"user_name"`
	AudioEnabled bool   `json:"audio_enabled"`
	VideoEnabled bool   `json:"video_enabled"`
	ScreenShare  bool   `json:"screen_share"`
	IsOwner      bool   `json:"is_owner"`
}

// Handler receives engine events.
type Handler func(Event)

// listeners is the On/Off registry with panic-isolated dispatch.
type listeners struct {
	mu     sync.Mutex
	next   int
	byType map[EventType]map[int]Handler
	logger *zap.Logger
}

func newListeners(logger *zap.Logger) *listeners {
	return &listeners{byType: make(map[EventType]map[int]Handler), logger: logger}
}

func (l *listeners) add(t EventType, h Handler) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	if l.byType[t] == nil {
		l.byType[t] = make(map[int]Handler)
	}
	l.byType[t][l.next] = h
	return l.next
}

func (l *listeners) remove(t EventType, id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byType[t], id)
}

func (l *listeners) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byType = make(map[EventType]map[int]Handler)
}

// dispatch delivers ev to every registered handler. A handler that panics is
// recovered and logged; it must not stop other handlers from receiving ev.
func (l *listeners) dispatch(ev Event) {
	l.mu.Lock()
	hs := make([]Handler, 0, len(l.byType[ev.Type]))
	for _, h := range l.byType[ev.Type] {
		hs = append(hs, h)
	}
	l.mu.Unlock()

	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("event handler panicked",
						zap.String("event", string(ev.Type)),
						zap.Any("panic", r))
				}
			}()
			h(ev)
		}()
	}
}

package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/masilo-dev/alphaclone-meetings/internal/models"
)

func testClient(meetingID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.New().String(),
		MeetingID: meetingID,
		UserID:    uuid.New(),
		send:      make(chan WSMessage, 8),
	}
}

func TestHubAudienceTracking(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	meetingID := uuid.New()

	var counts []int
	hub.SetAudienceChangeHandler(func(id uuid.UUID, count int) {
		assert.Equal(t, meetingID, id)
		counts = append(counts, count)
	})

	c1 := testClient(meetingID)
	c2 := testClient(meetingID)
	hub.Register(c1)
	hub.Register(c2)
	assert.Equal(t, 2, hub.AudienceCount(meetingID))

	hub.Unregister(c1)
	hub.Unregister(c2)
	// Double unregister must not fire the handler again.
	hub.Unregister(c2)

	assert.Equal(t, []int{1, 2, 1, 0}, counts)
	assert.Zero(t, hub.AudienceCount(meetingID))
}

func TestHubBroadcastScopedToMeeting(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	meetingA := uuid.New()
	meetingB := uuid.New()

	inA := testClient(meetingA)
	inB := testClient(meetingB)
	hub.Register(inA)
	hub.Register(inB)

	hub.BroadcastToMeeting(meetingA, "status_changed", map[string]string{"status": "active"})

	select {
	case msg := <-inA.send:
		assert.Equal(t, "status_changed", msg.Event)
	default:
		t.Fatal("client in meeting A received nothing")
	}
	select {
	case <-inB.send:
		t.Fatal("client in meeting B must not receive meeting A events")
	default:
	}
}

func TestHubBroadcastDuringClientChurn(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	meetingID := uuid.New()

	// Clients connect and drop while status events fan out; run with -race.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			a := testClient(meetingID)
			b := testClient(meetingID)
			hub.Register(a)
			hub.Register(b)
			hub.Unregister(a)
			hub.Unregister(b)
		}
	}()
	for i := 0; i < 2000; i++ {
		hub.BroadcastToMeeting(meetingID, "status_changed", map[string]string{"status": "active"})
	}
	<-done
}

func TestStatusPublisherFallsBackToLocalBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	meetingID := uuid.New()
	c := testClient(meetingID)
	hub.Register(c)

	reason := models.EndReasonTimeLimit
	NewStatusPublisher(hub).PublishMeetingStatus(meetingID, models.MeetingStatusEnded, &reason)

	select {
	case msg := <-c.send:
		require.Equal(t, "status_changed", msg.Event)
		assert.Contains(t, string(msg.Data), `"ended"`)
		assert.Contains(t, string(msg.Data), `"time_limit"`)
	default:
		t.Fatal("no status event delivered")
	}
}

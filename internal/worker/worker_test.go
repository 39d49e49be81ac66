package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masilo-dev/alphaclone-meetings/pkg/queue"
)

func TestRecordingUploadWithoutS3(t *testing.T) {
	p := NewProcessor(nil, nil, nil, nil, nil)

	payload, err := json.Marshal(queue.RecordingUploadPayload{
		RecordingID: uuid.New(),
		MeetingID:   uuid.New(),
		OriginalURL: "https://cdn.example.com/rec.mp4",
	})
	require.NoError(t, err)

	// Must error (job retries into the DLQ), not panic.
	err = p.Process(context.Background(), &queue.Job{
		ID:      "job-1",
		Type:    queue.JobTypeRecordingUpload,
		Payload: payload,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 not configured")
}

func TestProcessRejectsUnknownJobType(t *testing.T) {
	p := NewProcessor(nil, nil, nil, nil, nil)
	err := p.Process(context.Background(), &queue.Job{ID: "job-2", Type: "mystery"})
	assert.Error(t, err)
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/masilo-dev/alphaclone-meetings/internal/provider"
	"github.com/masilo-dev/alphaclone-meetings/internal/recordings"
	"github.com/masilo-dev/alphaclone-meetings/pkg/queue"
	"github.com/masilo-dev/alphaclone-meetings/pkg/storage"
)

// Processor executes queued jobs: provider room cleanup and recording uploads.
type Processor struct {
	recRepo *recordings.Repository
	rooms   provider.RoomProvider
	s3      *storage.S3
	queue   *queue.Queue
	logger  *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(recRepo *recordings.Repository, rooms provider.RoomProvider, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{recRepo: recRepo, rooms: rooms, s3: s3, queue: q, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRoomCleanup:
		return p.processRoomCleanup(ctx, job)
	case queue.JobTypeRecordingUpload:
		return p.processRecordingUpload(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// processRoomCleanup deletes a provider room that has no meeting record behind it.
func (p *Processor) processRoomCleanup(ctx context.Context, job *queue.Job) error {
	var payload queue.RoomCleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.RoomName == "" {
		return fmt.Errorf("empty room name")
	}
	if err := p.rooms.DeleteRoom(ctx, payload.RoomName); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	p.logger.Info("orphaned room deleted", zap.String("room_name", payload.RoomName))
	return nil
}

// processRecordingUpload downloads the recording from the provider URL,
// streams it to S3 and updates the DB row.
func (p *Processor) processRecordingUpload(ctx context.Context, job *queue.Job) error {
	var payload queue.RecordingUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	// S3 is optional at startup; without it the job must fail into
	// retry/DLQ instead of dereferencing a nil client.
	if p.s3 == nil {
		return fmt.Errorf("s3 not configured")
	}

	rec, err := p.recRepo.GetByID(ctx, payload.RecordingID)
	if err != nil || rec == nil {
		return fmt.Errorf("recording not found: %s", payload.RecordingID)
	}
	if rec.Status == "completed" {
		p.logger.Info("recording already completed", zap.String("recording_id", rec.ID.String()))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.OriginalURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	key := storage.RecordingKey(payload.MeetingID.String(), payload.RecordingID.String())

	// Stream upload to S3 (no full buffer)
	s3URL, err := p.s3.Upload(ctx, p.s3.RecordingsBucket(), key, contentType, resp.Body, resp.ContentLength)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.recRepo.UpdateS3Result(ctx, payload.RecordingID, s3URL, key, resp.ContentLength, rec.Duration); err != nil {
		p.logger.Error("update recording S3 result failed", zap.Error(err), zap.String("recording_id", payload.RecordingID.String()))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("recording upload completed", zap.String("recording_id", payload.RecordingID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, queueKey, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job, queueKey); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"jozvesaz/internal/tasks"
)

// AsynqJobClient is the concrete JobClient backed by an asynq/Redis queue.
var _ JobClient = (*AsynqJobClient)(nil)

type AsynqJobClient struct {
	client *asynq.Client
	queue  string
}

// NewAsynqJobClient builds a job client for the given Redis connection.
// queue is the queue name jobs are published to.
func NewAsynqJobClient(redisAddr, redisPassword string, redisDB int, queue string) (*AsynqJobClient, error) {
	if redisAddr == "" {
		return nil, fmt.Errorf("redis address cannot be empty for AsynqJobClient")
	}
	cli := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
	return &AsynqJobClient{client: cli, queue: queue}, nil
}

func (jc *AsynqJobClient) Close() error {
	return jc.client.Close()
}

// EnqueueTranscription publishes a transcription job for the given task and
// input location. The call is fire-and-forget with respect to processing:
// success only means the job is durably queued. A failed enqueue means the
// operation did not happen, and callers must not commit the task row.
func (jc *AsynqJobClient) EnqueueTranscription(ctx context.Context, taskID uuid.UUID, filePath string) error {
	task, err := tasks.NewTranscriptionTask(taskID.String(), filePath)
	if err != nil {
		return err
	}
	info, err := jc.client.EnqueueContext(ctx, task, asynq.Queue(jc.queue))
	if err != nil {
		log.WithError(err).WithField("task_id", taskID).Error("failed to enqueue transcription job")
		return fmt.Errorf("enqueue transcription job for task %s: %w", taskID, err)
	}
	log.WithFields(log.Fields{
		"task_id": taskID,
		"job_id":  info.ID,
		"queue":   info.Queue,
	}).Debug("enqueued transcription job")
	return nil
}

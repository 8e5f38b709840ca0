// Package worker implements the task lifecycle controller: the asynq
// handlers that drive a task from PENDING through PROCESSING to a terminal
// state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"jozvesaz/internal/models"
	"jozvesaz/internal/storagepath"
	"jozvesaz/internal/store"
	"jozvesaz/internal/tasks"
	"jozvesaz/internal/transcribe"
)

// TranscriptionDeps carries everything the transcription handler needs.
// Built once per worker process and shared across handler invocations.
type TranscriptionDeps struct {
	Tasks       store.TaskStore
	Transcriber transcribe.Transcriber
	StorageRoot string
}

// RegisterHandlers registers all worker job handlers on mux.
func RegisterHandlers(mux *asynq.ServeMux, deps TranscriptionDeps) {
	mux.HandleFunc(tasks.TypeTranscription, HandleTranscriptionJob(deps))
}

// HandleTranscriptionJob returns the handler for transcription jobs.
//
// The transition sequence is: load the task (a missing row means the job
// has no retry target and is dropped), mark PROCESSING (clearing any stale
// result fields) before any work begins, resolve and transcribe the input, then
// record COMPLETED with result path and completion time in one update. Any
// failure after the PROCESSING mark cleans up partial output, best-effort
// records FAILED, and returns the original error so the queue's retry
// bookkeeping sees it. Errors wrapped with asynq.SkipRetry are fatal and
// never redelivered.
func HandleTranscriptionJob(deps TranscriptionDeps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := tasks.ParseTranscriptionPayload(t.Payload())
		if err != nil {
			log.WithError(err).Error("malformed transcription payload")
			return fmt.Errorf("malformed transcription payload: %v: %w", err, asynq.SkipRetry)
		}

		taskID, err := uuid.Parse(payload.TaskID)
		if err != nil {
			// No task row can be located from a malformed id, so there is
			// nothing to mark FAILED and nothing a retry could fix.
			log.WithField("raw_task_id", payload.TaskID).WithError(err).Error("received invalid task identifier")
			return fmt.Errorf("invalid task identifier %q: %v: %w", payload.TaskID, err, asynq.SkipRetry)
		}

		logger := log.WithField("task_id", taskID)
		logger.Info("starting transcription")

		if _, err := deps.Tasks.GetTask(ctx, taskID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logger.Error("task no longer exists; dropping job")
				return fmt.Errorf("task %s not found: %w", taskID, asynq.SkipRetry)
			}
			return fmt.Errorf("load task %s: %w", taskID, err)
		}

		if err := deps.Tasks.UpdateTaskStatus(ctx, taskID, models.TaskStatusProcessing, nil, nil); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logger.Error("task no longer exists; dropping job")
				return fmt.Errorf("task %s not found: %w", taskID, asynq.SkipRetry)
			}
			return fmt.Errorf("mark task %s processing: %w", taskID, err)
		}

		sourcePath := storagepath.ResolveUpload(deps.StorageRoot, payload.FilePath)
		destPath := storagepath.DefaultResultPath(deps.StorageRoot, taskID)

		if runErr := runTranscription(ctx, deps.Transcriber, sourcePath, destPath); runErr != nil {
			// Partial output must not survive a failed attempt. Removal
			// errors are ignored; the original failure is what matters.
			_ = os.Remove(destPath)

			if err := deps.Tasks.UpdateTaskStatus(ctx, taskID, models.TaskStatusFailed, nil, nil); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					logger.Error("unable to mark task as FAILED because it no longer exists")
				} else {
					logger.WithError(err).Error("failed to record FAILED status")
				}
			}
			logger.WithError(runErr).Error("transcription failed")
			return runErr
		}

		completedAt := time.Now().UTC()
		resultPath := destPath
		if err := deps.Tasks.UpdateTaskStatus(ctx, taskID, models.TaskStatusCompleted, &resultPath, &completedAt); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logger.Error("task disappeared before completion could be recorded")
				return fmt.Errorf("task %s not found at completion: %w", taskID, asynq.SkipRetry)
			}
			return fmt.Errorf("mark task %s completed: %w", taskID, err)
		}

		logger.WithField("result_path", resultPath).Info("completed transcription")
		return nil
	}
}

// runTranscription performs the execute step: input existence check,
// transcription, result write.
func runTranscription(ctx context.Context, transcriber transcribe.Transcriber, sourcePath, destPath string) error {
	if _, err := os.Stat(sourcePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file %s does not exist: %w", sourcePath, os.ErrNotExist)
		}
		return fmt.Errorf("stat input file %s: %w", sourcePath, err)
	}

	text, err := transcriber.Transcribe(ctx, sourcePath)
	if err != nil {
		return fmt.Errorf("transcribe %s: %w", sourcePath, err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}
	if err := os.WriteFile(destPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write result file %s: %w", destPath, err)
	}
	return nil
}

// Package tasks defines the queue task types and payloads shared by the API
// process (producer) and the worker process (consumer).
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeTranscription is the task type for transcribing an uploaded file.
const TypeTranscription = "transcription:process"

// TranscriptionPayload is the JSON payload carried by a transcription task.
// TaskID stays a string on the wire; the worker parses it and treats a
// malformed value as fatal.
type TranscriptionPayload struct {
	TaskID   string `json:"task_id"`
	FilePath string `json:"file_path"`
}

// NewTranscriptionTask builds an asynq task for the given task record and
// uploaded input location.
func NewTranscriptionTask(taskID, filePath string) (*asynq.Task, error) {
	payload, err := json.Marshal(TranscriptionPayload{TaskID: taskID, FilePath: filePath})
	if err != nil {
		return nil, fmt.Errorf("marshal transcription payload: %w", err)
	}
	return asynq.NewTask(TypeTranscription, payload), nil
}

// ParseTranscriptionPayload decodes a transcription task payload.
func ParseTranscriptionPayload(data []byte) (TranscriptionPayload, error) {
	var p TranscriptionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("unmarshal transcription payload: %w", err)
	}
	return p, nil
}

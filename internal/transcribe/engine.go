// Package transcribe holds the transcription capability behind a small
// interface so the worker can swap in a genuine ML-backed engine without
// touching the job code.
package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Transcriber converts an input artifact into text output.
type Transcriber interface {
	Transcribe(ctx context.Context, inputPath string) (string, error)
}

// ModelConfig is the configuration shared by every engine instance.
// DeviceIndex < 0 selects the device automatically.
type ModelConfig struct {
	Name        string
	DeviceIndex int
	ComputeType string
	LoadIn8Bit  bool
}

func (c ModelConfig) deviceLabel() string {
	if c.DeviceIndex < 0 {
		return "auto"
	}
	return fmt.Sprintf("%d", c.DeviceIndex)
}

// Engine is the current placeholder implementation: it echoes text content
// back under a transcription header. Real implementations would perform
// heavyweight model loading in NewEngine, which is why the engine is
// constructed once at process start and injected into the worker.
type Engine struct {
	cfg ModelConfig
	now func() time.Time
}

var _ Transcriber = (*Engine)(nil)

// NewEngine constructs the transcription engine for the given model config.
func NewEngine(cfg ModelConfig) *Engine {
	log.WithFields(log.Fields{
		"model":        cfg.Name,
		"device_index": cfg.deviceLabel(),
		"compute_type": cfg.ComputeType,
		"load_in_8bit": cfg.LoadIn8Bit,
	}).Info("initializing transcription model")
	return &Engine{cfg: cfg, now: time.Now}
}

// Transcribe reads the input file and produces its transcription text.
// Input bytes are decoded as UTF-8 with invalid sequences dropped; content
// that decodes to nothing is replaced by a placeholder naming the byte
// count.
func (e *Engine) Transcribe(_ context.Context, inputPath string) (string, error) {
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return "", fmt.Errorf("read transcription input: %w", err)
	}

	text := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
	if text == "" {
		text = fmt.Sprintf("[binary content: %d bytes]", len(raw))
	}

	timestamp := e.now().UTC().Format(time.RFC3339Nano)
	return strings.Join([]string{
		"# Transcription for " + filepath.Base(inputPath),
		"Generated at " + timestamp,
		"",
		text,
	}, "\n"), nil
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eleven-am/trackie/internal/media"
	"github.com/eleven-am/trackie/internal/shared"
)

const DefaultMaxReadFailures = 5

type MicrophoneConfig struct {
	Open            AudioSourceOpener
	Queue           *media.Queue
	MaxReadFailures int
	Logger          *slog.Logger
}

// Microphone pushes PCM chunks into the inbound queue as fast as the device
// delivers them.
type Microphone struct {
	open        AudioSourceOpener
	queue       *media.Queue
	maxFailures int
	logger      *slog.Logger
}

func NewMicrophone(cfg MicrophoneConfig) *Microphone {
	if cfg.MaxReadFailures <= 0 {
		cfg.MaxReadFailures = DefaultMaxReadFailures
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Microphone{
		open:        cfg.Open,
		queue:       cfg.Queue,
		maxFailures: cfg.MaxReadFailures,
		logger:      cfg.Logger.With("component", "microphone"),
	}
}

// Run streams until ctx ends, the queue closes, or the device fails
// repeatedly. The device is released on every exit path.
func (m *Microphone) Run(ctx context.Context) error {
	src, err := m.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open microphone: %w", shared.ErrFatalCapture, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.logger.Warn("close microphone failed", "error", err)
		}
		m.logger.Info("microphone released")
	}()

	m.logger.Info("microphone listening", "sample_rate", src.SampleRate())

	failures := 0
	for {
		chunk, err := runBlocking(ctx, src.ReadChunk)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			m.logger.Warn("microphone read failed", "error", err, "consecutive_failures", failures)
			if failures >= m.maxFailures {
				return fmt.Errorf("%w: microphone: %w", shared.ErrFatalCapture, err)
			}
			continue
		}
		failures = 0

		if err := m.queue.Push(media.Audio(chunk, src.SampleRate())); errors.Is(err, media.ErrClosed) {
			return nil
		}
	}
}

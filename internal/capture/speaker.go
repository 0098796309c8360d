package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eleven-am/trackie/internal/audio"
	"github.com/eleven-am/trackie/internal/media"
	"github.com/eleven-am/trackie/internal/shared"
)

const DefaultModelSampleRate = 24000

type SpeakerConfig struct {
	Open  AudioSinkOpener
	Queue *media.Queue
	// SourceRate is the sample rate of the audio the model produces.
	SourceRate int
	Logger     *slog.Logger
}

// Speaker is the single consumer of the outbound audio queue.
type Speaker struct {
	open       AudioSinkOpener
	queue      *media.Queue
	sourceRate int
	logger     *slog.Logger
}

func NewSpeaker(cfg SpeakerConfig) *Speaker {
	if cfg.SourceRate <= 0 {
		cfg.SourceRate = DefaultModelSampleRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Speaker{
		open:       cfg.Open,
		queue:      cfg.Queue,
		sourceRate: cfg.SourceRate,
		logger:     cfg.Logger.With("component", "speaker"),
	}
}

// Run plays queued audio in order until the queue is closed and drained or
// ctx ends. Write failures drop the chunk.
func (s *Speaker) Run(ctx context.Context) error {
	sink, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open speaker: %w", shared.ErrFatalCapture, err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			s.logger.Warn("close speaker failed", "error", err)
		}
		s.logger.Info("speaker released")
	}()

	if sink.SampleRate() != s.sourceRate {
		s.logger.Info("resampling model audio", "from", s.sourceRate, "to", sink.SampleRate())
	}

	for {
		item, err := s.queue.Pop(ctx)
		if errors.Is(err, media.ErrClosed) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if item.Kind != media.KindAudio || len(item.Data) == 0 {
			continue
		}

		pcm := audio.ResamplePCM(item.Data, s.sourceRate, sink.SampleRate())
		if _, err := runBlocking(ctx, func() (struct{}, error) {
			return struct{}{}, sink.Write(pcm)
		}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("speaker write failed, dropping chunk", "error", err, "bytes", len(pcm))
		}
	}
}

package capture

import (
	"context"
	"testing"
	"time"

	"github.com/eleven-am/trackie/internal/media"
)

func TestSpeaker_PlaysInOrderAndResamples(t *testing.T) {
	sink := newFakeAudioSink(16000)
	queue := media.NewQueue("out", 8, nil)
	spk := NewSpeaker(SpeakerConfig{Open: func(ctx context.Context) (AudioSink, error) { return sink, nil }, Queue: queue})

	queue.Push(media.Audio(make([]byte, 480), 24000))
	queue.Push(media.Text("ignored"))
	queue.Push(media.Audio(make([]byte, 960), 24000))
	queue.Close()

	if err := spk.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	writes := sink.all()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(writes))
	}
	if len(writes[0]) != 320 || len(writes[1]) != 640 {
		t.Errorf("expected 24kHz audio resampled to 16kHz, got %d and %d bytes", len(writes[0]), len(writes[1]))
	}
	if !sink.closed.Load() {
		t.Error("speaker device was not released")
	}
}

func TestSpeaker_WriteFailureDropsChunk(t *testing.T) {
	sink := newFakeAudioSink(24000)
	sink.failOn = 0
	queue := media.NewQueue("out", 8, nil)
	spk := NewSpeaker(SpeakerConfig{Open: func(ctx context.Context) (AudioSink, error) { return sink, nil }, Queue: queue})

	queue.Push(media.Audio([]byte{1, 0}, 24000))
	queue.Push(media.Audio([]byte{2, 0}, 24000))
	queue.Close()

	if err := spk.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	writes := sink.all()
	if len(writes) != 1 || writes[0][0] != 2 {
		t.Errorf("expected only the second chunk played, got %v", writes)
	}
}

func TestSpeaker_StopsOnCancel(t *testing.T) {
	sink := newFakeAudioSink(24000)
	spk := NewSpeaker(SpeakerConfig{Open: func(ctx context.Context) (AudioSink, error) { return sink, nil }, Queue: media.NewQueue("out", 8, nil)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- spk.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("speaker did not stop")
	}
}

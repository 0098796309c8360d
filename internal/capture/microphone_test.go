package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eleven-am/trackie/internal/media"
	"github.com/eleven-am/trackie/internal/shared"
)

func TestMicrophone_PushesChunks(t *testing.T) {
	src := newFakeAudioSource(16000)
	queue := media.NewQueue("in", 8, nil)
	mic := NewMicrophone(MicrophoneConfig{Open: src.opener(), Queue: queue})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mic.Run(ctx) }()

	src.chunks <- []byte{1, 2}
	src.chunks <- []byte{3, 4}

	popCtx, popCancel := context.WithTimeout(context.Background(), time.Second)
	defer popCancel()
	for _, want := range []byte{1, 3} {
		item, err := queue.Pop(popCtx)
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		if item.Kind != media.KindAudio || item.Data[0] != want {
			t.Errorf("unexpected item %+v", item)
		}
		if item.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("unexpected mime type %q", item.MIMEType)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("microphone did not stop after cancel")
	}
}

func TestMicrophone_CancelReleasesDevice(t *testing.T) {
	src := newFakeAudioSource(16000)
	mic := NewMicrophone(MicrophoneConfig{Open: src.opener(), Queue: media.NewQueue("in", 8, nil)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mic.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("microphone blocked in read after cancel")
	}
	if !src.closed.Load() {
		t.Error("microphone device was not released")
	}
}

func TestMicrophone_OpenFailureIsFatal(t *testing.T) {
	mic := NewMicrophone(MicrophoneConfig{
		Open: func(ctx context.Context) (AudioSource, error) {
			return nil, errDevice
		},
		Queue: media.NewQueue("in", 8, nil),
	})

	err := mic.Run(context.Background())
	if !errors.Is(err, shared.ErrFatalCapture) || !errors.Is(err, errDevice) {
		t.Errorf("expected fatal capture error wrapping the cause, got %v", err)
	}
}

func TestMicrophone_RepeatedFailuresAreFatal(t *testing.T) {
	src := newFakeAudioSource(16000)
	for i := 0; i < 3; i++ {
		src.errs <- errDevice
	}
	mic := NewMicrophone(MicrophoneConfig{Open: src.opener(), Queue: media.NewQueue("in", 8, nil), MaxReadFailures: 3})

	err := mic.Run(context.Background())
	if !errors.Is(err, shared.ErrFatalCapture) {
		t.Errorf("expected fatal capture error, got %v", err)
	}
	if !src.closed.Load() {
		t.Error("device should be released after a fatal error")
	}
}

func TestMicrophone_StopsWhenQueueCloses(t *testing.T) {
	src := newFakeAudioSource(16000)
	queue := media.NewQueue("in", 8, nil)
	queue.Close()
	src.chunks <- []byte{1, 2}

	mic := NewMicrophone(MicrophoneConfig{Open: src.opener(), Queue: queue})
	if err := mic.Run(context.Background()); err != nil {
		t.Errorf("expected nil when the queue is closed, got %v", err)
	}
}

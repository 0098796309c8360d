package capture

import (
	"context"
	"image"
)

// AudioSource yields fixed-size mono 16-bit PCM chunks. ReadChunk blocks;
// Close must unblock a pending read.
type AudioSource interface {
	ReadChunk() ([]byte, error)
	SampleRate() int
	Close() error
}

// AudioSink plays mono 16-bit PCM at its own sample rate.
type AudioSink interface {
	Write(pcm []byte) error
	SampleRate() int
	Close() error
}

// FrameSource yields decoded frames. ReadFrame blocks; Close must unblock a
// pending read.
type FrameSource interface {
	ReadFrame() (image.Image, error)
	Close() error
}

type (
	AudioSourceOpener func(ctx context.Context) (AudioSource, error)
	AudioSinkOpener   func(ctx context.Context) (AudioSink, error)
	FrameSourceOpener func(ctx context.Context) (FrameSource, error)
)

type blockingResult[T any] struct {
	value T
	err   error
}

// runBlocking runs a blocking device call on its own goroutine so the caller
// observes ctx while it waits. The call keeps running after ctx ends until
// the device is closed.
func runBlocking[T any](ctx context.Context, read func() (T, error)) (T, error) {
	done := make(chan blockingResult[T], 1)
	go func() {
		v, err := read()
		done <- blockingResult[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/trackie/internal/spatial"
	"github.com/eleven-am/trackie/internal/vision"
)

var errDevice = errors.New("device error")

type fakeAudioSource struct {
	chunks chan []byte
	errs   chan error
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
	rate   int
}

func newFakeAudioSource(rate int) *fakeAudioSource {
	return &fakeAudioSource{
		chunks: make(chan []byte, 16),
		errs:   make(chan error, 16),
		done:   make(chan struct{}),
		rate:   rate,
	}
}

func (f *fakeAudioSource) ReadChunk() ([]byte, error) {
	select {
	case c := <-f.chunks:
		return c, nil
	case err := <-f.errs:
		return nil, err
	case <-f.done:
		return nil, errors.New("closed")
	}
}

func (f *fakeAudioSource) SampleRate() int {
	return f.rate
}

func (f *fakeAudioSource) Close() error {
	f.once.Do(func() {
		f.closed.Store(true)
		close(f.done)
	})
	return nil
}

func (f *fakeAudioSource) opener() AudioSourceOpener {
	return func(ctx context.Context) (AudioSource, error) {
		return f, nil
	}
}

type fakeAudioSink struct {
	mu      sync.Mutex
	writes  [][]byte
	rate    int
	failOn  int
	closed  atomic.Bool
	written chan struct{}
}

func newFakeAudioSink(rate int) *fakeAudioSink {
	return &fakeAudioSink{rate: rate, failOn: -1, written: make(chan struct{}, 64)}
}

func (f *fakeAudioSink) Write(pcm []byte) error {
	f.mu.Lock()
	defer func() {
		f.mu.Unlock()
		f.written <- struct{}{}
	}()
	if len(f.writes) == f.failOn {
		f.failOn = -1
		return errDevice
	}
	f.writes = append(f.writes, pcm)
	return nil
}

func (f *fakeAudioSink) SampleRate() int {
	return f.rate
}

func (f *fakeAudioSink) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeAudioSink) all() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

type fakeFrameSource struct {
	failures atomic.Int32
	done     chan struct{}
	once     sync.Once
	closed   atomic.Bool
	reads    atomic.Int32
}

func newFakeFrameSource() *fakeFrameSource {
	return &fakeFrameSource{done: make(chan struct{})}
}

func (f *fakeFrameSource) ReadFrame() (image.Image, error) {
	f.reads.Add(1)
	if f.failures.Load() != 0 {
		f.failures.Add(-1)
		return nil, errDevice
	}
	select {
	case <-f.done:
		return nil, errors.New("closed")
	default:
	}
	return testImage(64, 48), nil
}

func (f *fakeFrameSource) Close() error {
	f.once.Do(func() {
		f.closed.Store(true)
		close(f.done)
	})
	return nil
}

func (f *fakeFrameSource) opener() FrameSourceOpener {
	return func(ctx context.Context) (FrameSource, error) {
		return f, nil
	}
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

type fakeDetector struct {
	detections vision.DetectionSet
	err        error
}

func (f *fakeDetector) Detect(ctx context.Context, frame *vision.Frame) (vision.DetectionSet, error) {
	return f.detections, f.err
}

func (f *fakeDetector) Classes() spatial.ClassTable {
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records [][]string
}

func (f *fakeHistory) RecordDetections(ctx context.Context, sessionID string, timestamp int64, classes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, classes)
	return nil
}

type fakeClaimer struct {
	granted bool
	err     error
	calls   int
}

func (f *fakeClaimer) ClaimAlert(ctx context.Context, sessionID, className string, cooldown time.Duration) (bool, error) {
	f.calls++
	return f.granted, f.err
}

type fakePublisher struct {
	mu    sync.Mutex
	snaps []vision.Snapshot
}

func (f *fakePublisher) Publish(snap vision.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snap)
}

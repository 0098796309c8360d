package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eleven-am/trackie/internal/inference"
	"github.com/eleven-am/trackie/internal/media"
	"github.com/eleven-am/trackie/internal/shared"
	"github.com/eleven-am/trackie/internal/vision"
)

const (
	DefaultFPS           = 1.0
	DefaultAlertCooldown = 10 * time.Second
)

var DefaultWatchList = []string{"knife", "scissors", "car", "motorcycle", "bicycle", "bus", "truck"}

// DetectionHistory records which classes were seen in a frame.
type DetectionHistory interface {
	RecordDetections(ctx context.Context, sessionID string, timestamp int64, classes []string) error
}

// AlertClaimer grants at most one alert per class per cooldown window.
type AlertClaimer interface {
	ClaimAlert(ctx context.Context, sessionID, className string, cooldown time.Duration) (bool, error)
}

// SnapshotPublisher receives every snapshot the camera produces.
type SnapshotPublisher interface {
	Publish(snap vision.Snapshot)
}

type CameraConfig struct {
	SessionID       string
	UserName        string
	Open            FrameSourceOpener
	Queue           *media.Queue
	State           *vision.State
	Encoder         *vision.Encoder
	Detector        inference.Detector
	History         DetectionHistory
	Alerts          AlertClaimer
	Preview         SnapshotPublisher
	WatchList       []string
	AlertCooldown   time.Duration
	FPS             float64
	MaxReadFailures int
	Logger          *slog.Logger
}

// Camera captures frames at a fixed cadence, runs detection, publishes the
// snapshot and forwards the encoded frame to the model.
type Camera struct {
	cfg      CameraConfig
	cooldown *memoryCooldown
	logger   *slog.Logger
}

func NewCamera(cfg CameraConfig) *Camera {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.MaxReadFailures <= 0 {
		cfg.MaxReadFailures = DefaultMaxReadFailures
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = DefaultAlertCooldown
	}
	if cfg.WatchList == nil {
		cfg.WatchList = DefaultWatchList
	}
	if cfg.Encoder == nil {
		cfg.Encoder = vision.NewEncoder(vision.DefaultMaxDimension, 50)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Camera{
		cfg:      cfg,
		cooldown: newMemoryCooldown(),
		logger:   cfg.Logger.With("component", "camera", "session_id", cfg.SessionID),
	}
}

// AlertText is the user turn sent when a watch-listed class shows up.
func AlertText(userName, className string) string {
	return fmt.Sprintf("DANGER ALERT: warn %s URGENTLY that a '%s' was detected!", userName, strings.ToUpper(className))
}

func (c *Camera) Run(ctx context.Context) error {
	src, err := c.cfg.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open camera: %w", shared.ErrFatalCapture, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			c.logger.Warn("close camera failed", "error", err)
		}
		c.logger.Info("camera released")
	}()

	c.logger.Info("camera started", "fps", c.cfg.FPS, "detector", c.cfg.Detector != nil)

	limiter := rate.NewLimiter(rate.Limit(c.cfg.FPS), 1)
	failures := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		img, err := runBlocking(ctx, src.ReadFrame)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			c.logger.Warn("camera read failed", "error", err, "consecutive_failures", failures)
			if failures >= c.cfg.MaxReadFailures {
				return fmt.Errorf("%w: camera: %w", shared.ErrFatalCapture, err)
			}
			continue
		}
		failures = 0

		now := time.Now()
		frame, err := c.cfg.Encoder.Encode(img, now.UnixMilli())
		if err != nil {
			c.logger.Warn("frame encode failed", "error", err)
			continue
		}
		frame.SessionID = c.cfg.SessionID

		if err := c.process(ctx, frame, now); errors.Is(err, media.ErrClosed) {
			return nil
		}
	}
}

func (c *Camera) process(ctx context.Context, frame *vision.Frame, capturedAt time.Time) error {
	detections := c.detect(ctx, frame)

	snap := vision.Snapshot{Frame: frame, Detections: detections, CapturedAt: capturedAt}
	c.cfg.State.Write(snap)
	if c.cfg.Preview != nil {
		c.cfg.Preview.Publish(snap)
	}

	if err := c.cfg.Queue.Push(media.Image(frame.Data)); err != nil {
		return err
	}

	classes := detections.ClassNames()
	if len(classes) == 0 {
		return nil
	}

	if c.cfg.History != nil {
		if err := c.cfg.History.RecordDetections(ctx, c.cfg.SessionID, frame.Timestamp, classes); err != nil {
			c.logger.Warn("record detections failed", "error", err)
		}
	}

	for _, class := range classes {
		if !slices.Contains(c.cfg.WatchList, class) || !c.claim(ctx, class) {
			continue
		}
		c.logger.Warn("danger alert", "class", class)
		if err := c.cfg.Queue.PushPriority(media.Text(AlertText(c.cfg.UserName, class))); err != nil {
			return err
		}
	}
	return nil
}

func (c *Camera) detect(ctx context.Context, frame *vision.Frame) vision.DetectionSet {
	if c.cfg.Detector == nil {
		return nil
	}
	detections, err := c.cfg.Detector.Detect(ctx, frame)
	if err != nil {
		c.logger.Warn("detection failed", "error", err)
		return nil
	}
	if detections == nil {
		detections = vision.DetectionSet{}
	}
	return detections
}

func (c *Camera) claim(ctx context.Context, class string) bool {
	if c.cfg.Alerts != nil {
		ok, err := c.cfg.Alerts.ClaimAlert(ctx, c.cfg.SessionID, class, c.cfg.AlertCooldown)
		if err == nil {
			return ok
		}
		c.logger.Warn("alert claim failed, using local cooldown", "class", class, "error", err)
	}
	return c.cooldown.claim(class, c.cfg.AlertCooldown, time.Now())
}

type memoryCooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newMemoryCooldown() *memoryCooldown {
	return &memoryCooldown{last: make(map[string]time.Time)}
}

func (m *memoryCooldown) claim(class string, cooldown time.Duration, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.last[class]; ok && now.Sub(last) < cooldown {
		return false
	}
	m.last[class] = now
	return true
}

package inference

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/trackie/internal/shared"
	"github.com/eleven-am/trackie/internal/spatial"
	"github.com/eleven-am/trackie/internal/vision"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client talks to the inference sidecar. Requests and responses are
// google.protobuf.Struct messages so the sidecar needs no generated stubs.
type Client struct {
	addr      string
	dialOpts  []grpc.DialOption
	token     string
	timeout   time.Duration
	threshold float64
	backoff   shared.BackoffConfig
	logger    *slog.Logger

	mu      sync.RWMutex
	conn    *grpc.ClientConn
	classes spatial.ClassTable

	// Consecutive Unavailable errors; reaching unavailableThreshold starts a
	// background reconnect bound to the client's lifetime.
	unavailable  atomic.Int32
	reconnecting atomic.Bool
	lifetime     context.Context
	stop         context.CancelFunc
}

const unavailableThreshold = 3

func New(cfg Config, logger *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	var creds grpc.DialOption
	if cfg.TLSCreds != nil {
		creds = grpc.WithTransportCredentials(cfg.TLSCreds)
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	dialOpts := append([]grpc.DialOption{creds}, opts...)
	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial sidecar: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	lifetime, stop := context.WithCancel(context.Background())
	return &Client{
		addr:      cfg.Address,
		dialOpts:  dialOpts,
		conn:      conn,
		token:     cfg.Token,
		timeout:   timeout,
		threshold: cfg.ConfidenceThreshold,
		backoff:   normalizeBackoff(cfg.Backoff),
		logger:    logger.With("component", "inference-client"),
		lifetime:  lifetime,
		stop:      stop,
	}, nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return false
	}
	s := conn.GetState()
	return s == connectivity.Ready || s == connectivity.Idle
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	md := metadata.MD{}
	if c.token != "" {
		md.Set("authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	ctx, cancel := context.WithTimeout(metadata.NewOutgoingContext(ctx, md), c.timeout)
	defer cancel()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	out := &structpb.Struct{}
	err = conn.Invoke(ctx, method, in, out)
	c.observe(err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) observe(err error) {
	if status.Code(err) != codes.Unavailable {
		c.unavailable.Store(0)
		return
	}
	failures := c.unavailable.Add(1)
	if failures < unavailableThreshold || !c.reconnecting.CompareAndSwap(false, true) {
		return
	}

	c.logger.Warn("sidecar unavailable, reconnecting", "failures", failures)
	go func() {
		defer c.reconnecting.Store(false)
		if err := c.Reconnect(c.lifetime); err != nil {
			c.logger.Error("sidecar reconnect failed", "error", err)
			return
		}
		c.unavailable.Store(0)
	}()
}

func frameRequest(frame *vision.Frame) map[string]any {
	return map[string]any{
		"image":  base64.StdEncoding.EncodeToString(frame.Data),
		"width":  frame.Width,
		"height": frame.Height,
	}
}

// LoadClasses fetches the detector's class-id table. Failures leave the
// table empty and detections fall back to the names the sidecar attaches.
func (c *Client) LoadClasses(ctx context.Context) error {
	resp, err := c.invoke(ctx, methodClasses, map[string]any{})
	if err != nil {
		return fmt.Errorf("load classes: %w", err)
	}

	var table spatial.ClassTable
	for _, v := range resp.GetFields()["classes"].GetListValue().GetValues() {
		table = append(table, v.GetStringValue())
	}

	c.mu.Lock()
	c.classes = table
	c.mu.Unlock()

	c.logger.Info("detector classes loaded", "count", len(table))
	return nil
}

func (c *Client) Classes() spatial.ClassTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classes
}

func (c *Client) Detect(ctx context.Context, frame *vision.Frame) (vision.DetectionSet, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, shared.ErrNoFrame
	}

	req := frameRequest(frame)
	req["confidence"] = c.threshold

	resp, err := c.invoke(ctx, methodDetect, req)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	values := resp.GetFields()["detections"].GetListValue().GetValues()
	set := make(vision.DetectionSet, 0, len(values))
	for _, v := range values {
		f := v.GetStructValue().GetFields()
		d := vision.Detection{
			Box: vision.Box{
				X1: int(f["x1"].GetNumberValue()),
				Y1: int(f["y1"].GetNumberValue()),
				X2: int(f["x2"].GetNumberValue()),
				Y2: int(f["y2"].GetNumberValue()),
			},
			ClassID:    int(f["class_id"].GetNumberValue()),
			ClassName:  f["class_name"].GetStringValue(),
			Confidence: f["confidence"].GetNumberValue(),
		}
		if d.Confidence < c.threshold {
			continue
		}
		set = append(set, d)
	}
	return set, nil
}

// EstimateDepth expects the sidecar to return the map as base64 little-endian
// float32 values in row-major order.
func (c *Client) EstimateDepth(ctx context.Context, frame *vision.Frame) (*vision.DepthMap, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, shared.ErrNoFrame
	}

	resp, err := c.invoke(ctx, methodEstimateDepth, frameRequest(frame))
	if err != nil {
		return nil, fmt.Errorf("estimate depth: %w", err)
	}

	f := resp.GetFields()
	raw, err := base64.StdEncoding.DecodeString(f["values"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("decode depth values: %w", err)
	}

	depth := &vision.DepthMap{
		Width:  int(f["width"].GetNumberValue()),
		Height: int(f["height"].GetNumberValue()),
		Values: decodeFloat32s(raw),
	}
	if !depth.Valid() {
		return nil, fmt.Errorf("depth map %dx%d with %d values", depth.Width, depth.Height, len(depth.Values))
	}
	return depth, nil
}

func (c *Client) EmbedFaces(ctx context.Context, frame *vision.Frame) ([]Face, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, shared.ErrNoFrame
	}

	resp, err := c.invoke(ctx, methodEmbedFaces, frameRequest(frame))
	if err != nil {
		return nil, fmt.Errorf("embed faces: %w", err)
	}

	values := resp.GetFields()["faces"].GetListValue().GetValues()
	faces := make([]Face, 0, len(values))
	for _, v := range values {
		f := v.GetStructValue().GetFields()
		var embedding []float32
		for _, n := range f["embedding"].GetListValue().GetValues() {
			embedding = append(embedding, float32(n.GetNumberValue()))
		}
		if len(embedding) == 0 {
			continue
		}
		faces = append(faces, Face{
			Box: vision.Box{
				X1: int(f["x1"].GetNumberValue()),
				Y1: int(f["y1"].GetNumberValue()),
				X2: int(f["x2"].GetNumberValue()),
				Y2: int(f["y2"].GetNumberValue()),
			},
			Embedding: embedding,
		})
	}
	return faces, nil
}

func decodeFloat32s(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// Reconnect dials a fresh connection and swaps it in once it is Ready,
// retrying with exponential backoff until the attempts run out or ctx ends.
func (c *Client) Reconnect(ctx context.Context) error {
	delay := c.backoff.Initial
	var lastErr error
	for attempt := 1; attempt <= c.backoff.MaxAttempts; attempt++ {
		conn, err := c.dialReady(ctx)
		if err == nil {
			c.mu.Lock()
			old := c.conn
			c.conn = conn
			c.mu.Unlock()
			if old != nil {
				old.Close()
			}
			c.logger.Info("sidecar reconnected", "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("reconnect: %w", ctx.Err())
		}
		lastErr = err
		c.logger.Debug("sidecar reconnect attempt failed", "attempt", attempt, "error", err)
		if attempt == c.backoff.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("reconnect: %w", ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, c.backoff.MaxDelay)
	}
	return fmt.Errorf("reconnect after %d attempts: %w", c.backoff.MaxAttempts, lastErr)
}

func (c *Client) dialReady(ctx context.Context) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(c.addr, c.dialOpts...)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return conn, nil
		}
		if !conn.WaitForStateChange(waitCtx, state) {
			conn.Close()
			return nil, fmt.Errorf("sidecar not ready, last state %s", state)
		}
	}
}

func (c *Client) Close() error {
	c.stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func normalizeBackoff(cfg shared.BackoffConfig) shared.BackoffConfig {
	if cfg.Initial <= 0 {
		cfg.Initial = 100 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	return cfg
}

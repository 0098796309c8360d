package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eleven-am/trackie/internal/faces"
	"github.com/eleven-am/trackie/internal/inference"
	"github.com/eleven-am/trackie/internal/spatial"
	"github.com/eleven-am/trackie/internal/vision"
)

const (
	ToolLocateObject   = "locate_object_and_estimate_distance"
	ToolSaveFace       = "save_known_face"
	ToolIdentifyPerson = "identify_person_in_front"
	ToolRecallObjects  = "recall_recent_objects"
)

// VisionReader is the read side of the shared vision state.
type VisionReader interface {
	Read() (vision.Snapshot, bool)
}

type FaceIndex interface {
	Save(ctx context.Context, name string, embedding []float32) (string, error)
	Identify(ctx context.Context, embedding []float32) (faces.Match, bool, error)
}

type SightingHistory interface {
	RecentSightings(ctx context.Context, sessionID string, since int64) ([]vision.Sighting, error)
}

type HandlersConfig struct {
	SessionID string
	Vision    VisionReader
	Detector  inference.Detector
	Depth     inference.DepthEstimator
	Embedder  inference.FaceEmbedder
	Faces     FaceIndex
	History   SightingHistory
	Synonyms  spatial.Synonyms
	Sampler   spatial.RangeSampler
	// HistoryWindow caps how far back recall_recent_objects looks. It should
	// match the detection history TTL.
	HistoryWindow time.Duration
	Logger        *slog.Logger
}

const defaultHistoryWindow = 10 * time.Minute

// Handlers implements the assistant's tools against the latest snapshot and
// the inference collaborators. Collaborators left nil disable the tools that
// need them.
type Handlers struct {
	cfg    HandlersConfig
	logger *slog.Logger
}

func NewHandlers(cfg HandlersConfig) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sampler == nil {
		cfg.Sampler = spatial.MidpointSampler{}
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	return &Handlers{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "tool-handlers"),
	}
}

func (h *Handlers) Register(r *Registry) {
	r.Register(ToolLocateObject, h.LocateObject)
	if h.cfg.Embedder != nil && h.cfg.Faces != nil {
		r.Register(ToolSaveFace, h.SaveKnownFace)
		r.Register(ToolIdentifyPerson, h.IdentifyPerson)
	}
	if h.cfg.History != nil {
		r.Register(ToolRecallObjects, h.RecallRecentObjects)
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("argument %q is empty", key)
	}
	return s, nil
}

func (h *Handlers) classes() spatial.ClassTable {
	if h.cfg.Detector == nil {
		return nil
	}
	return h.cfg.Detector.Classes()
}

func (h *Handlers) LocateObject(ctx context.Context, args map[string]any) (string, error) {
	name, err := stringArg(args, "object_name")
	if err != nil {
		return fmt.Sprintf("I need the name of the object to look for (%v).", err), nil
	}

	snap, ok := h.cfg.Vision.Read()
	if !ok || !snap.HasDetections() {
		return "I can't process the image right now.", nil
	}

	classes := h.classes()
	match, found := spatial.MatchObject(name, snap.Detections, classes, h.cfg.Synonyms)
	if !found {
		return fmt.Sprintf("I couldn't find a %s in the image.", name), nil
	}

	loc := spatial.Location{
		Match:     match,
		Direction: spatial.EstimateDirection(match.Box, snap.Frame.Width),
		OnSurface: spatial.IsOnSurface(match.Box, snap.Detections, classes),
	}

	if h.cfg.Depth != nil {
		depth, err := h.cfg.Depth.EstimateDepth(ctx, snap.Frame)
		if err != nil {
			h.logger.Warn("depth estimation failed", "error", err)
		} else if steps, ok := spatial.EstimateSteps(depth, match.Box, h.cfg.Sampler); ok {
			loc.Steps = steps
		}
	}

	return loc.Sentence(), nil
}

func (h *Handlers) SaveKnownFace(ctx context.Context, args map[string]any) (string, error) {
	person, err := stringArg(args, "person_name")
	if err != nil {
		return fmt.Sprintf("I need the person's name to save their face (%v).", err), nil
	}

	frame, ok := h.latestFrame()
	if !ok {
		return "Sorry, I can't see anything right now to save the face.", nil
	}

	found, err := h.cfg.Embedder.EmbedFaces(ctx, frame)
	if err != nil {
		return "", fmt.Errorf("embed faces: %w", err)
	}
	if len(found) == 0 {
		return fmt.Sprintf("I couldn't detect a clear face to save for %s.", person), nil
	}

	if _, err := h.cfg.Faces.Save(ctx, person, largestFace(found).Embedding); err != nil {
		return "", fmt.Errorf("save face: %w", err)
	}
	return fmt.Sprintf("%s's face was saved successfully.", person), nil
}

func (h *Handlers) IdentifyPerson(ctx context.Context, _ map[string]any) (string, error) {
	frame, ok := h.latestFrame()
	if !ok {
		return "Sorry, I can't see anything right now to identify anyone.", nil
	}

	found, err := h.cfg.Embedder.EmbedFaces(ctx, frame)
	if err != nil {
		return "", fmt.Errorf("embed faces: %w", err)
	}
	if len(found) == 0 {
		return "I didn't detect a clear face.", nil
	}

	match, ok, err := h.cfg.Faces.Identify(ctx, largestFace(found).Embedding)
	if err != nil {
		if errors.Is(err, faces.ErrNotConfigured) {
			return "Face recognition is not available right now.", nil
		}
		return "", fmt.Errorf("identify face: %w", err)
	}
	if !ok {
		return "I detected a face, but it doesn't match anyone I know.", nil
	}
	return fmt.Sprintf("The person in front of you seems to be %s.", match.Name), nil
}

func (h *Handlers) RecallRecentObjects(ctx context.Context, args map[string]any) (string, error) {
	window := 60 * time.Second
	if v, ok := args["seconds"]; ok {
		if n, ok := v.(float64); ok && n > 0 {
			window = h.cfg.HistoryWindow
			if n < window.Seconds() {
				window = time.Duration(n * float64(time.Second))
			}
		}
	}

	since := time.Now().Add(-window).UnixMilli()
	sightings, err := h.cfg.History.RecentSightings(ctx, h.cfg.SessionID, since)
	if err != nil {
		return "", fmt.Errorf("recent sightings: %w", err)
	}
	if len(sightings) == 0 {
		return fmt.Sprintf("I haven't seen any objects in the last %d seconds.", int(window.Seconds())), nil
	}

	parts := make([]string, 0, len(sightings))
	now := time.Now().UnixMilli()
	for _, s := range sightings {
		ago := max(0, (now-s.LastSeen)/1000)
		parts = append(parts, fmt.Sprintf("%s (%ds ago)", s.ClassName, ago))
	}
	return fmt.Sprintf("In the last %d seconds I saw: %s.", int(window.Seconds()), strings.Join(parts, ", ")), nil
}

func (h *Handlers) latestFrame() (*vision.Frame, bool) {
	snap, ok := h.cfg.Vision.Read()
	if !ok {
		return nil, false
	}
	return snap.Frame, true
}

func largestFace(found []inference.Face) inference.Face {
	best := found[0]
	for _, f := range found[1:] {
		if f.Box.Width()*f.Box.Height() > best.Box.Width()*best.Box.Height() {
			best = f
		}
	}
	return best
}

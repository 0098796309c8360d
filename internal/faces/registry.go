package faces

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

var ErrNotConfigured = errors.New("face registry not configured")

// pointStore is the subset of *qdrant.Client the registry needs.
type pointStore interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

type Config struct {
	Collection string
	Threshold  float32
}

type Match struct {
	Name  string
	Score float32
}

// Registry stores face embeddings with the person's name and finds the closest
// known face by cosine similarity.
type Registry struct {
	points     pointStore
	collection string
	threshold  float32
	logger     *slog.Logger

	mu    sync.Mutex
	ready bool
}

func NewRegistry(client *qdrant.Client, cfg Config, logger *slog.Logger) *Registry {
	var points pointStore
	if client != nil {
		points = client
	}
	return newRegistry(points, cfg, logger)
}

func newRegistry(points pointStore, cfg Config, logger *slog.Logger) *Registry {
	if cfg.Collection == "" {
		cfg.Collection = "known_faces"
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.6
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		points:     points,
		collection: cfg.Collection,
		threshold:  cfg.Threshold,
		logger:     logger.With("component", "face-registry"),
	}
}

func (r *Registry) ensureCollection(ctx context.Context, dim int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}

	exists, err := r.points.CollectionExists(ctx, r.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		err := r.points.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: r.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		r.logger.Info("created face collection", "collection", r.collection, "dimension", dim)
	}
	r.ready = true
	return nil
}

// Save stores embedding under name and returns the new point id.
func (r *Registry) Save(ctx context.Context, name string, embedding []float32) (string, error) {
	if r.points == nil {
		return "", ErrNotConfigured
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("person name is empty")
	}
	if len(embedding) == 0 {
		return "", errors.New("embedding is empty")
	}
	if err := r.ensureCollection(ctx, len(embedding)); err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err := r.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(id),
				Vectors: qdrant.NewVectors(embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"name":     name,
					"saved_at": time.Now().Unix(),
				}),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("upsert face: %w", err)
	}
	return id, nil
}

// Identify returns the best known face scoring at least the threshold.
func (r *Registry) Identify(ctx context.Context, embedding []float32) (Match, bool, error) {
	if r.points == nil {
		return Match{}, false, ErrNotConfigured
	}
	if len(embedding) == 0 {
		return Match{}, false, errors.New("embedding is empty")
	}
	if err := r.ensureCollection(ctx, len(embedding)); err != nil {
		return Match{}, false, err
	}

	results, err := r.points.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(1)),
		ScoreThreshold: qdrant.PtrOf(r.threshold),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return Match{}, false, fmt.Errorf("query faces: %w", err)
	}

	for _, p := range results {
		if p.Score < r.threshold {
			continue
		}
		name := p.GetPayload()["name"].GetStringValue()
		if name == "" {
			continue
		}
		return Match{Name: name, Score: p.Score}, true, nil
	}
	return Match{}, false, nil
}

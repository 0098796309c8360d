package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps a short detection history per session and the danger-alert
// cooldown markers in Redis.
type Store struct {
	redis      *redis.Client
	historyTTL time.Duration
}

type detectionRecord struct {
	Timestamp int64    `json:"ts"`
	Classes   []string `json:"classes"`
}

func NewStore(redisClient *redis.Client, historyTTL time.Duration) *Store {
	if historyTTL == 0 {
		historyTTL = 5 * time.Minute
	}
	return &Store{
		redis:      redisClient,
		historyTTL: historyTTL,
	}
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("session:%s:detections", sessionID)
}

func alertKey(sessionID, className string) string {
	return fmt.Sprintf("session:%s:alert:%s", sessionID, className)
}

func (s *Store) RecordDetections(ctx context.Context, sessionID string, timestamp int64, classes []string) error {
	if len(classes) == 0 {
		return nil
	}

	member, err := json.Marshal(detectionRecord{Timestamp: timestamp, Classes: classes})
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}

	key := historyKey(sessionID)
	cutoff := timestamp - s.historyTTL.Milliseconds()

	pipe := s.redis.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(timestamp), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, key, s.historyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentSightings aggregates every class seen at or after since, most recent first.
func (s *Store) RecentSightings(ctx context.Context, sessionID string, since int64) ([]Sighting, error) {
	results, err := s.redis.ZRangeByScore(ctx, historyKey(sessionID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	byClass := make(map[string]*Sighting)
	for _, raw := range results {
		var rec detectionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		for _, c := range rec.Classes {
			sg, ok := byClass[c]
			if !ok {
				sg = &Sighting{ClassName: c}
				byClass[c] = sg
			}
			sg.Count++
			if rec.Timestamp > sg.LastSeen {
				sg.LastSeen = rec.Timestamp
			}
		}
	}

	sightings := make([]Sighting, 0, len(byClass))
	for _, sg := range byClass {
		sightings = append(sightings, *sg)
	}
	sort.Slice(sightings, func(i, j int) bool {
		if sightings[i].LastSeen != sightings[j].LastSeen {
			return sightings[i].LastSeen > sightings[j].LastSeen
		}
		return sightings[i].ClassName < sightings[j].ClassName
	})
	return sightings, nil
}

// ClaimAlert reports whether an alert for className may fire now; it holds
// the claim for cooldown.
func (s *Store) ClaimAlert(ctx context.Context, sessionID, className string, cooldown time.Duration) (bool, error) {
	return s.redis.SetNX(ctx, alertKey(sessionID, className), time.Now().UnixMilli(), cooldown).Result()
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	keys := []string{historyKey(sessionID)}
	iter := s.redis.Scan(ctx, 0, fmt.Sprintf("session:%s:alert:*", sessionID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return s.redis.Del(ctx, keys...).Err()
}

package journal

import (
	"context"
	"errors"
	"time"

	"github.com/eleven-am/trackie/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Session{}, &ToolInvocation{})
}

func (s *Store) StartSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = shared.NewID("sess_")
	}
	sess.Status = StatusActive
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(sess).Error
}

// EndSession marks the session finished; a non-nil cause records it as failed.
func (s *Store) EndSession(ctx context.Context, id string, cause error) error {
	now := time.Now()
	updates := map[string]any{
		"status":   StatusEnded,
		"ended_at": now,
	}
	if cause != nil {
		updates["status"] = StatusError
		updates["error"] = cause.Error()
	}

	res := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &sess, err
}

func (s *Store) RecordTool(ctx context.Context, inv *ToolInvocation) error {
	if inv.ID == "" {
		inv.ID = shared.NewID("call_")
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(inv).Error
}

func (s *Store) ListTools(ctx context.Context, sessionID string, limit int) ([]*ToolInvocation, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*ToolInvocation
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Prune deletes tool invocations and finished sessions older than cutoff.
// Active sessions are kept regardless of age.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff).Delete(&ToolInvocation{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected

		res = tx.Where("started_at < ? AND status <> ?", cutoff, StatusActive).Delete(&Session{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	return total, err
}

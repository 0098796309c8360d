package journal

import (
	"time"

	"github.com/eleven-am/trackie/internal/shared"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
	StatusError  Status = "error"
)

type Session struct {
	ID        string             `gorm:"primaryKey;size:64" json:"id"`
	UserName  string             `gorm:"size:255" json:"user_name"`
	Mode      string             `gorm:"size:16" json:"mode"`
	Provider  string             `gorm:"size:32" json:"provider"`
	Tools     shared.StringSlice `gorm:"type:text" json:"tools"`
	Status    Status             `gorm:"size:16;index" json:"status"`
	Error     string             `gorm:"type:text" json:"error,omitempty"`
	StartedAt time.Time          `gorm:"index" json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
}

func (Session) TableName() string {
	return "journal_sessions"
}

type ToolInvocation struct {
	ID         string         `gorm:"primaryKey;size:64" json:"id"`
	SessionID  string         `gorm:"size:64;index" json:"session_id"`
	CallID     string         `gorm:"size:128" json:"call_id"`
	Name       string         `gorm:"size:128;index" json:"name"`
	Args       shared.JSONMap `gorm:"type:text" json:"args"`
	Result     string         `gorm:"type:text" json:"result"`
	IsError    bool           `json:"is_error"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (ToolInvocation) TableName() string {
	return "journal_tool_invocations"
}

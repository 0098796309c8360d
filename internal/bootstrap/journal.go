package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/eleven-am/trackie/internal/journal"
)

// SessionReport is what `trackie session` prints for one recorded session.
type SessionReport struct {
	Session *journal.Session          `json:"session"`
	Tools   []*journal.ToolInvocation `json:"tool_invocations"`
}

// ShowSession reads a session and its tool invocations from the journal and
// writes them to w as indented JSON.
func ShowSession(ctx context.Context, cfg *Config, id string, limit int, w io.Writer) error {
	db, err := ProvideDatabase(cfg)
	if err != nil {
		return err
	}
	if db == nil {
		return errors.New("journal is disabled (database.driver is none)")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	store, err := ProvideJournalStore(db)
	if err != nil {
		return err
	}

	sess, err := store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	calls, err := store.ListTools(ctx, id, limit)
	if err != nil {
		return fmt.Errorf("list tool invocations: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(SessionReport{Session: sess, Tools: calls})
}

package bootstrap

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/eleven-am/trackie/internal/journal"
	"github.com/eleven-am/trackie/internal/shared"
)

func journalConfig(t *testing.T) *Config {
	t.Helper()
	cfg := testConfig(t)
	cfg.Database.DSN = filepath.Join(t.TempDir(), "journal.db")
	return cfg
}

func seedJournal(t *testing.T, cfg *Config) {
	t.Helper()
	db, err := ProvideDatabase(cfg)
	if err != nil {
		t.Fatalf("ProvideDatabase: %v", err)
	}
	store, err := ProvideJournalStore(db)
	if err != nil {
		t.Fatalf("ProvideJournalStore: %v", err)
	}
	ctx := t.Context()
	if err := store.StartSession(ctx, &journal.Session{ID: "sess_seed", UserName: "Ana", Mode: ModeCamera, Tools: []string{"locate_object"}}); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := store.RecordTool(ctx, &journal.ToolInvocation{SessionID: "sess_seed", CallID: "c1", Name: "locate_object", Result: "on the desk"}); err != nil {
		t.Fatalf("RecordTool: %v", err)
	}
	if err := store.EndSession(ctx, "sess_seed", nil); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.Close()
}

func TestShowSession_PrintsSessionAndTools(t *testing.T) {
	cfg := journalConfig(t)
	seedJournal(t, cfg)

	var out bytes.Buffer
	if err := ShowSession(t.Context(), cfg, "sess_seed", 0, &out); err != nil {
		t.Fatalf("ShowSession: %v", err)
	}

	var report SessionReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if report.Session == nil || report.Session.ID != "sess_seed" || report.Session.Status != journal.StatusEnded {
		t.Errorf("session = %+v", report.Session)
	}
	if len(report.Tools) != 1 || report.Tools[0].Result != "on the desk" {
		t.Errorf("tools = %+v", report.Tools)
	}
}

func TestShowSession_UnknownSession(t *testing.T) {
	cfg := journalConfig(t)
	seedJournal(t, cfg)

	err := ShowSession(t.Context(), cfg, "sess_missing", 0, &bytes.Buffer{})
	if !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestShowSession_JournalDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "none"

	if err := ShowSession(t.Context(), cfg, "sess_seed", 0, &bytes.Buffer{}); err == nil {
		t.Error("expected an error when the journal is disabled")
	}
}

package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/hablalabs/habla-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenDisabled(t *testing.T) {
	store, err := Open(context.Background(), config.HistoryConfig{Enabled: false}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if store.Enabled() {
		t.Fatal("disabled store must not persist")
	}
	if err := store.Append(context.Background(), Entry{RunID: "r1"}); err != nil {
		t.Fatalf("append on disabled store: %v", err)
	}
	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent on disabled store: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestAppendAndRecent(t *testing.T) {
	cfg := config.HistoryConfig{
		Enabled:    true,
		Path:       filepath.Join(t.TempDir(), "history.db"),
		MaxEntries: 100,
	}
	store, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	entry := Entry{
		RunID:          "run-1",
		OriginalText:   "Hola como estas.",
		TranslatedText: "Hello how are you.",
		Confidence:     0.92,
		Language:       "es",
		AIEnhanced:     true,
	}
	if err := store.Append(context.Background(), entry); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.TranslatedText != entry.TranslatedText || !got.AIEnhanced || got.Confidence != entry.Confidence {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at not recorded")
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	cfg := config.HistoryConfig{
		Enabled:    true,
		Path:       filepath.Join(t.TempDir(), "history.db"),
		MaxEntries: 3,
	}
	store, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	for i := 0; i < 5; i++ {
		entry := Entry{
			RunID:          fmt.Sprintf("run-%d", i),
			OriginalText:   fmt.Sprintf("texto %d", i),
			TranslatedText: fmt.Sprintf("text %d", i),
		}
		if err := store.Append(context.Background(), entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries after prune, got %d", len(entries))
	}
	if entries[0].RunID != "run-4" || entries[2].RunID != "run-2" {
		t.Fatalf("expected newest entries kept, got %q..%q", entries[0].RunID, entries[2].RunID)
	}
}

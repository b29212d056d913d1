package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "nudged/pkg/logx"
)

func openTestStore(t *testing.T, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st == nil {
		t.Fatal("Open returned nil store for file driver")
	}
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) must return a nil store", driver)
		}
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver must error")
	}
}

func TestFileStoreStampsSurviveReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nudged_store")
	ctx := context.Background()

	st := openTestStore(t, path)
	at := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	if err := st.PutStamp(ctx, "goal-reminder|Drink water", at); err != nil {
		t.Fatalf("PutStamp: %v", err)
	}
	if err := st.PutStamp(ctx, "pet-check-in|Check pet", at.Add(time.Minute)); err != nil {
		t.Fatalf("PutStamp: %v", err)
	}
	// Rewrites keep the latest value.
	if err := st.PutStamp(ctx, "goal-reminder|Drink water", at.Add(2*time.Minute)); err != nil {
		t.Fatalf("PutStamp: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st = openTestStore(t, path)
	defer st.Close()
	stamps, err := st.LoadStamps(ctx)
	if err != nil {
		t.Fatalf("LoadStamps: %v", err)
	}
	if len(stamps) != 2 {
		t.Fatalf("LoadStamps = %d entries, want 2", len(stamps))
	}
	got := stamps["goal-reminder|Drink water"]
	if !got.Equal(at.Add(2 * time.Minute)) {
		t.Fatalf("stamp = %v, want %v", got, at.Add(2*time.Minute))
	}
}

func TestFileStoreSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nudged_store")
	ctx := context.Background()

	st := openTestStore(t, path)
	defer st.Close()

	if _, ok, err := st.GetSettings(ctx); err != nil || ok {
		t.Fatalf("GetSettings on empty store = ok=%v err=%v, want absent", ok, err)
	}

	doc := []byte(`{"enabled":{"motivational":false}}`)
	if err := st.PutSettings(ctx, doc); err != nil {
		t.Fatalf("PutSettings: %v", err)
	}
	got, ok, err := st.GetSettings(ctx)
	if err != nil || !ok {
		t.Fatalf("GetSettings = ok=%v err=%v", ok, err)
	}
	if string(got) != string(doc) {
		t.Fatalf("GetSettings = %s, want %s", got, doc)
	}
}

func TestFileStoreAppendDelivery(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nudged_store")
	ctx := context.Background()

	st := openTestStore(t, path)
	defer st.Close()

	err := st.AppendDelivery(ctx, DeliveryEntry{
		At:       time.Now(),
		ID:       "d1",
		Category: "general",
		Title:    "x",
		FireAt:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}
}

package backend

import (
	"context"
	"path/filepath"
	"testing"

	"expensewise/internal/config"
	sheetsmem "expensewise/internal/sheets/memory"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	app := &config.Config{DataBackend: "sheets"}
	if _, err := FromAppConfig(app); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	app = &config.Config{DataBackend: "sqlite", SQLiteDBPath: "/tmp/x.db", GoogleSpreadsheetID: "abc"}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "/tmp/x.db" || cfg.GoogleSpreadsheetID != "abc" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"mongo without uri", Config{Type: MongoBackend, MongoDatabase: "db"}, true},
		{"mongo without database", Config{Type: MongoBackend, MongoURI: "mongodb://localhost"}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	want := []string{"memory", "sqlite", "mongo"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	if res.Store == nil {
		t.Fatal("expected store")
	}
	if res.Exports != nil {
		t.Error("memory backend should not track exports")
	}
	if err := res.Store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	f := NewFactory(nil)
	path := filepath.Join(t.TempDir(), "app.db")
	res, err := f.CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	if res.Exports == nil {
		t.Error("sqlite backend should track exports")
	}
	if err := res.Store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestCreateMirror_WithoutSpreadsheet(t *testing.T) {
	m, err := NewFactory(nil).CreateMirror(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateMirror: %v", err)
	}
	if _, ok := m.(*sheetsmem.Mirror); !ok {
		t.Errorf("expected in-memory mirror, got %T", m)
	}
}

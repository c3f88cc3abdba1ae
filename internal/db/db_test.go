package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return database, dbPath
}

func TestNew_CreatesDatabase(t *testing.T) {
	database, _ := openTestDB(t)
	defer database.Close()

	for _, table := range []string{"feeds", "layouts", "projects", "jobs", "_migrations"} {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	database, _ := openTestDB(t)
	defer database.Close()

	var journalMode string
	if err := database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	db1, dbPath := openTestDB(t)
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	if err := db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations error = %v", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if count != len(entries) {
		t.Errorf("migration count = %d, want %d", count, len(entries))
	}
}

func TestMarkInterruptedJobs(t *testing.T) {
	db1, dbPath := openTestDB(t)

	_, err := db1.Conn().Exec(`
		INSERT INTO jobs (id, kind, status, format, output_filename, created_at, updated_at)
		VALUES
			('running-job', 'export', 'running', 'square_1080', 'a.mp4', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z'),
			('queued-job', 'export', 'queued', 'square_1080', 'b.mp4', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')
	`)
	if err != nil {
		t.Fatalf("insert jobs error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var status, errMsg string
	err = db2.Conn().QueryRow("SELECT status, error FROM jobs WHERE id = 'running-job'").Scan(&status, &errMsg)
	if err != nil {
		t.Fatalf("query job error = %v", err)
	}
	if status != "failed" {
		t.Errorf("job status = %s, want failed", status)
	}
	if errMsg != InterruptedByRestart {
		t.Errorf("job error = %s, want %q", errMsg, InterruptedByRestart)
	}

	if err := db2.Conn().QueryRow("SELECT status FROM jobs WHERE id = 'queued-job'").Scan(&status); err != nil {
		t.Fatalf("query queued job error = %v", err)
	}
	if status != "queued" {
		t.Errorf("queued job status = %s, want queued", status)
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/concertview/concertview/internal/api"
	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/config"
	"github.com/concertview/concertview/internal/db"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// isolateConfig points every path setting at a temporary data dir.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv(config.EnvDataDir, dir)
	t.Setenv(config.EnvUploadDir, "")
	t.Setenv(config.EnvOutputDir, "")
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, config.Version) {
		t.Errorf("output %q missing version %s", out, config.Version)
	}
}

func TestSuggestCommand_Table(t *testing.T) {
	out, err := runCommand(t, "suggest", "--feeds", "4")
	if err != nil {
		t.Fatalf("suggest error = %v", err)
	}
	for _, want := range []string{"grid (4 feeds)", "feed_0", "feed_3", "0.5000"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSuggestCommand_JSONWithIDs(t *testing.T) {
	out, err := runCommand(t, "suggest", "--style", "pip", "--ids", "stage,left,right", "--json")
	if err != nil {
		t.Fatalf("suggest error = %v", err)
	}

	var got struct {
		Layout      catalog.Layout `json:"layout"`
		Description string         `json:"description"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(got.Layout.Slots) != 3 || got.Layout.Slots[0].FeedID != "stage" || got.Layout.Slots[0].Width != 1 {
		t.Errorf("layout = %+v", got.Layout)
	}
	if got.Layout.Slots[2].ZIndex != 2 {
		t.Errorf("inset z = %d, want 2", got.Layout.Slots[2].ZIndex)
	}
}

func TestSuggestCommand_Rejects(t *testing.T) {
	if _, err := runCommand(t, "suggest", "--feeds", "3", "--style", "mosaic"); err == nil {
		t.Error("unknown style should fail")
	}
	if _, err := runCommand(t, "suggest"); err == nil {
		t.Error("zero feeds should fail")
	}
}

func TestJobsCommand_DirectStore(t *testing.T) {
	dir := isolateConfig(t)

	database, err := db.New(filepath.Join(dir, config.DBFilename), nil)
	if err != nil {
		t.Fatalf("db.New error = %v", err)
	}
	repo := catalog.NewRepository(database.Conn())
	now := time.Now().UTC()
	job := &catalog.Job{
		ID:             catalog.NewID(),
		Kind:           catalog.JobKindExport,
		Status:         catalog.JobStatusFailed,
		Format:         catalog.FormatSquare1080,
		OutputFilename: "encore.mp4",
		Error:          "renderer exited 1: Invalid data found",
		CreatedAt:      now.Add(-2 * time.Hour),
		UpdatedAt:      now,
	}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob error = %v", err)
	}
	database.Close()

	out, err := runCommand(t, "jobs")
	if err != nil {
		t.Fatalf("jobs error = %v", err)
	}
	for _, want := range []string{job.ID, "failed", "encore.mp4", "2 hours ago", "Invalid data"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestJobsCommand_Empty(t *testing.T) {
	isolateConfig(t)

	out, err := runCommand(t, "jobs")
	if err != nil {
		t.Fatalf("jobs error = %v", err)
	}
	if !strings.Contains(out, "No jobs.") {
		t.Errorf("output = %q", out)
	}
}

func TestAPIJobLister(t *testing.T) {
	created := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs" || r.URL.Query().Get("limit") != "5" {
			http.NotFound(w, r)
			return
		}
		api.WriteJSON(w, http.StatusOK, []api.JobResponse{{
			JobID:          "job-1",
			Kind:           catalog.JobKindCompose,
			Status:         catalog.JobStatusRunning,
			Format:         catalog.FormatLandscape1080p,
			OutputFilename: "show.mp4",
			CreatedAt:      created,
		}})
	}))
	defer srv.Close()

	l := &apiJobLister{baseURL: srv.URL, client: srv.Client()}
	list, err := l.ListJobs(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListJobs error = %v", err)
	}
	if len(list) != 1 || list[0].ID != "job-1" || list[0].Status != catalog.JobStatusRunning {
		t.Fatalf("list = %+v", list)
	}
	if list[0].CreatedAt.IsZero() {
		t.Error("CreatedAt was not parsed")
	}

	if _, err := l.ListJobs(context.Background(), 6); err == nil {
		t.Error("a non-200 answer should fail")
	}
}

func TestServe_RefusesLockedDataDir(t *testing.T) {
	dir := isolateConfig(t)
	t.Setenv(config.EnvFFmpegPath, "/nonexistent/ffmpeg")
	t.Setenv(config.EnvFFprobePath, "/nonexistent/ffprobe")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	held := flock.New(filepath.Join(dir, config.LockFilename))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer held.Unlock()

	err := serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), errServerRunning.Error()) {
		t.Errorf("serve() error = %v, want %v", err, errServerRunning)
	}
}

func TestClientHost(t *testing.T) {
	tests := map[string]string{
		"":          "127.0.0.1",
		"0.0.0.0":   "127.0.0.1",
		"::":        "127.0.0.1",
		"10.0.0.5":  "10.0.0.5",
		"localhost": "localhost",
	}
	for in, want := range tests {
		if got := clientHost(in); got != want {
			t.Errorf("clientHost(%q) = %q, want %q", in, got, want)
		}
	}
}

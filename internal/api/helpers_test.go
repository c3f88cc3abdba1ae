package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/concertview/concertview/internal/audio"
	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/compose"
	"github.com/concertview/concertview/internal/db"
	"github.com/concertview/concertview/internal/feeds"
	"github.com/concertview/concertview/internal/jobs"
	"github.com/concertview/concertview/internal/layouts"
	"github.com/concertview/concertview/internal/logging"
	"github.com/concertview/concertview/internal/media"
	"github.com/concertview/concertview/internal/render"
)

type fakeProber struct{}

func (fakeProber) Probe(ctx context.Context, path string) (*render.MediaInfo, error) {
	return &render.MediaInfo{DurationSeconds: 120, VideoCodec: "h264", AudioCodec: "aac"}, nil
}

type fakeExtractor struct {
	err error
}

func (e *fakeExtractor) ExtractPCM(ctx context.Context, path string, sampleRate int, w io.Writer) error {
	if e.err != nil {
		return e.err
	}
	_, err := w.Write(make([]byte, sampleRate*2))
	return err
}

// fakeRenderer writes a stub output. With a gate set, renders wait for the
// gate to close.
type fakeRenderer struct {
	gate chan struct{}
}

func (r *fakeRenderer) Export(ctx context.Context, inputPath, outputPath string, preset catalog.Preset) (render.RunResult, error) {
	return r.write(ctx, outputPath)
}

func (r *fakeRenderer) Compose(ctx context.Context, plan *catalog.RenderPlan, outputPath string) (render.RunResult, error) {
	return r.write(ctx, outputPath)
}

func (r *fakeRenderer) Timeline(ctx context.Context, plan *catalog.TimelinePlan, outputPath string) (render.RunResult, error) {
	return r.write(ctx, outputPath)
}

func (r *fakeRenderer) write(ctx context.Context, outputPath string) (render.RunResult, error) {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return render.RunResult{ExitCode: -1}, nil
		}
	}
	if err := os.WriteFile(outputPath, []byte("rendered"), 0o644); err != nil {
		return render.RunResult{}, err
	}
	return render.RunResult{OutputPath: outputPath}, nil
}

type fakeDoctor struct {
	caps *render.Capabilities
}

func (d *fakeDoctor) Doctor(ctx context.Context) (*render.Capabilities, error) {
	if d.caps == nil {
		return nil, errors.New("ffmpeg not found")
	}
	return d.caps, nil
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("database is locked") }

type testServer struct {
	cfg       ServerConfig
	handler   http.Handler
	renderer  *fakeRenderer
	extractor *fakeExtractor
	dir       string
}

func newTestServer(t *testing.T, renderer *fakeRenderer) *testServer {
	t.Helper()

	dir := t.TempDir()
	database, err := db.New(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if renderer == nil {
		renderer = &fakeRenderer{}
	}
	logger := logging.Discard()
	repo := catalog.NewRepository(database.Conn())
	extractor := &fakeExtractor{}

	feedSvc := feeds.NewService(repo, fakeProber{}, filepath.Join(dir, "uploads"), 1<<20, logger)
	projects := compose.NewService(repo, logger)
	manager := jobs.NewManager(repo, renderer, projects, jobs.Config{
		Workers:      2,
		QueueSize:    8,
		PollInterval: 20 * time.Millisecond,
		OutputDir:    filepath.Join(dir, "output"),
	}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx)
	t.Cleanup(func() {
		manager.Stop()
		cancel()
	})

	cfg := ServerConfig{
		Feeds:          feedSvc,
		Layouts:        layouts.NewService(repo, logger),
		Audio:          audio.NewAnalyzer(feedSvc, extractor, 0, logger),
		Projects:       projects,
		Jobs:           manager,
		Media:          media.NewStreamer(logger),
		DB:             database,
		CORSOrigins:    []string{"*"},
		MaxUploadBytes: 1 << 20,
		Logger:         logger,
		StartTime:      time.Now().Add(-10 * time.Second),
		Version:        "test",
	}
	return &testServer{
		cfg:       cfg,
		handler:   NewRouter(cfg),
		renderer:  renderer,
		extractor: extractor,
		dir:       dir,
	}
}

// do sends body as JSON; a string body is sent verbatim.
func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal error: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) upload(t *testing.T, feedID, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile error: %v", err)
		}
		part.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/feeds/"+feedID+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

// createFeed registers a feed and attaches media to it.
func (s *testServer) createFeed(t *testing.T, name string) *catalog.Feed {
	t.Helper()

	rr := s.do(t, http.MethodPost, "/api/feeds", CreateFeedRequest{Name: name})
	expectStatus(t, rr, http.StatusCreated)
	var feed catalog.Feed
	decodeInto(t, rr, &feed)

	rr = s.upload(t, feed.ID, name+".mp4", []byte("media of "+name), map[string]string{"duration_seconds": "60"})
	expectStatus(t, rr, http.StatusOK)
	decodeInto(t, rr, &feed)
	return &feed
}

func (s *testServer) waitJob(t *testing.T, id string) JobResponse {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rr := s.do(t, http.MethodGet, "/api/jobs/"+id, nil)
		expectStatus(t, rr, http.StatusOK)
		var job JobResponse
		decodeInto(t, rr, &job)
		if job.Status == catalog.JobStatusCompleted || job.Status == catalog.JobStatusFailed {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return JobResponse{}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status code = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	var body ErrorResponse
	decodeInto(t, rr, &body)
	if body.Code != code {
		t.Errorf("code = %q, want %q (error %q)", body.Code, code, body.Error)
	}
	if body.Error == "" {
		t.Error("error message is empty")
	}
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rr.Body.String(), err)
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	decodeInto(t, rr, &body)
	return body
}

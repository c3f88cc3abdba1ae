package api

import (
	"time"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/compose"
	"github.com/concertview/concertview/internal/render"
)

type HealthResponse struct {
	Status      string               `json:"status"`
	Version     string               `json:"version"`
	UptimeS     int64                `json:"uptime_s"`
	Database    string               `json:"database"`
	ActiveJobs  int                  `json:"active_jobs"`
	Renderer    *render.Capabilities `json:"renderer,omitempty"`
	RenderReady bool                 `json:"renderer_ready"`
}

type CreateFeedRequest struct {
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`
}

// LayoutRequest is the body of a layout create or replace. Name may be
// omitted on replace.
type LayoutRequest struct {
	Name  *string        `json:"name"`
	Slots []catalog.Slot `json:"slots"`
}

type SuggestRequest struct {
	FeedCount int      `json:"feed_count"`
	Style     string   `json:"style"`
	FeedIDs   []string `json:"feed_ids"`
}

type SuggestResponse struct {
	Layout      *catalog.Layout `json:"layout"`
	Description string          `json:"description"`
}

type SyncRequest struct {
	FeedIDs []string `json:"feed_ids"`
}

// OptimizeRequest asks for a mix recommendation. Normalize defaults to
// true; noise_reduce is accepted as an older spelling of noise_reduction.
type OptimizeRequest struct {
	FeedIDs        []string `json:"feed_ids"`
	MasterFeedID   string   `json:"master_feed_id"`
	Normalize      *bool    `json:"normalize"`
	NoiseReduction bool     `json:"noise_reduction"`
	NoiseReduce    bool     `json:"noise_reduce"`
}

type ExportRequest struct {
	InputPath      string `json:"input_path"`
	OutputFilename string `json:"output_filename"`
	Format         string `json:"format"`
}

// ComposeRequest renders a project that is not stored.
type ComposeRequest struct {
	compose.ProjectInput
	FeedPaths      []string `json:"feed_paths"`
	OutputFilename string   `json:"output_filename"`
}

func (c ComposeRequest) Project() *catalog.Project {
	return &catalog.Project{
		Name:     c.Name,
		FeedIDs:  c.FeedIDs,
		LayoutID: c.LayoutID,
		Audio:    c.Audio,
		Format:   c.Format,
	}
}

type JobAcceptedResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type JobResponse struct {
	JobID          string `json:"job_id"`
	Kind           string `json:"kind"`
	Status         string `json:"status"`
	Format         string `json:"format"`
	InputPath      string `json:"input_path,omitempty"`
	OutputFilename string `json:"output_filename"`
	ProjectID      string `json:"project_id,omitempty"`
	Result         string `json:"result,omitempty"`
	Error          string `json:"error,omitempty"`
	DownloadURL    string `json:"download_url,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	StartedAt      string `json:"started_at,omitempty"`
	FinishedAt     string `json:"finished_at,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *catalog.Job) JobResponse {
	resp := JobResponse{
		JobID:          j.ID,
		Kind:           j.Kind,
		Status:         j.Status,
		Format:         j.Format,
		InputPath:      j.InputPath,
		OutputFilename: j.OutputFilename,
		ProjectID:      j.ProjectID,
		Result:         j.Result,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      j.UpdatedAt.Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		resp.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.FinishedAt != nil {
		resp.FinishedAt = j.FinishedAt.Format(time.RFC3339)
	}
	if j.Status == catalog.JobStatusCompleted {
		resp.DownloadURL = "/api/jobs/" + j.ID + "/download"
	}
	return resp
}

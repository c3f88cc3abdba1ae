// Package jobs runs export and composition renders asynchronously.
//
// Admission validates a request, stores a queued job and notifies the
// worker pool without blocking. Workers claim jobs with a guarded
// queued -> running update and record exactly one terminal status. A
// sweeper periodically re-dispatches queued jobs whose notification was
// dropped or lost across a restart. Jobs are never retried or cancelled by
// callers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/logging"
	"github.com/concertview/concertview/internal/render"
)

// InterruptedByShutdown is the error recorded on jobs killed by Stop.
const InterruptedByShutdown = "interrupted by shutdown"

// PlanResolver turns projects into render plans.
type PlanResolver interface {
	Plan(ctx context.Context, projectID string, feedPaths []string) (*catalog.Project, *catalog.RenderPlan, error)
	Resolve(ctx context.Context, project *catalog.Project, feedPaths []string) (*catalog.RenderPlan, error)
	TimelinePlan(ctx context.Context, projectID string, feedPaths []string) (*catalog.Project, *catalog.TimelinePlan, error)
}

type Config struct {
	Workers      int
	QueueSize    int
	PollInterval time.Duration
	OutputDir    string
}

type Manager struct {
	repo     catalog.Repository
	renderer render.Renderer
	projects PlanResolver
	cfg      Config
	logger   *slog.Logger

	queue  chan string
	active atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(repo catalog.Repository, renderer render.Renderer, projects PlanResolver, cfg Config, logger *slog.Logger) *Manager {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		repo:     repo,
		renderer: renderer,
		projects: projects,
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "jobs"),
		queue:    make(chan string, cfg.QueueSize),
	}
}

// Start launches the worker pool and the sweeper. They run until Stop or
// until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
	m.wg.Add(1)
	go m.sweeper(ctx)

	m.logger.Info("job manager started", "workers", m.cfg.Workers, "queue_size", m.cfg.QueueSize)
}

// Stop kills in-flight renders, marks their jobs failed and waits for the
// workers to exit. Queued jobs stay queued for the next start.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	m.wg.Wait()
	m.logger.Info("job manager stopped")
}

// ActiveJobs is the number of renders in progress.
func (m *Manager) ActiveJobs() int {
	return int(m.active.Load())
}

// Submit queues a single-file re-encode to the named preset.
func (m *Manager) Submit(ctx context.Context, inputPath, outputFilename, format string) (*catalog.Job, error) {
	if format == "" {
		format = catalog.DefaultFormat
	}
	if _, err := catalog.LookupPreset(format); err != nil {
		return nil, err
	}
	input, err := validateInputPath(inputPath)
	if err != nil {
		return nil, err
	}
	filename, err := SanitizeOutputFilename(outputFilename)
	if err != nil {
		return nil, err
	}

	job := newJob(catalog.JobKindExport, format, filename)
	job.InputPath = input
	return m.admit(ctx, job)
}

// RenderProject queues a composition of a stored project. Reference errors
// are reported here, before anything is queued.
func (m *Manager) RenderProject(ctx context.Context, projectID string, feedPaths []string, outputFilename string) (*catalog.Job, error) {
	filename, err := SanitizeOutputFilename(outputFilename)
	if err != nil {
		return nil, err
	}
	project, plan, err := m.projects.Plan(ctx, projectID, feedPaths)
	if err != nil {
		return nil, err
	}

	job := newJob(catalog.JobKindCompose, plan.Format, filename)
	job.ProjectID = project.ID
	job.Plan = plan
	return m.admit(ctx, job)
}

// RenderComposition queues a composition of a project that is not stored.
func (m *Manager) RenderComposition(ctx context.Context, project *catalog.Project, feedPaths []string, outputFilename string) (*catalog.Job, error) {
	if project == nil {
		return nil, fmt.Errorf("%w: project is required", catalog.ErrValidation)
	}
	filename, err := SanitizeOutputFilename(outputFilename)
	if err != nil {
		return nil, err
	}
	plan, err := m.projects.Resolve(ctx, project, feedPaths)
	if err != nil {
		return nil, err
	}

	job := newJob(catalog.JobKindCompose, plan.Format, filename)
	job.Plan = plan
	return m.admit(ctx, job)
}

// RenderTimeline queues a cut of a stored project's clips.
func (m *Manager) RenderTimeline(ctx context.Context, projectID string, feedPaths []string, outputFilename string) (*catalog.Job, error) {
	filename, err := SanitizeOutputFilename(outputFilename)
	if err != nil {
		return nil, err
	}
	project, plan, err := m.projects.TimelinePlan(ctx, projectID, feedPaths)
	if err != nil {
		return nil, err
	}

	job := newJob(catalog.JobKindTimeline, plan.Format, filename)
	job.ProjectID = project.ID
	job.Timeline = plan
	return m.admit(ctx, job)
}

// Status returns the last committed state of a job.
func (m *Manager) Status(ctx context.Context, id string) (*catalog.Job, error) {
	job, err := m.repo.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", catalog.ErrNotFound, id)
	}
	return job, nil
}

// List returns the most recent jobs first.
func (m *Manager) List(ctx context.Context, limit int) ([]*catalog.Job, error) {
	return m.repo.ListJobs(ctx, limit)
}

func newJob(kind, format, filename string) *catalog.Job {
	now := time.Now().UTC()
	return &catalog.Job{
		ID:             catalog.NewID(),
		Kind:           kind,
		Status:         catalog.JobStatusQueued,
		Format:         format,
		OutputFilename: filename,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (m *Manager) admit(ctx context.Context, job *catalog.Job) (*catalog.Job, error) {
	if err := m.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	logging.WithJobID(m.logger, job.ID).Info("job queued",
		"kind", job.Kind,
		"format", job.Format,
		"output_filename", job.OutputFilename,
	)
	m.notify(job.ID)
	return job, nil
}

// notify hands id to an idle worker or the queue buffer. When both are
// busy the sweeper picks the job up later.
func (m *Manager) notify(id string) bool {
	select {
	case m.queue <- id:
		return true
	default:
		return false
	}
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			m.run(ctx, id)
		}
	}
}

func (m *Manager) sweeper(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	m.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	jobs, err := m.repo.ListQueuedJobs(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("failed to list queued jobs", "error", err)
		}
		return
	}
	for _, j := range jobs {
		if !m.notify(j.ID) {
			return
		}
	}
}

func (m *Manager) run(ctx context.Context, id string) {
	logger := logging.WithJobID(m.logger, id)

	claimed, err := m.repo.ClaimJob(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("failed to claim job", "error", err)
		}
		return
	}
	if !claimed {
		// already taken by another worker or finished
		return
	}

	m.active.Add(1)
	defer m.active.Add(-1)

	// the terminal write must land even when shutdown cancelled ctx
	finishCtx := context.WithoutCancel(ctx)

	job, err := m.repo.GetJob(finishCtx, id)
	if err != nil || job == nil {
		m.finish(finishCtx, logger, id, catalog.JobStatusFailed, "", fmt.Sprintf("load job: %v", err))
		return
	}

	logger.Info("render started", "kind", job.Kind, "format", job.Format)
	outputPath, result, err := m.render(ctx, job)

	// a render that finished before shutdown reached it still counts
	switch {
	case err == nil && result.IsSuccess():
		m.finish(finishCtx, logger, id, catalog.JobStatusCompleted, outputPath, "")
		logger.Info("render completed", "output", logging.SanitizePath(outputPath), "duration", result.Duration)
	case ctx.Err() != nil:
		m.finish(finishCtx, logger, id, catalog.JobStatusFailed, "", InterruptedByShutdown)
	case err != nil:
		m.finish(finishCtx, logger, id, catalog.JobStatusFailed, "", render.Truncate(err.Error(), render.MaxErrorBytes))
	default:
		m.finish(finishCtx, logger, id, catalog.JobStatusFailed, "",
			fmt.Sprintf("renderer exited %d: %s", result.ExitCode, render.Truncate(result.StderrTail, render.MaxErrorBytes)))
	}
}

func (m *Manager) render(ctx context.Context, job *catalog.Job) (string, render.RunResult, error) {
	dir := filepath.Join(m.cfg.OutputDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", render.RunResult{}, fmt.Errorf("create output dir: %w", err)
	}
	outputPath := filepath.Join(dir, job.OutputFilename)

	switch job.Kind {
	case catalog.JobKindExport:
		preset, err := catalog.LookupPreset(job.Format)
		if err != nil {
			return "", render.RunResult{}, err
		}
		result, err := m.renderer.Export(ctx, job.InputPath, outputPath, preset)
		return outputPath, result, err
	case catalog.JobKindCompose:
		if job.Plan == nil {
			return "", render.RunResult{}, errors.New("compose job has no render plan")
		}
		result, err := m.renderer.Compose(ctx, job.Plan, outputPath)
		return outputPath, result, err
	case catalog.JobKindTimeline:
		if job.Timeline == nil {
			return "", render.RunResult{}, errors.New("timeline job has no timeline plan")
		}
		result, err := m.renderer.Timeline(ctx, job.Timeline, outputPath)
		return outputPath, result, err
	default:
		return "", render.RunResult{}, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (m *Manager) finish(ctx context.Context, logger *slog.Logger, id, status, result, errMsg string) {
	ok, err := m.repo.FinishJob(ctx, id, status, result, errMsg)
	if err != nil {
		logger.Error("failed to record job status", "status", status, "error", err)
		return
	}
	if !ok {
		logger.Warn("job was no longer running", "status", status)
		return
	}
	if status == catalog.JobStatusFailed {
		logger.Warn("render failed", "error", errMsg)
	}
}

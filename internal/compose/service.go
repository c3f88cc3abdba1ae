// Package compose stores composition projects and resolves them into
// render plans.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/logging"
)

// ProjectInput is the body of a project create.
type ProjectInput struct {
	Name     string                 `json:"name"`
	FeedIDs  []string               `json:"feed_ids"`
	LayoutID string                 `json:"layout_id"`
	Audio    catalog.AudioSettings  `json:"audio_settings"`
	Format   string                 `json:"format"`
	Clips    []catalog.TimelineClip `json:"clips"`
}

// ProjectUpdate is a partial project update; nil fields are left as they
// are. An empty clips list clears the timeline.
type ProjectUpdate struct {
	Name     *string                `json:"name"`
	FeedIDs  []string               `json:"feed_ids"`
	LayoutID *string                `json:"layout_id"`
	Audio    *catalog.AudioSettings `json:"audio_settings"`
	Format   *string                `json:"format"`
	Clips    []catalog.TimelineClip `json:"clips"`
}

type Service struct {
	repo   catalog.Repository
	locks  *catalog.KeyedMutex
	logger *slog.Logger
}

func NewService(repo catalog.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:   repo,
		locks:  catalog.NewKeyedMutex(),
		logger: logging.WithComponent(logger, "compose"),
	}
}

// Create stores a project. Feed and layout references are checked when
// the project is rendered, not here.
func (s *Service) Create(ctx context.Context, in ProjectInput) (*catalog.Project, error) {
	now := time.Now().UTC()
	p := &catalog.Project{
		ID:        catalog.NewID(),
		Name:      strings.TrimSpace(in.Name),
		FeedIDs:   in.FeedIDs,
		LayoutID:  strings.TrimSpace(in.LayoutID),
		Audio:     in.Audio,
		Format:    in.Format,
		Clips:     in.Clips,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Format == "" {
		p.Format = catalog.DefaultFormat
	}
	if p.Clips == nil {
		p.Clips = []catalog.TimelineClip{}
	}
	if err := validateStored(p); err != nil {
		return nil, err
	}
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	s.logger.Info("project created", "project_id", p.ID, "feeds", len(p.FeedIDs), "layout_id", p.LayoutID, "clips", len(p.Clips))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*catalog.Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: project %s", catalog.ErrNotFound, id)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]*catalog.Project, error) {
	return s.repo.ListProjects(ctx)
}

func (s *Service) Update(ctx context.Context, id string, u ProjectUpdate) (*catalog.Project, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	candidate := *p
	if u.Name != nil {
		candidate.Name = strings.TrimSpace(*u.Name)
	}
	if u.FeedIDs != nil {
		candidate.FeedIDs = u.FeedIDs
	}
	if u.LayoutID != nil {
		candidate.LayoutID = strings.TrimSpace(*u.LayoutID)
	}
	if u.Audio != nil {
		candidate.Audio = *u.Audio
	}
	if u.Format != nil {
		candidate.Format = *u.Format
	}
	if u.Clips != nil {
		candidate.Clips = u.Clips
	}
	if err := validateStored(&candidate); err != nil {
		return nil, err
	}

	candidate.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateProject(ctx, &candidate); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return &candidate, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	deleted, err := s.repo.DeleteProject(ctx, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: project %s", catalog.ErrNotFound, id)
	}
	s.logger.Info("project deleted", "project_id", id)
	return nil
}

// Plan loads a stored project and resolves it.
func (s *Service) Plan(ctx context.Context, projectID string, feedPaths []string) (*catalog.Project, *catalog.RenderPlan, error) {
	p, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	plan, err := s.Resolve(ctx, p, feedPaths)
	if err != nil {
		return nil, nil, err
	}
	return p, plan, nil
}

// validateStored adds the checks that only apply to saved projects.
func validateStored(p *catalog.Project) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", catalog.ErrValidation)
	}
	return p.Validate()
}

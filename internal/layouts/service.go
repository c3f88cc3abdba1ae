// Package layouts owns named slot arrangements over the unit canvas.
package layouts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/logging"
)

// Service manages layouts. A layout's slot list is only ever replaced as a
// whole.
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
		logger: logging.WithComponent(logger, "layouts"),
	}
}

func (s *Service) Create(ctx context.Context, name string, slots []catalog.Slot) (*catalog.Layout, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", catalog.ErrValidation)
	}
	if err := catalog.ValidateSlots(slots); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	layout := &catalog.Layout{
		ID:        catalog.NewID(),
		Name:      name,
		Slots:     slots,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateLayout(ctx, layout); err != nil {
		return nil, fmt.Errorf("create layout: %w", err)
	}

	s.logger.Info("layout created", "layout_id", layout.ID, "slots", len(slots))
	return layout, nil
}

func (s *Service) Get(ctx context.Context, id string) (*catalog.Layout, error) {
	layout, err := s.repo.GetLayout(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get layout: %w", err)
	}
	if layout == nil {
		return nil, fmt.Errorf("%w: layout %s", catalog.ErrNotFound, id)
	}
	return layout, nil
}

func (s *Service) List(ctx context.Context) ([]*catalog.Layout, error) {
	return s.repo.ListLayouts(ctx)
}

// Replace overwrites the slot list. The name is kept when name is nil.
func (s *Service) Replace(ctx context.Context, id string, name *string, slots []catalog.Slot) (*catalog.Layout, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	layout, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return nil, fmt.Errorf("%w: name must not be empty", catalog.ErrValidation)
		}
		layout.Name = n
	}
	if err := catalog.ValidateSlots(slots); err != nil {
		return nil, err
	}
	layout.Slots = slots
	layout.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateLayout(ctx, layout); err != nil {
		return nil, fmt.Errorf("update layout: %w", err)
	}
	return layout, nil
}

// Delete removes the layout. Feeds are never affected.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	deleted, err := s.repo.DeleteLayout(ctx, id)
	if err != nil {
		return fmt.Errorf("delete layout: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: layout %s", catalog.ErrNotFound, id)
	}
	s.logger.Info("layout deleted", "layout_id", id)
	return nil
}

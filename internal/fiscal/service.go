package fiscal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ServiceConfig tunes lifecycle side effects.
type ServiceConfig struct {
	// AutoCreateNext opens the following year when the latest year is closed.
	AutoCreateNext bool
}

// CloseResult reports a close and the year it may have created.
type CloseResult struct {
	Closed  FinancialYear  `json:"closed"`
	Created *FinancialYear `json:"created,omitempty"`
}

// Service orchestrates financial year lifecycle and keeps the registry in sync
// with storage.
type Service struct {
	repo     Repository
	registry *Registry
	cfg      ServiceConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, registry *Registry, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, registry: registry, cfg: cfg, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Registry exposes the registry kept in sync by the service.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Refresh reloads every year into the registry.
func (s *Service) Refresh(ctx context.Context) error {
	years, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	s.registry.Load(years)
	return nil
}

// List returns every year in ascending order.
func (s *Service) List(ctx context.Context) ([]FinancialYear, error) {
	return s.repo.List(ctx)
}

// Get loads a year by id.
func (s *Service) Get(ctx context.Context, id string) (FinancialYear, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new open year.
func (s *Service) Create(ctx context.Context, in CreateInput) (FinancialYear, error) {
	if err := in.Validate(); err != nil {
		return FinancialYear{}, err
	}
	var created FinancialYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.YearExists(ctx, in.Year)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %d", ErrDuplicateYear, in.Year)
		}
		created, err = tx.Insert(ctx, in, StatusOpen)
		return err
	})
	if err != nil {
		return FinancialYear{}, err
	}
	s.refreshAfterWrite(ctx)
	return created, nil
}

// Close marks a year closed. When it was the latest year and auto creation is
// enabled the following year is opened with bounds shifted by one year.
func (s *Service) Close(ctx context.Context, id string) (CloseResult, error) {
	var result CloseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fy, err := tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateTransition(fy.Status, StatusClosed); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, StatusClosed); err != nil {
			return err
		}
		fy.Status = StatusClosed
		fy.UpdatedAt = s.now()
		result.Closed = fy

		if !s.cfg.AutoCreateNext {
			return nil
		}
		latest, err := tx.LatestYear(ctx)
		if err != nil {
			return err
		}
		if latest != fy.Year {
			return nil
		}
		next, err := tx.Insert(ctx, NextYearInput(fy), StatusOpen)
		if err != nil {
			return err
		}
		result.Created = &next
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	if result.Created != nil {
		s.logger.Info("financial year opened after close",
			slog.Int("closed_year", result.Closed.Year),
			slog.Int("opened_year", result.Created.Year),
		)
	}
	s.refreshAfterWrite(ctx)
	return result, nil
}

// Delete removes a year permanently.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.refreshAfterWrite(ctx)
	return nil
}

// SetCurrent selects the year every date validation uses.
func (s *Service) SetCurrent(year int) (FinancialYear, error) {
	if err := s.registry.SetCurrent(year); err != nil {
		return FinancialYear{}, err
	}
	fy, _ := s.registry.Current()
	return fy, nil
}

func (s *Service) refreshAfterWrite(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("refresh financial years", slog.Any("error", err))
	}
}

package app

import (
	"context"

	"adstoryboard/internal/storage"
	"adstoryboard/internal/storyboard"
	"adstoryboard/pkg/config"
)

// HealthChecker is implemented by backends that can verify their credential.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Service struct {
	cfg          *config.Config
	orchestrator *storyboard.Orchestrator
	catalog      storyboard.Catalog
	sink         storage.Sink
	health       HealthChecker
	closers      []func() error
}

type ServiceOptions struct {
	Config       *config.Config
	Orchestrator *storyboard.Orchestrator
	Sink         storage.Sink
	Health       HealthChecker
	Closers      []func() error
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		cfg:          opts.Config,
		orchestrator: opts.Orchestrator,
		catalog:      storyboard.DefaultCatalog(),
		sink:         opts.Sink,
		health:       opts.Health,
		closers:      opts.Closers,
	}
}

func (s *Service) Config() *config.Config                 { return s.cfg }
func (s *Service) Orchestrator() *storyboard.Orchestrator { return s.orchestrator }
func (s *Service) Catalog() storyboard.Catalog            { return s.catalog }
func (s *Service) Sink() storage.Sink                     { return s.sink }

// HealthCheck is a no-op for backends without a remote credential.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	return s.health.HealthCheck(ctx)
}

func (s *Service) Close() error {
	var firstErr error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

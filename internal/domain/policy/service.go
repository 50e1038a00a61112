package policy

import (
	"context"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, p *Policy) error {
	if p.AssignedRole == "" {
		p.AssignedRole = "nurse"
	}
	if p.Version == 0 {
		p.Version = 1
	}
	if err := p.Validate(); err != nil {
		return err
	}
	// New policies start inactive; an explicit Activate makes them the
	// selected variant for their (category, subtype).
	p.Active = false
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Policy, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Policy) error {
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.Version = existing.Version + 1
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Policy, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// ActiveFor returns the active policy for a category and fall-type subtype.
func (s *Service) ActiveFor(ctx context.Context, category, subtype string) (*Policy, error) {
	return s.repo.GetActive(ctx, category, subtype)
}

func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	return s.repo.Activate(ctx, id)
}

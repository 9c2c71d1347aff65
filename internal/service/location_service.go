package service

import (
	"context"
	"fmt"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/repository"
	"github.com/diagnosis/visitor-management/internal/session"
	"github.com/diagnosis/visitor-management/pkg/logger"
)

type LocationService interface {
	// ListActive is the selection list shown to staff and the kiosk.
	ListActive(ctx context.Context) ([]domain.Location, error)
	ListAll(ctx context.Context, sess *session.Session) ([]domain.Location, error)
	Get(ctx context.Context, sess *session.Session, id string) (*domain.Location, error)
	Create(ctx context.Context, sess *session.Session, req *domain.LocationRequest) (*domain.Location, error)
	Update(ctx context.Context, sess *session.Session, id string, req *domain.LocationRequest) (*domain.Location, error)
	Deactivate(ctx context.Context, sess *session.Session, id string) (*domain.Location, error)
	Delete(ctx context.Context, sess *session.Session, id string) error
}

type locationService struct {
	locationRepo repository.LocationRepository
}

func NewLocationService(locationRepo repository.LocationRepository) LocationService {
	return &locationService{locationRepo: locationRepo}
}

func (s *locationService) ListActive(ctx context.Context) ([]domain.Location, error) {
	locations, err := s.locationRepo.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}

func (s *locationService) ListAll(ctx context.Context, sess *session.Session) ([]domain.Location, error) {
	if !sess.CanManageLocations() {
		return nil, domain.ErrForbidden
	}
	locations, err := s.locationRepo.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}

func (s *locationService) Get(ctx context.Context, sess *session.Session, id string) (*domain.Location, error) {
	if !sess.CanManageLocations() {
		return nil, domain.ErrForbidden
	}
	loc, err := s.locationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return loc, nil
}

func (s *locationService) Create(ctx context.Context, sess *session.Session, req *domain.LocationRequest) (*domain.Location, error) {
	if !sess.CanManageLocations() {
		return nil, domain.ErrForbidden
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var loc domain.Location
	req.Apply(&loc)
	created, err := s.locationRepo.Create(ctx, &loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create location: %w", err)
	}
	logger.InfoContext(ctx, "Location created", "location_id", created.ID)
	return created, nil
}

func (s *locationService) Update(ctx context.Context, sess *session.Session, id string, req *domain.LocationRequest) (*domain.Location, error) {
	if !sess.CanManageLocations() {
		return nil, domain.ErrForbidden
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	loc, err := s.locationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	req.Apply(loc)

	updated, err := s.locationRepo.Update(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to update location: %w", err)
	}
	return updated, nil
}

func (s *locationService) Deactivate(ctx context.Context, sess *session.Session, id string) (*domain.Location, error) {
	if !sess.CanManageLocations() {
		return nil, domain.ErrForbidden
	}
	loc, err := s.locationRepo.Deactivate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate location: %w", err)
	}
	logger.InfoContext(ctx, "Location deactivated", "location_id", id)
	return loc, nil
}

func (s *locationService) Delete(ctx context.Context, sess *session.Session, id string) error {
	if !sess.CanManageLocations() {
		return domain.ErrForbidden
	}
	if err := s.locationRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	logger.InfoContext(ctx, "Location deleted", "location_id", id)
	return nil
}

package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"viewings/backend/internal/apperr"
	"viewings/backend/internal/domain"
	"viewings/backend/internal/store"
)

// Service owns listing availability and decides whether a time is bookable.
type Service struct {
	slots store.AvailabilityRepository
	dir   store.Directory
	loc   *time.Location
}

// NewService evaluates slot day and minute in loc; nil means UTC.
func NewService(slots store.AvailabilityRepository, dir store.Directory, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{slots: slots, dir: dir, loc: loc}
}

func (s *Service) Get(ctx context.Context, listingID string) ([]domain.AvailabilitySlot, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return nil, apperr.InvalidArgument("listing_id is required")
	}
	return s.slots.ListSlots(ctx, listingID)
}

// Set replaces the whole slot set of a listing owned by ownerID.
func (s *Service) Set(ctx context.Context, ownerID, listingID string, slots []domain.AvailabilitySlot) ([]domain.AvailabilitySlot, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return nil, apperr.InvalidArgument("listing_id is required")
	}
	if ownerID == "" {
		return nil, apperr.InvalidArgument("owner id is required")
	}

	listing, err := s.dir.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("listing not found")
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if listing.OwnerID != ownerID {
		return nil, apperr.Forbidden("only the listing owner can change availability")
	}

	normalized, err := domain.NormalizeSlots(listingID, slots)
	if err != nil {
		return nil, apperr.InvalidArgument(err.Error())
	}
	return s.slots.ReplaceSlots(ctx, listingID, normalized)
}

// IsBookable reports whether at falls inside one of the listing's weekly slots.
func (s *Service) IsBookable(ctx context.Context, listingID string, at time.Time) (bool, error) {
	slots, err := s.slots.ListSlots(ctx, listingID)
	if err != nil {
		return false, err
	}
	return domain.AnySlotCovers(slots, at.In(s.loc)), nil
}

func (s *Service) Location() *time.Location {
	return s.loc
}

package triage

import (
	"context"
	"time"

	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/observability"
	"patchtriage/internal/ports"
)

// SelectionScope narrows the candidate set of RandomUnratedFor. The zero
// value means active and unresolved patches.
type SelectionScope struct {
	IncludeInactive bool
	IncludeResolved bool
	Claimed         *bool
}

func (s SelectionScope) filter(userID uint64) ports.PatchFilter {
	filter := ports.PatchFilter{ExcludeRatedBy: userID, Claimed: s.Claimed}
	if !s.IncludeInactive {
		active := true
		filter.Active = &active
	}
	if !s.IncludeResolved {
		resolved := false
		filter.Resolved = &resolved
	}
	return filter
}

// RandomUnratedFor picks a uniformly random patch the user has not rated.
// found is false when every candidate is already rated.
//
// Count and fetch run as two queries; a concurrent vote by the same user can
// make the pick stale, which callers handle by asking again.
func (s *Service) RandomUnratedFor(ctx context.Context, userID uint64, scope SelectionScope) (patch domain.Patch, found bool, err error) {
	defer observability.ObserveOperation("random_unrated", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return domain.Patch{}, false, err
	}

	filter := scope.filter(userID)
	count, err := s.repo.CountPatches(ctx, filter)
	if err != nil {
		return domain.Patch{}, false, err
	}
	if count == 0 {
		return domain.Patch{}, false, nil
	}

	offset := s.random(count)
	if offset < 0 || offset >= count {
		offset = 0
	}
	filter.Sort = ports.SortByID
	filter.Limit = 1
	filter.Offset = int(offset)

	patches, err := s.repo.ListPatches(ctx, filter)
	if err != nil {
		return domain.Patch{}, false, err
	}
	if len(patches) == 0 {
		return domain.Patch{}, false, nil
	}
	return patches[0], true, nil
}

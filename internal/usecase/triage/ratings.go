package triage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/observability"
)

type VoteInput struct {
	PatchID  uint64
	UserID   uint64
	IsUseful bool
}

// Vote records or changes a user's rating. Counters move by storage-side
// deltas in the same transaction as the rating row, so concurrent voters
// never lose an increment.
func (s *Service) Vote(ctx context.Context, input VoteInput) (rating domain.Rating, err error) {
	defer observability.ObserveOperation("vote", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return domain.Rating{}, err
	}
	if input.UserID == 0 {
		return domain.Rating{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "user", Message: "can't be blank"}}}
	}

	var patch domain.Patch
	vote := func(txCtx context.Context) error {
		current, err := s.repo.GetPatch(txCtx, input.PatchID)
		if err != nil {
			return err
		}
		patch = current
		if !patch.Active {
			return fmt.Errorf("patch %d is not active: %w", input.PatchID, domain.ErrNotFound)
		}

		now := s.now()
		existing, err := s.repo.GetRating(txCtx, input.PatchID, input.UserID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			rating, err = s.repo.CreateRating(txCtx, domain.Rating{
				PatchID:   input.PatchID,
				UserID:    input.UserID,
				IsUseful:  input.IsUseful,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				return err
			}
			usefulDelta, notUsefulDelta := bucketDelta(input.IsUseful, 1)
			return s.repo.AdjustVoteCounters(txCtx, input.PatchID, usefulDelta, notUsefulDelta)
		case err != nil:
			return err
		}

		rating = existing
		if existing.IsUseful == input.IsUseful {
			return nil
		}

		changed, err := s.repo.FlipRating(txCtx, existing.ID, input.IsUseful, now)
		if err != nil {
			return err
		}
		if !changed {
			// Someone else flipped it first; report what is stored.
			rating, err = s.repo.GetRating(txCtx, input.PatchID, input.UserID)
			return err
		}
		rating.IsUseful = input.IsUseful
		rating.UpdatedAt = now

		usefulDelta, notUsefulDelta := bucketDelta(input.IsUseful, 1)
		oldUseful, oldNotUseful := bucketDelta(existing.IsUseful, -1)
		return s.repo.AdjustVoteCounters(txCtx, input.PatchID, usefulDelta+oldUseful, notUsefulDelta+oldNotUseful)
	}

	err = s.withTx(ctx, "vote", vote)
	if errors.Is(err, domain.ErrDuplicate) {
		// A concurrent first vote by the same user won the insert; retry as a change.
		err = s.withTx(ctx, "vote", vote)
	}
	if err != nil {
		return domain.Rating{}, err
	}

	s.publishBestEffort(ctx, "voted", patch, input.UserID, strconv.FormatBool(input.IsUseful))
	return rating, nil
}

func bucketDelta(isUseful bool, delta int) (int, int) {
	if isUseful {
		return delta, 0
	}
	return 0, delta
}

// UserRating returns the user's rating of a patch or ErrNotFound.
func (s *Service) UserRating(ctx context.Context, patchID uint64, userID uint64) (domain.Rating, error) {
	if err := s.checkReady(ctx); err != nil {
		return domain.Rating{}, err
	}
	return s.repo.GetRating(ctx, patchID, userID)
}

func (s *Service) RatedBy(ctx context.Context, patchID uint64, userID uint64) (bool, error) {
	_, err := s.UserRating(ctx, patchID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// PatchRatings lists every rating of a patch in insertion order.
func (s *Service) PatchRatings(ctx context.Context, patchID uint64) ([]domain.Rating, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListPatchRaters(ctx, patchID)
}

// RecentRatings returns the user's latest ratings, newest first.
func (s *Service) RecentRatings(ctx context.Context, userID uint64) ([]domain.Rating, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListRecentRatings(ctx, userID, recentRatingsLimit)
}

func (s *Service) UserStats(ctx context.Context, userID uint64) (domain.UserStats, error) {
	if err := s.checkReady(ctx); err != nil {
		return domain.UserStats{}, err
	}
	return s.repo.UserRatingStats(ctx, userID)
}

// Leaderboard ranks users by rating count. A non-positive limit uses the
// configured size.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.leaderboardSize
	}
	return s.repo.Leaderboard(ctx, limit)
}

// RecountRatings rebuilds one patch's counters from its ratings.
func (s *Service) RecountRatings(ctx context.Context, patchID uint64) (patch domain.Patch, err error) {
	defer observability.ObserveOperation("recount_ratings", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return domain.Patch{}, err
	}

	err = s.withTx(ctx, "recount ratings", func(txCtx context.Context) error {
		useful, notUseful, err := s.repo.TallyRatings(txCtx, patchID)
		if err != nil {
			return err
		}
		if err := s.repo.SetVoteCounters(txCtx, patchID, useful, notUseful); err != nil {
			return err
		}
		patch, err = s.repo.GetPatch(txCtx, patchID)
		return err
	})
	if err != nil {
		return domain.Patch{}, err
	}
	return patch, nil
}

const recountBatchSize = 200

// RecountAll recounts every patch in id batches and returns how many were
// processed. Running it twice yields the same counters.
func (s *Service) RecountAll(ctx context.Context) (processed int, err error) {
	defer observability.ObserveOperation("recount_all", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return 0, err
	}

	var afterID uint64
	for {
		ids, err := s.repo.ListPatchIDs(ctx, afterID, recountBatchSize)
		if err != nil {
			return processed, err
		}
		if len(ids) == 0 {
			return processed, nil
		}

		for _, id := range ids {
			if _, err := s.RecountRatings(ctx, id); err != nil {
				return processed, err
			}
			processed++
		}
		afterID = ids[len(ids)-1]
	}
}

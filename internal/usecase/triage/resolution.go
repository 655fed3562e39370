package triage

import (
	"context"
	"time"

	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/observability"
)

type ResolveInput struct {
	PatchID      uint64
	Status       string
	Notes        string
	ChangesetURL string
	ResolvedBy   uint64
}

// ResolvePatch writes the resolution and releases every open claim, logging
// one auto-unclaim entry per released claim. All of it commits or none does.
func (s *Service) ResolvePatch(ctx context.Context, input ResolveInput) (patch domain.Patch, err error) {
	defer observability.ObserveOperation("resolve", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return domain.Patch{}, err
	}

	now := s.now()
	resolution, err := domain.NewResolution(input.Status, input.Notes, input.ChangesetURL, input.ResolvedBy, now)
	if err != nil {
		// Callers render the rejection next to the unchanged patch.
		current, getErr := s.repo.GetPatch(ctx, input.PatchID)
		if getErr != nil {
			return domain.Patch{}, getErr
		}
		return current, err
	}

	err = s.withTx(ctx, "resolve patch", func(txCtx context.Context) error {
		current, err := s.repo.GetPatch(txCtx, input.PatchID)
		if err != nil {
			return err
		}

		claims, err := s.repo.ListClaims(txCtx, input.PatchID)
		if err != nil {
			return err
		}
		note := domain.AutoUnclaimNote(resolution.Status)
		for _, claim := range claims {
			if _, err := s.repo.AppendClaimLog(txCtx, domain.ClaimLog{
				PatchID:   input.PatchID,
				UserID:    claim.UserID,
				Action:    domain.ClaimActionUnclaimed,
				Notes:     note,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		if _, err := s.repo.DeleteClaimsForPatch(txCtx, input.PatchID); err != nil {
			return err
		}

		patch = resolution.Apply(current)
		patch.UpdatedAt = now
		return s.repo.UpdateResolution(txCtx, patch)
	})
	if err != nil {
		return domain.Patch{}, err
	}

	s.publishBestEffort(ctx, "resolved", patch, input.ResolvedBy, string(resolution.Status))
	return patch, nil
}

// UnresolvePatch clears all resolution fields. Released claims stay released.
func (s *Service) UnresolvePatch(ctx context.Context, patchID uint64, actorID uint64) (patch domain.Patch, err error) {
	defer observability.ObserveOperation("unresolve", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return domain.Patch{}, err
	}

	err = s.withTx(ctx, "unresolve patch", func(txCtx context.Context) error {
		current, err := s.repo.GetPatch(txCtx, patchID)
		if err != nil {
			return err
		}

		patch = domain.ClearResolution(current)
		patch.UpdatedAt = s.now()
		return s.repo.UpdateResolution(txCtx, patch)
	})
	if err != nil {
		return domain.Patch{}, err
	}

	s.publishBestEffort(ctx, "unresolved", patch, actorID, "")
	return patch, nil
}

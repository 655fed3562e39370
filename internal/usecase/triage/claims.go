package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/observability"
)

type ClaimInput struct {
	PatchID uint64
	UserID  uint64
	Notes   string
}

// ClaimPatch registers the user as working the patch and logs it. The claim
// row and its log entry commit together.
func (s *Service) ClaimPatch(ctx context.Context, input ClaimInput) (claim domain.Claim, err error) {
	defer observability.ObserveOperation("claim", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return domain.Claim{}, err
	}
	if input.UserID == 0 {
		return domain.Claim{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "user", Message: "can't be blank"}}}
	}
	notes := strings.TrimSpace(input.Notes)

	var patch domain.Patch
	err = s.withTx(ctx, "claim patch", func(txCtx context.Context) error {
		current, err := s.repo.GetPatch(txCtx, input.PatchID)
		if err != nil {
			return err
		}
		if current.Resolved() {
			return fmt.Errorf("patch %d: %w", input.PatchID, domain.ErrPatchResolved)
		}
		patch = current

		now := s.now()
		claim, err = s.repo.CreateClaim(txCtx, domain.Claim{
			PatchID:   input.PatchID,
			UserID:    input.UserID,
			Notes:     notes,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}

		_, err = s.repo.AppendClaimLog(txCtx, domain.ClaimLog{
			PatchID:   input.PatchID,
			UserID:    input.UserID,
			Action:    domain.ClaimActionClaimed,
			Notes:     notes,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return domain.Claim{}, err
	}

	s.publishBestEffort(ctx, "claimed", patch, input.UserID, notes)
	return claim, nil
}

// UnclaimPatch releases the user's claim. It reports whether a claim existed;
// the audit log only records actual releases.
func (s *Service) UnclaimPatch(ctx context.Context, input ClaimInput) (removed bool, err error) {
	defer observability.ObserveOperation("unclaim", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return false, err
	}
	notes := strings.TrimSpace(input.Notes)

	var patch domain.Patch
	err = s.withTx(ctx, "unclaim patch", func(txCtx context.Context) error {
		current, err := s.repo.GetPatch(txCtx, input.PatchID)
		if err != nil {
			return err
		}
		patch = current

		removed, err = s.repo.DeleteClaim(txCtx, input.PatchID, input.UserID)
		if err != nil || !removed {
			return err
		}

		_, err = s.repo.AppendClaimLog(txCtx, domain.ClaimLog{
			PatchID:   input.PatchID,
			UserID:    input.UserID,
			Action:    domain.ClaimActionUnclaimed,
			Notes:     notes,
			CreatedAt: s.now(),
		})
		return err
	})
	if err != nil {
		return false, err
	}

	if removed {
		s.publishBestEffort(ctx, "unclaimed", patch, input.UserID, notes)
	}
	return removed, nil
}

// ClaimedBy reports whether the user currently holds a claim on the patch.
func (s *Service) ClaimedBy(ctx context.Context, patchID uint64, userID uint64) (bool, error) {
	if err := s.checkReady(ctx); err != nil {
		return false, err
	}
	return s.repo.HasClaim(ctx, patchID, userID)
}

func (s *Service) ListClaims(ctx context.Context, patchID uint64) ([]domain.Claim, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListClaims(ctx, patchID)
}

// ClaimHistory lists the audit log of a patch, oldest first.
func (s *Service) ClaimHistory(ctx context.Context, patchID uint64) ([]domain.ClaimLog, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListClaimLogs(ctx, patchID)
}

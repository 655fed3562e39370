package triage

import (
	"context"
	"errors"
	"time"

	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	"patchtriage/internal/observability"
	"patchtriage/internal/ports"
)

// PatchInput holds the writable attributes of a patch. On update, nil
// pointers leave the stored value unchanged.
type PatchInput struct {
	CommitHash      *string
	Title           *string
	Summary         *string
	MarkdownContent *string
	DiffContent     *string
	IssueType       *string
	Repository      *string
	AuditDate       *time.Time
	Active          *bool
}

func (in PatchInput) applyTo(p *domain.Patch) {
	if in.CommitHash != nil {
		p.CommitHash = *in.CommitHash
	}
	if in.Title != nil {
		p.Title = *in.Title
	}
	if in.Summary != nil {
		p.Summary = *in.Summary
	}
	if in.MarkdownContent != nil {
		p.MarkdownContent = *in.MarkdownContent
	}
	if in.DiffContent != nil {
		p.DiffContent = *in.DiffContent
	}
	if in.IssueType != nil {
		p.IssueType = domain.IssueType(*in.IssueType)
	}
	if in.Repository != nil {
		p.Repository = *in.Repository
	}
	if in.AuditDate != nil {
		at := in.AuditDate.UTC()
		p.AuditDate = &at
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
}

// CreatePatch normalizes, validates and stores a new active patch.
func (s *Service) CreatePatch(ctx context.Context, input PatchInput) (patch domain.Patch, err error) {
	defer observability.ObserveOperation("create_patch", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return domain.Patch{}, err
	}

	now := s.now()
	patch = domain.Patch{Active: true, CreatedAt: now, UpdatedAt: now}
	input.applyTo(&patch)
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		return domain.Patch{}, err
	}

	return s.repo.CreatePatch(ctx, patch)
}

// UpdatePatch rewrites attributes of an existing patch. Counters and
// resolution fields are not writable here.
func (s *Service) UpdatePatch(ctx context.Context, patchID uint64, input PatchInput) (patch domain.Patch, err error) {
	defer observability.ObserveOperation("update_patch", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return domain.Patch{}, err
	}

	err = s.withTx(ctx, "update patch", func(txCtx context.Context) error {
		current, err := s.repo.GetPatch(txCtx, patchID)
		if err != nil {
			return err
		}

		input.applyTo(&current)
		current.Normalize()
		if err := current.Validate(); err != nil {
			return err
		}
		current.UpdatedAt = s.now()

		patch, err = s.repo.SavePatch(txCtx, current)
		return err
	})
	if err != nil {
		return domain.Patch{}, err
	}
	return patch, nil
}

func (s *Service) GetPatch(ctx context.Context, patchID uint64) (domain.Patch, error) {
	if err := s.checkReady(ctx); err != nil {
		return domain.Patch{}, err
	}
	return s.repo.GetPatch(ctx, patchID)
}

func (s *Service) GetPatchByHash(ctx context.Context, commitHash string) (domain.Patch, error) {
	if err := s.checkReady(ctx); err != nil {
		return domain.Patch{}, err
	}
	return s.repo.FindPatchByHash(ctx, commitHash)
}

func (s *Service) ListPatches(ctx context.Context, filter ports.PatchFilter) ([]domain.Patch, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListPatches(ctx, filter)
}

func (s *Service) CountPatches(ctx context.Context, filter ports.PatchFilter) (int64, error) {
	if err := s.checkReady(ctx); err != nil {
		return 0, err
	}
	return s.repo.CountPatches(ctx, filter)
}

// SetPatchActive flips the visibility flag. Inactive patches are hidden from
// selection and voting.
func (s *Service) SetPatchActive(ctx context.Context, patchID uint64, active bool) (err error) {
	defer observability.ObserveOperation("set_patch_active", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return err
	}
	return s.repo.SetPatchActive(ctx, patchID, active, s.now())
}

// TogglePatchActive inverts the active flag and returns the new value.
func (s *Service) TogglePatchActive(ctx context.Context, patchID uint64) (active bool, err error) {
	if err := s.checkReady(ctx); err != nil {
		return false, err
	}

	err = s.withTx(ctx, "toggle patch active", func(txCtx context.Context) error {
		patch, err := s.repo.GetPatch(txCtx, patchID)
		if err != nil {
			return err
		}
		active = !patch.Active
		return s.SetPatchActive(txCtx, patchID, active)
	})
	return active, err
}

// DeletePatch hard-deletes a patch with its ratings, claims and claim logs.
func (s *Service) DeletePatch(ctx context.Context, patchID uint64) (err error) {
	defer observability.ObserveOperation("delete_patch", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return err
	}
	if err := s.repo.DeletePatch(ctx, patchID); err != nil {
		if domain.IsDomainError(err) {
			return err
		}
		return domain.NewTransactionError("delete patch", errs.WithStack(err))
	}
	return nil
}

type Neighbours struct {
	PrevID uint64
	NextID uint64
}

// Neighbours returns the previous and next active patch ids; zero means none.
func (s *Service) Neighbours(ctx context.Context, patchID uint64) (Neighbours, error) {
	if err := s.checkReady(ctx); err != nil {
		return Neighbours{}, err
	}
	prev, next, err := s.repo.NeighbourPatchIDs(ctx, patchID)
	if err != nil {
		return Neighbours{}, err
	}
	return Neighbours{PrevID: prev, NextID: next}, nil
}

// PatchDiffStats summarizes the stored diff of a patch.
func (s *Service) PatchDiffStats(ctx context.Context, patchID uint64) (domain.DiffStats, error) {
	patch, err := s.GetPatch(ctx, patchID)
	if err != nil {
		return domain.DiffStats{}, err
	}
	if patch.DiffContent == "" {
		return domain.DiffStats{}, errors.New("patch has no diff content")
	}
	return domain.ComputeDiffStats(patch.DiffContent)
}

package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	"patchtriage/internal/infrastructure/persistence/gormdb/model"
	"patchtriage/internal/ports"
)

func (r *TriageRepository) ListAllPatches(ctx context.Context) ([]triage.Patch, error) {
	return r.ListPatches(ctx, ports.PatchFilter{})
}

func (r *TriageRepository) ListAllRatings(ctx context.Context) ([]triage.Rating, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.PatchRating
	if err := db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query all ratings")
	}
	return mapRatings(rows), nil
}

func (r *TriageRepository) ListAllClaims(ctx context.Context) ([]triage.Claim, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.PatchClaim
	if err := db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query all claims")
	}

	items := make([]triage.Claim, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapClaim(row))
	}
	return items, nil
}

func (r *TriageRepository) ListAllClaimLogs(ctx context.Context) ([]triage.ClaimLog, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.PatchClaimLog
	if err := db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query all claim logs")
	}

	items := make([]triage.ClaimLog, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapClaimLog(row))
	}
	return items, nil
}

// UpsertPatch matches on commit_hash and writes every column, timestamps included.
func (r *TriageRepository) UpsertPatch(ctx context.Context, patch triage.Patch) (uint64, bool, error) {
	var (
		patchID uint64
		created bool
	)

	err := r.inTx(ctx, func(db *gorm.DB) error {
		row := toPatchModel(patch)

		var existing model.Patch
		err := db.Where("commit_hash = ?", row.CommitHash).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row.ID = 0
			if err := db.Create(&row).Error; err != nil {
				return errs.Wrap(err, "insert imported patch")
			}
			patchID, created = row.ID, true
			return nil
		case err != nil:
			return errs.Wrap(err, "query patch by hash")
		}

		row.ID = existing.ID
		if err := db.Model(&model.Patch{}).Where("id = ?", existing.ID).Select("*").Omit("id").Updates(&row).Error; err != nil {
			return errs.Wrap(err, "update imported patch")
		}
		patchID = existing.ID
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return patchID, created, nil
}

func (r *TriageRepository) UpsertRating(ctx context.Context, rating triage.Rating) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	var existing model.PatchRating
	err = db.Where("patch_id = ? AND user_id = ?", rating.PatchID, rating.UserID).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := model.PatchRating{
			PatchID:   rating.PatchID,
			UserID:    rating.UserID,
			IsUseful:  rating.IsUseful,
			CreatedAt: rating.CreatedAt,
			UpdatedAt: rating.UpdatedAt,
		}
		if err := db.Create(&row).Error; err != nil {
			return false, errs.Wrap(err, "insert imported rating")
		}
		return true, nil
	}
	if err != nil {
		return false, errs.Wrap(err, "query rating")
	}

	if err := db.Model(&model.PatchRating{}).Where("id = ?", existing.ID).UpdateColumns(map[string]any{
		"is_useful":  rating.IsUseful,
		"created_at": rating.CreatedAt,
		"updated_at": rating.UpdatedAt,
	}).Error; err != nil {
		return false, errs.Wrap(err, "update imported rating")
	}
	return false, nil
}

func (r *TriageRepository) UpsertClaim(ctx context.Context, claim triage.Claim) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	var existing model.PatchClaim
	err = db.Where("patch_id = ? AND user_id = ?", claim.PatchID, claim.UserID).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := model.PatchClaim{
			PatchID:   claim.PatchID,
			UserID:    claim.UserID,
			Notes:     optionalString(claim.Notes),
			CreatedAt: claim.CreatedAt,
			UpdatedAt: claim.UpdatedAt,
		}
		if err := db.Create(&row).Error; err != nil {
			return false, errs.Wrap(err, "insert imported claim")
		}
		return true, nil
	}
	if err != nil {
		return false, errs.Wrap(err, "query claim")
	}

	if err := db.Model(&model.PatchClaim{}).Where("id = ?", existing.ID).UpdateColumns(map[string]any{
		"notes":      nullable(optionalString(claim.Notes)),
		"created_at": claim.CreatedAt,
		"updated_at": claim.UpdatedAt,
	}).Error; err != nil {
		return false, errs.Wrap(err, "update imported claim")
	}
	return false, nil
}

// InsertClaimLogIfAbsent skips entries whose (patch, user, action, created_at)
// already exists.
func (r *TriageRepository) InsertClaimLogIfAbsent(ctx context.Context, entry triage.ClaimLog) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	var candidates []model.PatchClaimLog
	if err := db.Where("patch_id = ? AND user_id = ? AND action = ?", entry.PatchID, entry.UserID, string(entry.Action)).
		Find(&candidates).Error; err != nil {
		return false, errs.Wrap(err, "query claim logs")
	}
	for _, candidate := range candidates {
		if sameInstant(candidate.CreatedAt, entry.CreatedAt) {
			return false, nil
		}
	}

	if _, err := r.AppendClaimLog(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// RecountPatch rewrites both counters from the rating ledger.
func (r *TriageRepository) RecountPatch(ctx context.Context, patchID uint64) error {
	useful, notUseful, err := r.TallyRatings(ctx, patchID)
	if err != nil {
		return err
	}
	return r.SetVoteCounters(ctx, patchID, useful, notUseful)
}

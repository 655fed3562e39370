package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	"patchtriage/internal/infrastructure/persistence/gormdb/model"
	"patchtriage/internal/ports"
)

type TriageRepository struct {
	db *gorm.DB
}

var (
	_ ports.TriageRepository   = (*TriageRepository)(nil)
	_ ports.TransferRepository = (*TriageRepository)(nil)
)

func NewTriageRepository(db *gorm.DB) *TriageRepository {
	return &TriageRepository{db: db}
}

func dbFromContext(ctx context.Context, root *gorm.DB) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return root.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *TriageRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	return dbFromContext(ctx, r.db)
}

// inTx joins the caller's transaction or opens one for multi-statement writes.
func (r *TriageRepository) inTx(ctx context.Context, fn func(db *gorm.DB) error) error {
	if ports.TxFromContext(ctx) != nil {
		db, err := r.dbFromContext(ctx)
		if err != nil {
			return err
		}
		return fn(db)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

func notFound(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, triage.ErrNotFound)
}

// ---- patches ----

func (r *TriageRepository) CreatePatch(ctx context.Context, patch triage.Patch) (triage.Patch, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return triage.Patch{}, err
	}

	row := toPatchModel(patch)
	row.ID = 0
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return triage.Patch{}, fmt.Errorf("commit_hash %q: %w", patch.CommitHash, triage.ErrDuplicate)
		}
		return triage.Patch{}, errs.Wrap(err, "insert patch")
	}
	return mapPatch(row), nil
}

// editablePatchColumns are the columns SavePatch writes. Counters, resolution
// and committer data have their own writers and are never overwritten here.
var editablePatchColumns = []string{
	"commit_hash", "title", "summary", "markdown_content", "diff_content",
	"issue_type", "audit_date", "repository", "active", "updated_at",
}

// SavePatch rewrites the editable patch attributes and returns the stored row.
func (r *TriageRepository) SavePatch(ctx context.Context, patch triage.Patch) (triage.Patch, error) {
	if patch.ID == 0 {
		return triage.Patch{}, errors.New("patch id is required")
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return triage.Patch{}, err
	}

	row := toPatchModel(patch)
	result := db.Model(&model.Patch{}).Where("id = ?", row.ID).
		Select(editablePatchColumns).
		Updates(&row)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return triage.Patch{}, fmt.Errorf("commit_hash %q: %w", patch.CommitHash, triage.ErrDuplicate)
		}
		return triage.Patch{}, errs.Wrap(result.Error, "update patch")
	}
	if result.RowsAffected == 0 {
		return triage.Patch{}, notFound("patch", patch.ID)
	}
	return r.GetPatch(ctx, patch.ID)
}

func (r *TriageRepository) GetPatch(ctx context.Context, patchID uint64) (triage.Patch, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return triage.Patch{}, err
	}

	var row model.Patch
	if err := db.Where("id = ?", patchID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return triage.Patch{}, notFound("patch", patchID)
		}
		return triage.Patch{}, errs.Wrap(err, "query patch")
	}
	return mapPatch(row), nil
}

func (r *TriageRepository) FindPatchByHash(ctx context.Context, commitHash string) (triage.Patch, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return triage.Patch{}, err
	}

	hash := triage.NormalizeCommitHash(commitHash)
	var row model.Patch
	if err := db.Where("commit_hash = ?", hash).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return triage.Patch{}, notFound("patch", hash)
		}
		return triage.Patch{}, errs.Wrap(err, "query patch by hash")
	}
	return mapPatch(row), nil
}

func applyPatchFilter(db *gorm.DB, filter ports.PatchFilter) *gorm.DB {
	query := db.Model(&model.Patch{})
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}
	if filter.Resolved != nil {
		if *filter.Resolved {
			query = query.Where("resolved_at IS NOT NULL")
		} else {
			query = query.Where("resolved_at IS NULL")
		}
	}
	if filter.Claimed != nil {
		sub := db.Model(&model.PatchClaim{}).Select("patch_id")
		if *filter.Claimed {
			query = query.Where("id IN (?)", sub)
		} else {
			query = query.Where("id NOT IN (?)", sub)
		}
	}
	if filter.ExcludeRatedBy != 0 {
		sub := db.Model(&model.PatchRating{}).Select("patch_id").Where("user_id = ?", filter.ExcludeRatedBy)
		query = query.Where("id NOT IN (?)", sub)
	}
	if name := strings.TrimSpace(filter.CommitterUsername); name != "" {
		query = query.Where("LOWER(committer_github_username) = ?", strings.ToLower(name))
	}
	if filter.CommitterUserID != 0 {
		query = query.Where("committer_user_id = ?", filter.CommitterUserID)
	}
	return query
}

var patchOrders = map[ports.PatchSort]string{
	ports.SortByID:   "id asc",
	ports.SortNewest: "created_at desc, id desc",
	ports.SortOldest: "created_at asc, id asc",
	ports.SortUseful: "CASE WHEN useful_count + not_useful_count = 0 THEN 0 " +
		"ELSE useful_count * 1.0 / (useful_count + not_useful_count) END desc, useful_count desc, id asc",
	ports.SortPopular:       "useful_count + not_useful_count desc, id asc",
	ports.SortControversial: "ABS(useful_count - not_useful_count) asc, useful_count + not_useful_count desc, id asc",
}

func (r *TriageRepository) ListPatches(ctx context.Context, filter ports.PatchFilter) ([]triage.Patch, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	order, ok := patchOrders[filter.Sort]
	if !ok {
		return nil, fmt.Errorf("unsupported patch sort %q", filter.Sort)
	}

	query := applyPatchFilter(db, filter).Order(order)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var rows []model.Patch
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query patches")
	}
	return mapPatches(rows), nil
}

func (r *TriageRepository) CountPatches(ctx context.Context, filter ports.PatchFilter) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := applyPatchFilter(db, filter).Count(&count).Error; err != nil {
		return 0, errs.Wrap(err, "count patches")
	}
	return count, nil
}

// DeletePatch removes the patch with its ratings, claims and logs. Counters
// are not maintained since the patch itself goes away.
func (r *TriageRepository) DeletePatch(ctx context.Context, patchID uint64) error {
	return r.inTx(ctx, func(db *gorm.DB) error {
		for _, child := range []any{&model.PatchClaimLog{}, &model.PatchClaim{}, &model.PatchRating{}} {
			if err := db.Where("patch_id = ?", patchID).Delete(child).Error; err != nil {
				return errs.Wrap(err, "delete patch children")
			}
		}

		result := db.Where("id = ?", patchID).Delete(&model.Patch{})
		if result.Error != nil {
			return errs.Wrap(result.Error, "delete patch")
		}
		if result.RowsAffected == 0 {
			return notFound("patch", patchID)
		}
		return nil
	})
}

func (r *TriageRepository) NeighbourPatchIDs(ctx context.Context, patchID uint64) (uint64, uint64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}

	var prev, next []uint64
	if err := db.Model(&model.Patch{}).
		Where("active = ? AND id < ?", true, patchID).
		Order("id desc").Limit(1).
		Pluck("id", &prev).Error; err != nil {
		return 0, 0, errs.Wrap(err, "query previous patch")
	}
	if err := db.Model(&model.Patch{}).
		Where("active = ? AND id > ?", true, patchID).
		Order("id asc").Limit(1).
		Pluck("id", &next).Error; err != nil {
		return 0, 0, errs.Wrap(err, "query next patch")
	}

	var prevID, nextID uint64
	if len(prev) > 0 {
		prevID = prev[0]
	}
	if len(next) > 0 {
		nextID = next[0]
	}
	return prevID, nextID, nil
}

func (r *TriageRepository) ListPatchIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Patch{}).Where("id > ?", afterID).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var ids []uint64
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, errs.Wrap(err, "query patch ids")
	}
	return ids, nil
}

func (r *TriageRepository) SetPatchActive(ctx context.Context, patchID uint64, active bool, updatedAt time.Time) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.Patch{}).
		Where("id = ?", patchID).
		Updates(map[string]any{
			"active":     active,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update patch active")
	}
	if result.RowsAffected == 0 {
		return notFound("patch", patchID)
	}
	return nil
}

// UpdateResolution writes the five resolution columns together.
func (r *TriageRepository) UpdateResolution(ctx context.Context, patch triage.Patch) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := toPatchModel(patch)
	result := db.Model(&model.Patch{}).
		Where("id = ?", patch.ID).
		Updates(map[string]any{
			"resolved_at":              nullable(row.ResolvedAt),
			"resolved_by_id":           nullable(row.ResolvedByID),
			"resolution_status":        nullable(row.ResolutionStatus),
			"resolution_notes":         nullable(row.ResolutionNotes),
			"resolution_changeset_url": nullable(row.ResolutionChangesetURL),
			"updated_at":               patch.UpdatedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update patch resolution")
	}
	if result.RowsAffected == 0 {
		return notFound("patch", patch.ID)
	}
	return nil
}

// UpdateCommitter only writes when no committer data was stored yet.
func (r *TriageRepository) UpdateCommitter(ctx context.Context, patchID uint64, update ports.CommitterUpdate) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.Patch{}).
		Where("id = ?", patchID).
		Where("committer_email IS NULL AND committer_name IS NULL AND committer_github_username IS NULL").
		UpdateColumns(map[string]any{
			"committer_email":           update.Email,
			"committer_name":            update.Name,
			"committer_github_username": update.GitHubUsername,
			"committer_github_id":       update.GitHubID,
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "update patch committer")
	}
	return result.RowsAffected > 0, nil
}

func (r *TriageRepository) LinkCommitterUser(ctx context.Context, patchID uint64, userID uint64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.Patch{}).Where("id = ?", patchID).UpdateColumn("committer_user_id", userID)
	if result.Error != nil {
		return errs.Wrap(result.Error, "link committer user")
	}
	if result.RowsAffected == 0 {
		return notFound("patch", patchID)
	}
	return nil
}

func (r *TriageRepository) ListPatchesMissingCommitter(ctx context.Context, afterID uint64, limit int) ([]triage.Patch, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Patch{}).
		Where("id > ?", afterID).
		Where("committer_email IS NULL AND committer_name IS NULL AND committer_github_username IS NULL").
		Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.Patch
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query patches missing committer")
	}
	return mapPatches(rows), nil
}

func counterExpr(column string, delta int) clause.Expr {
	if delta >= 0 {
		return gorm.Expr(column+" + ?", delta)
	}
	return gorm.Expr("CASE WHEN "+column+" + ? < 0 THEN 0 ELSE "+column+" + ? END", delta, delta)
}

func (r *TriageRepository) AdjustVoteCounters(ctx context.Context, patchID uint64, usefulDelta int, notUsefulDelta int) error {
	if usefulDelta == 0 && notUsefulDelta == 0 {
		return nil
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	updates := make(map[string]any, 2)
	if usefulDelta != 0 {
		updates["useful_count"] = counterExpr("useful_count", usefulDelta)
	}
	if notUsefulDelta != 0 {
		updates["not_useful_count"] = counterExpr("not_useful_count", notUsefulDelta)
	}

	result := db.Model(&model.Patch{}).Where("id = ?", patchID).UpdateColumns(updates)
	if result.Error != nil {
		return errs.Wrap(result.Error, "adjust vote counters")
	}
	if result.RowsAffected == 0 {
		return notFound("patch", patchID)
	}
	return nil
}

func (r *TriageRepository) SetVoteCounters(ctx context.Context, patchID uint64, useful int64, notUseful int64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.Patch{}).Where("id = ?", patchID).UpdateColumns(map[string]any{
		"useful_count":     useful,
		"not_useful_count": notUseful,
	})
	if result.Error != nil {
		return errs.Wrap(result.Error, "set vote counters")
	}
	if result.RowsAffected == 0 {
		return notFound("patch", patchID)
	}
	return nil
}

// ---- ratings ----

func (r *TriageRepository) GetRating(ctx context.Context, patchID uint64, userID uint64) (triage.Rating, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return triage.Rating{}, err
	}

	var row model.PatchRating
	if err := db.Where("patch_id = ? AND user_id = ?", patchID, userID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return triage.Rating{}, notFound("rating", fmt.Sprintf("%d/%d", patchID, userID))
		}
		return triage.Rating{}, errs.Wrap(err, "query rating")
	}
	return mapRating(row), nil
}

func (r *TriageRepository) CreateRating(ctx context.Context, rating triage.Rating) (triage.Rating, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return triage.Rating{}, err
	}

	row := model.PatchRating{
		PatchID:   rating.PatchID,
		UserID:    rating.UserID,
		IsUseful:  rating.IsUseful,
		CreatedAt: rating.CreatedAt,
		UpdatedAt: rating.UpdatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return triage.Rating{}, fmt.Errorf("rating for patch %d user %d: %w", rating.PatchID, rating.UserID, triage.ErrDuplicate)
		}
		return triage.Rating{}, errs.Wrap(err, "insert rating")
	}
	return mapRating(row), nil
}

func (r *TriageRepository) FlipRating(ctx context.Context, ratingID uint64, isUseful bool, updatedAt time.Time) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.PatchRating{}).
		Where("id = ? AND is_useful = ?", ratingID, !isUseful).
		UpdateColumns(map[string]any{
			"is_useful":  isUseful,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "flip rating")
	}
	return result.RowsAffected > 0, nil
}

type tallyRow struct {
	Total     int64
	Useful    int64
	NotUseful int64
}

const tallySelect = "COUNT(*) AS total, " +
	"COALESCE(SUM(CASE WHEN is_useful THEN 1 ELSE 0 END), 0) AS useful, " +
	"COALESCE(SUM(CASE WHEN is_useful THEN 0 ELSE 1 END), 0) AS not_useful"

func (r *TriageRepository) TallyRatings(ctx context.Context, patchID uint64) (int64, int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}

	var tally tallyRow
	if err := db.Model(&model.PatchRating{}).
		Select(tallySelect).
		Where("patch_id = ?", patchID).
		Scan(&tally).Error; err != nil {
		return 0, 0, errs.Wrap(err, "tally ratings")
	}
	return tally.Useful, tally.NotUseful, nil
}

func (r *TriageRepository) UserRatingStats(ctx context.Context, userID uint64) (triage.UserStats, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return triage.UserStats{}, err
	}

	var tally tallyRow
	if err := db.Model(&model.PatchRating{}).
		Select(tallySelect).
		Where("user_id = ?", userID).
		Scan(&tally).Error; err != nil {
		return triage.UserStats{}, errs.Wrap(err, "tally user ratings")
	}

	active := true
	remaining, err := r.CountPatches(ctx, ports.PatchFilter{Active: &active, ExcludeRatedBy: userID})
	if err != nil {
		return triage.UserStats{}, err
	}

	return triage.UserStats{
		Total:     tally.Total,
		Useful:    tally.Useful,
		NotUseful: tally.NotUseful,
		Remaining: remaining,
	}, nil
}

type leaderboardRow struct {
	model.User
	RatingCount int64 `gorm:"column:rating_count"`
}

func (r *TriageRepository) Leaderboard(ctx context.Context, limit int) ([]triage.LeaderboardEntry, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Table("users").
		Select("users.*, COUNT(patch_ratings.id) AS rating_count").
		Joins("JOIN patch_ratings ON patch_ratings.user_id = users.id").
		Group("users.id").
		Order("rating_count desc, users.id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []leaderboardRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query leaderboard")
	}

	entries := make([]triage.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, triage.LeaderboardEntry{
			User:        mapUser(row.User),
			RatingCount: row.RatingCount,
		})
	}
	return entries, nil
}

func (r *TriageRepository) ListRecentRatings(ctx context.Context, userID uint64, limit int) ([]triage.Rating, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Where("user_id = ?", userID).Order("updated_at desc, id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.PatchRating
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query recent ratings")
	}
	return mapRatings(rows), nil
}

func (r *TriageRepository) ListPatchRaters(ctx context.Context, patchID uint64) ([]triage.Rating, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.PatchRating
	if err := db.Where("patch_id = ?", patchID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query patch ratings")
	}
	return mapRatings(rows), nil
}

// ---- claims ----

func (r *TriageRepository) CreateClaim(ctx context.Context, claim triage.Claim) (triage.Claim, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return triage.Claim{}, err
	}

	row := model.PatchClaim{
		PatchID:   claim.PatchID,
		UserID:    claim.UserID,
		Notes:     optionalString(claim.Notes),
		CreatedAt: claim.CreatedAt,
		UpdatedAt: claim.UpdatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return triage.Claim{}, fmt.Errorf("patch %d user %d: %w", claim.PatchID, claim.UserID, triage.ErrDuplicateClaim)
		}
		return triage.Claim{}, errs.Wrap(err, "insert claim")
	}
	return mapClaim(row), nil
}

func (r *TriageRepository) DeleteClaim(ctx context.Context, patchID uint64, userID uint64) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Where("patch_id = ? AND user_id = ?", patchID, userID).Delete(&model.PatchClaim{})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "delete claim")
	}
	return result.RowsAffected > 0, nil
}

func (r *TriageRepository) DeleteClaimsForPatch(ctx context.Context, patchID uint64) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	result := db.Where("patch_id = ?", patchID).Delete(&model.PatchClaim{})
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "delete patch claims")
	}
	return result.RowsAffected, nil
}

func (r *TriageRepository) ListClaims(ctx context.Context, patchID uint64) ([]triage.Claim, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.PatchClaim
	if err := db.Where("patch_id = ?", patchID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query claims")
	}

	items := make([]triage.Claim, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapClaim(row))
	}
	return items, nil
}

func (r *TriageRepository) HasClaim(ctx context.Context, patchID uint64, userID uint64) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	var count int64
	if err := db.Model(&model.PatchClaim{}).
		Where("patch_id = ? AND user_id = ?", patchID, userID).
		Count(&count).Error; err != nil {
		return false, errs.Wrap(err, "count claims")
	}
	return count > 0, nil
}

func (r *TriageRepository) AppendClaimLog(ctx context.Context, entry triage.ClaimLog) (triage.ClaimLog, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return triage.ClaimLog{}, err
	}

	row := model.PatchClaimLog{
		PatchID:   entry.PatchID,
		UserID:    entry.UserID,
		Action:    string(entry.Action),
		Notes:     optionalString(entry.Notes),
		CreatedAt: entry.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return triage.ClaimLog{}, errs.Wrap(err, "insert claim log")
	}
	return mapClaimLog(row), nil
}

func (r *TriageRepository) ListClaimLogs(ctx context.Context, patchID uint64) ([]triage.ClaimLog, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.PatchClaimLog
	if err := db.Where("patch_id = ?", patchID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query claim logs")
	}

	items := make([]triage.ClaimLog, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapClaimLog(row))
	}
	return items, nil
}

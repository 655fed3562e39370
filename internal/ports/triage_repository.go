package ports

import (
	"context"
	"time"

	"patchtriage/internal/domain/triage"
)

type PatchSort string

const (
	SortByID          PatchSort = ""
	SortNewest        PatchSort = "newest"
	SortOldest        PatchSort = "oldest"
	SortUseful        PatchSort = "useful"
	SortPopular       PatchSort = "popular"
	SortControversial PatchSort = "controversial"
)

// PatchFilter narrows patch queries. Zero values mean "no constraint".
type PatchFilter struct {
	Active            *bool
	Resolved          *bool
	Claimed           *bool
	ExcludeRatedBy    uint64
	CommitterUsername string
	CommitterUserID   uint64
	Sort              PatchSort
	Limit             int
	Offset            int
}

// CommitterUpdate is the write-once committer metadata produced by the backfill.
type CommitterUpdate struct {
	Email          string
	Name           string
	GitHubUsername string
	GitHubID       int64
}

type PatchRepository interface {
	CreatePatch(ctx context.Context, patch triage.Patch) (triage.Patch, error)
	SavePatch(ctx context.Context, patch triage.Patch) (triage.Patch, error)
	GetPatch(ctx context.Context, patchID uint64) (triage.Patch, error)
	FindPatchByHash(ctx context.Context, commitHash string) (triage.Patch, error)
	ListPatches(ctx context.Context, filter PatchFilter) ([]triage.Patch, error)
	CountPatches(ctx context.Context, filter PatchFilter) (int64, error)
	DeletePatch(ctx context.Context, patchID uint64) error
	NeighbourPatchIDs(ctx context.Context, patchID uint64) (prevID uint64, nextID uint64, err error)
	ListPatchIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error)

	SetPatchActive(ctx context.Context, patchID uint64, active bool, updatedAt time.Time) error
	UpdateResolution(ctx context.Context, patch triage.Patch) error
	UpdateCommitter(ctx context.Context, patchID uint64, update CommitterUpdate) (bool, error)
	LinkCommitterUser(ctx context.Context, patchID uint64, userID uint64) error
	ListPatchesMissingCommitter(ctx context.Context, afterID uint64, limit int) ([]triage.Patch, error)

	// AdjustVoteCounters applies deltas as one storage-side update. Negative
	// results are floored at zero.
	AdjustVoteCounters(ctx context.Context, patchID uint64, usefulDelta int, notUsefulDelta int) error
	SetVoteCounters(ctx context.Context, patchID uint64, useful int64, notUseful int64) error
}

type RatingRepository interface {
	GetRating(ctx context.Context, patchID uint64, userID uint64) (triage.Rating, error)
	CreateRating(ctx context.Context, rating triage.Rating) (triage.Rating, error)
	// FlipRating changes is_useful only if it still differs. It reports
	// whether a row changed.
	FlipRating(ctx context.Context, ratingID uint64, isUseful bool, updatedAt time.Time) (bool, error)
	TallyRatings(ctx context.Context, patchID uint64) (useful int64, notUseful int64, err error)
	UserRatingStats(ctx context.Context, userID uint64) (triage.UserStats, error)
	Leaderboard(ctx context.Context, limit int) ([]triage.LeaderboardEntry, error)
	ListRecentRatings(ctx context.Context, userID uint64, limit int) ([]triage.Rating, error)
	ListPatchRaters(ctx context.Context, patchID uint64) ([]triage.Rating, error)
}

type ClaimRepository interface {
	CreateClaim(ctx context.Context, claim triage.Claim) (triage.Claim, error)
	DeleteClaim(ctx context.Context, patchID uint64, userID uint64) (bool, error)
	DeleteClaimsForPatch(ctx context.Context, patchID uint64) (int64, error)
	ListClaims(ctx context.Context, patchID uint64) ([]triage.Claim, error)
	HasClaim(ctx context.Context, patchID uint64, userID uint64) (bool, error)
	AppendClaimLog(ctx context.Context, entry triage.ClaimLog) (triage.ClaimLog, error)
	ListClaimLogs(ctx context.Context, patchID uint64) ([]triage.ClaimLog, error)
}

// TriageRepository is the full persistence surface of the triage usecases.
type TriageRepository interface {
	PatchRepository
	RatingRepository
	ClaimRepository
}

// TransferRepository reads and upserts whole tables for export/import.
// Upserts write the given timestamps verbatim.
type TransferRepository interface {
	ListAllPatches(ctx context.Context) ([]triage.Patch, error)
	ListAllRatings(ctx context.Context) ([]triage.Rating, error)
	ListAllClaims(ctx context.Context) ([]triage.Claim, error)
	ListAllClaimLogs(ctx context.Context) ([]triage.ClaimLog, error)

	UpsertPatch(ctx context.Context, patch triage.Patch) (patchID uint64, created bool, err error)
	UpsertRating(ctx context.Context, rating triage.Rating) (created bool, err error)
	UpsertClaim(ctx context.Context, claim triage.Claim) (created bool, err error)
	InsertClaimLogIfAbsent(ctx context.Context, entry triage.ClaimLog) (inserted bool, err error)
	RecountPatch(ctx context.Context, patchID uint64) error
}

package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
)

// Build snapshots the store. All reads share one read-only transaction so
// every rating, claim and log refers to an exported patch.
func (s *Service) Build(ctx context.Context) (Document, error) {
	if err := s.checkReady(ctx); err != nil {
		return Document{}, err
	}

	var (
		patches   []domain.Patch
		ratings   []domain.Rating
		claims    []domain.Claim
		claimLogs []domain.ClaimLog
		users     []domain.User
	)
	err := s.uow.WithSnapshot(ctx, func(txCtx context.Context) error {
		var err error
		if patches, err = s.repo.ListAllPatches(txCtx); err != nil {
			return errs.Wrap(err, "load patches")
		}
		if ratings, err = s.repo.ListAllRatings(txCtx); err != nil {
			return errs.Wrap(err, "load ratings")
		}
		if claims, err = s.repo.ListAllClaims(txCtx); err != nil {
			return errs.Wrap(err, "load claims")
		}
		if claimLogs, err = s.repo.ListAllClaimLogs(txCtx); err != nil {
			return errs.Wrap(err, "load claim logs")
		}
		if users, err = s.users.ListUsersByIDs(txCtx, referencedUserIDs(patches, ratings, claims, claimLogs)); err != nil {
			return errs.Wrap(err, "load referenced users")
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}

	hashByID := make(map[uint64]string, len(patches))
	hashOf := func(kind string, patchID uint64) (string, error) {
		hash, ok := hashByID[patchID]
		if !ok {
			return "", fmt.Errorf("%s refers to patch %d which is not in the export", kind, patchID)
		}
		return hash, nil
	}

	doc := Document{
		Version:    documentVersion,
		ExportedAt: s.now(),
		Users:      []UserRecord{},
		Patches:    make([]PatchRecord, 0, len(patches)),
		Ratings:    make([]RatingRecord, 0, len(ratings)),
		Claims:     make([]ClaimRecord, 0, len(claims)),
		ClaimLogs:  make([]ClaimLogRecord, 0, len(claimLogs)),
	}
	for _, p := range patches {
		hashByID[p.ID] = p.CommitHash
		doc.Patches = append(doc.Patches, newPatchRecord(p))
	}
	for _, r := range ratings {
		hash, err := hashOf("rating", r.PatchID)
		if err != nil {
			return Document{}, err
		}
		doc.Ratings = append(doc.Ratings, RatingRecord{
			CommitHash: hash,
			UserID:     r.UserID,
			IsUseful:   r.IsUseful,
			CreatedAt:  r.CreatedAt,
			UpdatedAt:  r.UpdatedAt,
		})
	}
	for _, c := range claims {
		hash, err := hashOf("claim", c.PatchID)
		if err != nil {
			return Document{}, err
		}
		doc.Claims = append(doc.Claims, ClaimRecord{
			CommitHash: hash,
			UserID:     c.UserID,
			Notes:      c.Notes,
			CreatedAt:  c.CreatedAt,
			UpdatedAt:  c.UpdatedAt,
		})
	}
	for _, l := range claimLogs {
		hash, err := hashOf("claim log", l.PatchID)
		if err != nil {
			return Document{}, err
		}
		doc.ClaimLogs = append(doc.ClaimLogs, ClaimLogRecord{
			CommitHash: hash,
			UserID:     l.UserID,
			Action:     string(l.Action),
			Notes:      l.Notes,
			CreatedAt:  l.CreatedAt,
		})
	}

	for _, u := range users {
		doc.Users = append(doc.Users, UserRecord{ID: u.ID, Email: u.Email, Username: u.Username})
	}

	doc.Counts = Counts{
		Patches:        len(doc.Patches),
		PatchRatings:   len(doc.Ratings),
		PatchClaims:    len(doc.Claims),
		PatchClaimLogs: len(doc.ClaimLogs),
	}
	return doc, nil
}

func referencedUserIDs(patches []domain.Patch, ratings []domain.Rating, claims []domain.Claim, logs []domain.ClaimLog) []uint64 {
	seen := make(map[uint64]struct{})
	add := func(id *uint64) {
		if id != nil && *id != 0 {
			seen[*id] = struct{}{}
		}
	}
	for _, p := range patches {
		add(p.ResolvedByID)
		add(p.CommitterUserID)
	}
	for _, r := range ratings {
		add(&r.UserID)
	}
	for _, c := range claims {
		add(&c.UserID)
	}
	for _, l := range logs {
		add(&l.UserID)
	}

	ids := make([]uint64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Export writes the snapshot to path, creating parent directories.
func (s *Service) Export(ctx context.Context, path string) (Counts, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Counts{}, fmt.Errorf("export path is required")
	}

	doc, err := s.Build(ctx)
	if err != nil {
		return Counts{}, err
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Counts{}, errs.Wrapf(err, "create export directory %q", dir)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Counts{}, errs.Wrap(err, "encode export document")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Counts{}, errs.Wrapf(err, "write export file %q", path)
	}

	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "usecase.transfer")),
		"triage data exported",
		slog.String("path", path),
		slog.Int("patches", doc.Counts.Patches),
		slog.Int("patch_ratings", doc.Counts.PatchRatings),
		slog.Int("patch_claims", doc.Counts.PatchClaims),
		slog.Int("patch_claim_logs", doc.Counts.PatchClaimLogs),
		slog.Int("users", len(doc.Users)),
	)
	return doc.Counts, nil
}

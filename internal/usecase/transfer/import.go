package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
)

// ImportResult counts what an import changed.
type ImportResult struct {
	UsersStaged       int `json:"users_staged"`
	PatchesCreated    int `json:"patches_created"`
	PatchesUpdated    int `json:"patches_updated"`
	RatingsCreated    int `json:"ratings_created"`
	RatingsUpdated    int `json:"ratings_updated"`
	ClaimsCreated     int `json:"claims_created"`
	ClaimsUpdated     int `json:"claims_updated"`
	ClaimLogsInserted int `json:"claim_logs_inserted"`
	ClaimLogsSkipped  int `json:"claim_logs_skipped"`
}

// Load reads and checks a document written by Export.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, fmt.Errorf("%s: %w", path, domain.ErrImportSourceMissing)
		}
		return Document{}, errs.Wrapf(err, "read import file %q", path)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode %s: %w: %w", path, domain.ErrImportInvalid, err)
	}
	if err := doc.check(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Import loads path and applies it in one transaction.
func (s *Service) Import(ctx context.Context, path string) (ImportResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return ImportResult{}, err
	}
	doc, err := Load(path)
	if err != nil {
		return ImportResult{}, err
	}

	result, err := s.Apply(ctx, doc)
	if err != nil {
		return ImportResult{}, err
	}

	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "usecase.transfer")),
		"triage data imported",
		slog.String("path", path),
		slog.Int("patches_created", result.PatchesCreated),
		slog.Int("patches_updated", result.PatchesUpdated),
		slog.Int("claim_logs_inserted", result.ClaimLogsInserted),
		slog.Int("users_staged", result.UsersStaged),
	)
	return result, nil
}

// Apply upserts every record of doc: patches by commit hash, ratings and
// claims by (patch, user), claim logs only when absent. Stored timestamps
// come from the document. Users are matched by email and created as staged
// placeholders when missing. Counters are recounted from the imported ratings.
func (s *Service) Apply(ctx context.Context, doc Document) (ImportResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return ImportResult{}, err
	}
	if err := doc.check(); err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		users, err := s.resolveUsers(txCtx, doc.Users, &result)
		if err != nil {
			return err
		}

		patchIDs := make(map[string]uint64, len(doc.Patches))
		for _, rec := range doc.Patches {
			resolvedBy, err := users.optional(rec.ResolvedByID)
			if err != nil {
				return fmt.Errorf("patch %s resolved_by: %w", rec.CommitHash, err)
			}
			committer, err := users.optional(rec.CommitterUserID)
			if err != nil {
				return fmt.Errorf("patch %s committer_user: %w", rec.CommitHash, err)
			}

			patch := rec.toPatch(resolvedBy, committer)
			if err := patch.Validate(); err != nil {
				return fmt.Errorf("patch %s: %w", rec.CommitHash, err)
			}

			id, created, err := s.repo.UpsertPatch(txCtx, patch)
			if err != nil {
				return err
			}
			patchIDs[patch.CommitHash] = id
			if created {
				result.PatchesCreated++
			} else {
				result.PatchesUpdated++
			}
		}

		for _, rec := range doc.Ratings {
			patchID, userID, err := refs(patchIDs, users, rec.CommitHash, rec.UserID)
			if err != nil {
				return fmt.Errorf("rating: %w", err)
			}
			created, err := s.repo.UpsertRating(txCtx, domain.Rating{
				PatchID:   patchID,
				UserID:    userID,
				IsUseful:  rec.IsUseful,
				CreatedAt: rec.CreatedAt.UTC(),
				UpdatedAt: rec.UpdatedAt.UTC(),
			})
			if err != nil {
				return err
			}
			if created {
				result.RatingsCreated++
			} else {
				result.RatingsUpdated++
			}
		}

		for _, rec := range doc.Claims {
			patchID, userID, err := refs(patchIDs, users, rec.CommitHash, rec.UserID)
			if err != nil {
				return fmt.Errorf("claim: %w", err)
			}
			created, err := s.repo.UpsertClaim(txCtx, domain.Claim{
				PatchID:   patchID,
				UserID:    userID,
				Notes:     rec.Notes,
				CreatedAt: rec.CreatedAt.UTC(),
				UpdatedAt: rec.UpdatedAt.UTC(),
			})
			if err != nil {
				return err
			}
			if created {
				result.ClaimsCreated++
			} else {
				result.ClaimsUpdated++
			}
		}

		for _, rec := range doc.ClaimLogs {
			patchID, userID, err := refs(patchIDs, users, rec.CommitHash, rec.UserID)
			if err != nil {
				return fmt.Errorf("claim log: %w", err)
			}
			action := domain.ClaimAction(rec.Action)
			if action != domain.ClaimActionClaimed && action != domain.ClaimActionUnclaimed {
				return fmt.Errorf("claim log action %q: %w", rec.Action, domain.ErrImportInvalid)
			}
			inserted, err := s.repo.InsertClaimLogIfAbsent(txCtx, domain.ClaimLog{
				PatchID:   patchID,
				UserID:    userID,
				Action:    action,
				Notes:     rec.Notes,
				CreatedAt: rec.CreatedAt.UTC(),
			})
			if err != nil {
				return err
			}
			if inserted {
				result.ClaimLogsInserted++
			} else {
				result.ClaimLogsSkipped++
			}
		}

		for _, id := range patchIDs {
			if err := s.repo.RecountPatch(txCtx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if domain.IsDomainError(err) {
			return ImportResult{}, err
		}
		return ImportResult{}, domain.NewTransactionError("import triage data", errs.WithStack(err))
	}
	return result, nil
}

// userMap translates exported user ids to local ids.
type userMap map[uint64]uint64

func (m userMap) get(exportedID uint64) (uint64, error) {
	id, ok := m[exportedID]
	if !ok {
		return 0, fmt.Errorf("unknown user %d: %w", exportedID, domain.ErrImportInvalid)
	}
	return id, nil
}

func (m userMap) optional(exportedID *uint64) (*uint64, error) {
	if exportedID == nil {
		return nil, nil
	}
	id, err := m.get(*exportedID)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func refs(patchIDs map[string]uint64, users userMap, hash string, exportedUserID uint64) (uint64, uint64, error) {
	patchID, ok := patchIDs[domain.NormalizeCommitHash(hash)]
	if !ok {
		return 0, 0, fmt.Errorf("unknown patch %q: %w", hash, domain.ErrImportInvalid)
	}
	userID, err := users.get(exportedUserID)
	if err != nil {
		return 0, 0, err
	}
	return patchID, userID, nil
}

func (s *Service) resolveUsers(ctx context.Context, records []UserRecord, result *ImportResult) (userMap, error) {
	users := make(userMap, len(records))
	for _, rec := range records {
		email := strings.TrimSpace(rec.Email)
		if email == "" {
			return nil, fmt.Errorf("user %d has no email: %w", rec.ID, domain.ErrImportInvalid)
		}

		existing, err := s.users.FindUserByEmail(ctx, email)
		if err == nil {
			users[rec.ID] = existing.ID
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		now := s.now()
		staged, err := s.users.CreateUser(ctx, domain.User{
			Username:  stagedUsername(email),
			Email:     email,
			Staged:    true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return nil, errs.Wrapf(err, "create staged user %s", email)
		}
		users[rec.ID] = staged.ID
		result.UsersStaged++
	}
	return users, nil
}

var usernameUnsafe = regexp.MustCompile(`[^a-z0-9_.-]+`)

// stagedUsername derives a unique placeholder username from an email.
func stagedUsername(email string) string {
	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	local = strings.Trim(usernameUnsafe.ReplaceAllString(local, "_"), "_.-")
	if local == "" {
		local = "user"
	}
	if len(local) > 20 {
		local = local[:20]
	}
	return local + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

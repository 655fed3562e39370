package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"patchtriage/internal/domain/triage"
	"patchtriage/internal/infrastructure/persistence/gormdb/model"
)

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// nullable turns a nil pointer into an untyped nil for map-based updates.
func nullable[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func sameInstant(a time.Time, b time.Time) bool {
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}

func toPatchModel(p triage.Patch) model.Patch {
	return model.Patch{
		ID:                      p.ID,
		CommitHash:              p.CommitHash,
		Title:                   p.Title,
		Summary:                 optionalString(p.Summary),
		MarkdownContent:         optionalString(p.MarkdownContent),
		DiffContent:             optionalString(p.DiffContent),
		IssueType:               optionalString(string(p.IssueType)),
		AuditDate:               p.AuditDate,
		Repository:              optionalString(p.Repository),
		Active:                  p.Active,
		UsefulCount:             p.UsefulCount,
		NotUsefulCount:          p.NotUsefulCount,
		ResolvedAt:              p.ResolvedAt,
		ResolvedByID:            p.ResolvedByID,
		ResolutionStatus:        optionalString(string(p.ResolutionStatus)),
		ResolutionNotes:         optionalString(p.ResolutionNotes),
		ResolutionChangesetURL:  optionalString(p.ResolutionChangesetURL),
		CommitterEmail:          p.CommitterEmail,
		CommitterName:           p.CommitterName,
		CommitterGitHubUsername: p.CommitterGitHubUsername,
		CommitterGitHubID:       p.CommitterGitHubID,
		CommitterUserID:         p.CommitterUserID,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

func mapPatch(row model.Patch) triage.Patch {
	return triage.Patch{
		ID:                      row.ID,
		CommitHash:              row.CommitHash,
		Title:                   row.Title,
		Summary:                 stringValue(row.Summary),
		MarkdownContent:         stringValue(row.MarkdownContent),
		DiffContent:             stringValue(row.DiffContent),
		IssueType:               triage.IssueType(stringValue(row.IssueType)),
		AuditDate:               row.AuditDate,
		Repository:              stringValue(row.Repository),
		Active:                  row.Active,
		UsefulCount:             row.UsefulCount,
		NotUsefulCount:          row.NotUsefulCount,
		ResolvedAt:              row.ResolvedAt,
		ResolvedByID:            row.ResolvedByID,
		ResolutionStatus:        triage.ResolutionStatus(stringValue(row.ResolutionStatus)),
		ResolutionNotes:         stringValue(row.ResolutionNotes),
		ResolutionChangesetURL:  stringValue(row.ResolutionChangesetURL),
		CommitterEmail:          row.CommitterEmail,
		CommitterName:           row.CommitterName,
		CommitterGitHubUsername: row.CommitterGitHubUsername,
		CommitterGitHubID:       row.CommitterGitHubID,
		CommitterUserID:         row.CommitterUserID,
		CreatedAt:               row.CreatedAt,
		UpdatedAt:               row.UpdatedAt,
	}
}

func mapPatches(rows []model.Patch) []triage.Patch {
	items := make([]triage.Patch, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapPatch(row))
	}
	return items
}

func mapRating(row model.PatchRating) triage.Rating {
	return triage.Rating{
		ID:        row.ID,
		PatchID:   row.PatchID,
		UserID:    row.UserID,
		IsUseful:  row.IsUseful,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func mapRatings(rows []model.PatchRating) []triage.Rating {
	items := make([]triage.Rating, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRating(row))
	}
	return items
}

func mapClaim(row model.PatchClaim) triage.Claim {
	return triage.Claim{
		ID:        row.ID,
		PatchID:   row.PatchID,
		UserID:    row.UserID,
		Notes:     stringValue(row.Notes),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func mapClaimLog(row model.PatchClaimLog) triage.ClaimLog {
	return triage.ClaimLog{
		ID:        row.ID,
		PatchID:   row.PatchID,
		UserID:    row.UserID,
		Action:    triage.ClaimAction(row.Action),
		Notes:     stringValue(row.Notes),
		CreatedAt: row.CreatedAt,
	}
}

func toUserModel(u triage.User) model.User {
	return model.User{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Admin:          u.Admin,
		Staged:         u.Staged,
		GitHubID:       u.GitHubID,
		GitHubUsername: optionalString(u.GitHubUsername),
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func mapUser(row model.User) triage.User {
	return triage.User{
		ID:             row.ID,
		Username:       row.Username,
		Email:          row.Email,
		Admin:          row.Admin,
		Staged:         row.Staged,
		GitHubID:       row.GitHubID,
		GitHubUsername: stringValue(row.GitHubUsername),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

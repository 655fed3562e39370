package transfer

import (
	"fmt"
	"time"

	domain "patchtriage/internal/domain/triage"
)

const documentVersion = 1

// Document is the portable snapshot of the triage tables. Records refer to
// patches by commit hash and to users by their id in the exporting store;
// the users block maps those ids to emails.
type Document struct {
	Version    int              `json:"version"`
	ExportedAt time.Time        `json:"exported_at"`
	Counts     Counts           `json:"counts"`
	Users      []UserRecord     `json:"users"`
	Patches    []PatchRecord    `json:"patches"`
	Ratings    []RatingRecord   `json:"patch_ratings"`
	Claims     []ClaimRecord    `json:"patch_claims"`
	ClaimLogs  []ClaimLogRecord `json:"patch_claim_logs"`
}

type Counts struct {
	Patches        int `json:"patches"`
	PatchRatings   int `json:"patch_ratings"`
	PatchClaims    int `json:"patch_claims"`
	PatchClaimLogs int `json:"patch_claim_logs"`
}

type UserRecord struct {
	ID       uint64 `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type PatchRecord struct {
	CommitHash             string     `json:"commit_hash"`
	Title                  string     `json:"title"`
	Summary                string     `json:"summary,omitempty"`
	MarkdownContent        string     `json:"markdown_content,omitempty"`
	DiffContent            string     `json:"diff_content,omitempty"`
	IssueType              string     `json:"issue_type,omitempty"`
	AuditDate              *time.Time `json:"audit_date"`
	Repository             string     `json:"repository,omitempty"`
	Active                 bool       `json:"active"`
	UsefulCount            int        `json:"useful_count"`
	NotUsefulCount         int        `json:"not_useful_count"`
	ResolvedAt             *time.Time `json:"resolved_at"`
	ResolvedByID           *uint64    `json:"resolved_by_id"`
	ResolutionStatus       string     `json:"resolution_status,omitempty"`
	ResolutionNotes        string     `json:"resolution_notes,omitempty"`
	ResolutionChangesetURL string     `json:"resolution_changeset_url,omitempty"`

	CommitterEmail          *string `json:"committer_email"`
	CommitterName           *string `json:"committer_name"`
	CommitterGitHubUsername *string `json:"committer_github_username"`
	CommitterGitHubID       *int64  `json:"committer_github_id"`
	CommitterUserID         *uint64 `json:"committer_user_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RatingRecord struct {
	CommitHash string    `json:"commit_hash"`
	UserID     uint64    `json:"user_id"`
	IsUseful   bool      `json:"is_useful"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ClaimRecord struct {
	CommitHash string    `json:"commit_hash"`
	UserID     uint64    `json:"user_id"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ClaimLogRecord struct {
	CommitHash string    `json:"commit_hash"`
	UserID     uint64    `json:"user_id"`
	Action     string    `json:"action"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// check compares the counts block with the record arrays.
func (d Document) check() error {
	got := Counts{
		Patches:        len(d.Patches),
		PatchRatings:   len(d.Ratings),
		PatchClaims:    len(d.Claims),
		PatchClaimLogs: len(d.ClaimLogs),
	}
	if got != d.Counts {
		return fmt.Errorf("counts %+v do not match records %+v: %w", d.Counts, got, domain.ErrImportInvalid)
	}
	return nil
}

func newPatchRecord(p domain.Patch) PatchRecord {
	return PatchRecord{
		CommitHash:              p.CommitHash,
		Title:                   p.Title,
		Summary:                 p.Summary,
		MarkdownContent:         p.MarkdownContent,
		DiffContent:             p.DiffContent,
		IssueType:               string(p.IssueType),
		AuditDate:               p.AuditDate,
		Repository:              p.Repository,
		Active:                  p.Active,
		UsefulCount:             p.UsefulCount,
		NotUsefulCount:          p.NotUsefulCount,
		ResolvedAt:              p.ResolvedAt,
		ResolvedByID:            p.ResolvedByID,
		ResolutionStatus:        string(p.ResolutionStatus),
		ResolutionNotes:         p.ResolutionNotes,
		ResolutionChangesetURL:  p.ResolutionChangesetURL,
		CommitterEmail:          p.CommitterEmail,
		CommitterName:           p.CommitterName,
		CommitterGitHubUsername: p.CommitterGitHubUsername,
		CommitterGitHubID:       p.CommitterGitHubID,
		CommitterUserID:         p.CommitterUserID,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

// toPatch rebuilds the patch with user references already translated.
func (r PatchRecord) toPatch(resolvedBy *uint64, committerUser *uint64) domain.Patch {
	return domain.Patch{
		CommitHash:              domain.NormalizeCommitHash(r.CommitHash),
		Title:                   r.Title,
		Summary:                 r.Summary,
		MarkdownContent:         r.MarkdownContent,
		DiffContent:             r.DiffContent,
		IssueType:               domain.IssueType(r.IssueType),
		AuditDate:               utcPtr(r.AuditDate),
		Repository:              r.Repository,
		Active:                  r.Active,
		UsefulCount:             r.UsefulCount,
		NotUsefulCount:          r.NotUsefulCount,
		ResolvedAt:              utcPtr(r.ResolvedAt),
		ResolvedByID:            resolvedBy,
		ResolutionStatus:        domain.ResolutionStatus(r.ResolutionStatus),
		ResolutionNotes:         r.ResolutionNotes,
		ResolutionChangesetURL:  r.ResolutionChangesetURL,
		CommitterEmail:          r.CommitterEmail,
		CommitterName:           r.CommitterName,
		CommitterGitHubUsername: r.CommitterGitHubUsername,
		CommitterGitHubID:       r.CommitterGitHubID,
		CommitterUserID:         committerUser,
		CreatedAt:               r.CreatedAt.UTC(),
		UpdatedAt:               r.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

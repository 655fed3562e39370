package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
)

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields,omitempty"`
	// Patch is the unchanged patch a rejected change was aimed at.
	Patch *patchView `json:"patch,omitempty"`
}

type patchView struct {
	ID                     uint64     `json:"id"`
	CommitHash             string     `json:"commit_hash"`
	ShortHash              string     `json:"short_hash"`
	Title                  string     `json:"title"`
	Summary                string     `json:"summary,omitempty"`
	IssueType              string     `json:"issue_type"`
	Repository             string     `json:"repository,omitempty"`
	AuditDate              *time.Time `json:"audit_date,omitempty"`
	Active                 bool       `json:"active"`
	UsefulCount            int        `json:"useful_count"`
	NotUsefulCount         int        `json:"not_useful_count"`
	UsefulRatio            float64    `json:"useful_ratio"`
	Resolved               bool       `json:"resolved"`
	ResolvedAt             *time.Time `json:"resolved_at,omitempty"`
	ResolvedByID           *uint64    `json:"resolved_by_id,omitempty"`
	ResolutionStatus       string     `json:"resolution_status,omitempty"`
	ResolutionNotes        string     `json:"resolution_notes,omitempty"`
	ResolutionChangesetURL string     `json:"resolution_changeset_url,omitempty"`
	CommitterName          *string    `json:"committer_name,omitempty"`
	CommitterUsername      *string    `json:"committer_github_username,omitempty"`
	GitHubCommitURL        string     `json:"github_commit_url"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

type patchDetailView struct {
	patchView
	MarkdownContent string            `json:"markdown_content"`
	DiffContent     string            `json:"diff_content"`
	DiffStats       *domain.DiffStats `json:"diff_stats,omitempty"`
	UserRating      *bool             `json:"user_rating"`
	ClaimedByMe     bool              `json:"claimed_by_me"`
	Claims          []claimView       `json:"claims"`
	PrevID          uint64            `json:"prev_id,omitempty"`
	NextID          uint64            `json:"next_id,omitempty"`
}

type claimView struct {
	UserID    uint64    `json:"user_id"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type leaderboardView struct {
	UserID      uint64 `json:"user_id"`
	Username    string `json:"username"`
	RatingCount int64  `json:"rating_count"`
}

func newPatchView(p domain.Patch, repo domain.RepoRef) patchView {
	return patchView{
		ID:                     p.ID,
		CommitHash:             p.CommitHash,
		ShortHash:              p.ShortHash(),
		Title:                  p.Title,
		Summary:                p.Summary,
		IssueType:              string(p.IssueType),
		Repository:             p.Repository,
		AuditDate:              p.AuditDate,
		Active:                 p.Active,
		UsefulCount:            p.UsefulCount,
		NotUsefulCount:         p.NotUsefulCount,
		UsefulRatio:            p.UsefulRatio(),
		Resolved:               p.Resolved(),
		ResolvedAt:             p.ResolvedAt,
		ResolvedByID:           p.ResolvedByID,
		ResolutionStatus:       string(p.ResolutionStatus),
		ResolutionNotes:        p.ResolutionNotes,
		ResolutionChangesetURL: p.ResolutionChangesetURL,
		CommitterName:          p.CommitterName,
		CommitterUsername:      p.CommitterGitHubUsername,
		GitHubCommitURL:        p.GitHubCommitURL(repo),
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

func newPatchViews(patches []domain.Patch, repo domain.RepoRef) []patchView {
	views := make([]patchView, 0, len(patches))
	for _, p := range patches {
		views = append(views, newPatchView(p, repo))
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeError maps the domain error taxonomy onto status codes. Anything
// unclassified is logged and reported as a 500 without detail.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: domain.ErrValidation.Error(), Fields: verr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrPatchResolved), errors.Is(err, domain.ErrDuplicate):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logging.Warn(ctx, "request aborted", slog.Any("err", errs.Loggable(err)))
		writeMessage(w, http.StatusServiceUnavailable, "request aborted")
	default:
		logging.Error(ctx, "request failed", slog.Any("err", errs.Loggable(err)))
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody reads an optional JSON body; an empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &domain.ValidationError{Fields: []domain.FieldError{{Field: "body", Message: "is not valid JSON"}}}
	}
	return nil
}

package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/ports"
	triageusecase "patchtriage/internal/usecase/triage"
)

const maxPageSize = 100

var sortParams = map[string]ports.PatchSort{
	"":              ports.SortNewest,
	"newest":        ports.SortNewest,
	"oldest":        ports.SortOldest,
	"useful":        ports.SortUseful,
	"popular":       ports.SortPopular,
	"controversial": ports.SortControversial,
}

// queryParams collects per-parameter problems so one response lists them all.
type queryParams struct {
	values url.Values
	verr   domain.ValidationError
}

func (q *queryParams) boolean(name string) *bool {
	raw := strings.TrimSpace(q.values.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		q.verr.Fields = append(q.verr.Fields, domain.FieldError{Field: name, Message: "must be true or false"})
		return nil
	}
	return &v
}

func (q *queryParams) integer(name string, def int, lo int, hi int) int {
	raw := strings.TrimSpace(q.values.Get(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		q.verr.Fields = append(q.verr.Fields, domain.FieldError{Field: name, Message: fmt.Sprintf("must be an integer between %d and %d", lo, hi)})
		return def
	}
	return v
}

func (q *queryParams) err() error {
	if len(q.verr.Fields) == 0 {
		return nil
	}
	return &q.verr
}

func patchID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &domain.ValidationError{Fields: []domain.FieldError{{Field: "id", Message: "must be a positive integer"}}}
	}
	return id, nil
}

func (h *handler) listPatches(w http.ResponseWriter, r *http.Request) {
	q := &queryParams{values: r.URL.Query()}
	filter := ports.PatchFilter{
		Active:            q.boolean("active"),
		Resolved:          q.boolean("resolved"),
		Claimed:           q.boolean("claimed"),
		CommitterUsername: strings.TrimSpace(q.values.Get("committer")),
		CommitterUserID:   uint64(q.integer("authored_by", 0, 0, math.MaxInt32)),
		Limit:             q.integer("limit", 25, 1, maxPageSize),
		Offset:            q.integer("offset", 0, 0, math.MaxInt32),
	}
	sort, ok := sortParams[strings.ToLower(strings.TrimSpace(q.values.Get("sort")))]
	if !ok {
		q.verr.Fields = append(q.verr.Fields, domain.FieldError{Field: "sort", Message: "must be one of newest, oldest, useful, popular, controversial"})
	}
	filter.Sort = sort
	if err := q.err(); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	patches, err := h.triage.ListPatches(r.Context(), filter)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	countFilter := filter
	countFilter.Limit, countFilter.Offset = 0, 0
	total, err := h.triage.CountPatches(r.Context(), countFilter)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patches": newPatchViews(patches, h.triage.RepoRef()),
		"total":   total,
	})
}

func (h *handler) nextPatch(w http.ResponseWriter, r *http.Request) {
	q := &queryParams{values: r.URL.Query()}
	scope := triageusecase.SelectionScope{Claimed: q.boolean("claimed")}
	if err := q.err(); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	patch, found, err := h.triage.RandomUnratedFor(r.Context(), caller(r).ID, scope)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, newPatchView(patch, h.triage.RepoRef()))
}

func (h *handler) showPatch(w http.ResponseWriter, r *http.Request) {
	id, err := patchID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	ctx := r.Context()
	user := caller(r)

	patch, err := h.triage.GetPatch(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	view := patchDetailView{
		patchView:       newPatchView(patch, h.triage.RepoRef()),
		MarkdownContent: patch.MarkdownContent,
		DiffContent:     patch.DiffContent,
		Claims:          []claimView{},
	}
	if patch.DiffContent != "" {
		if stats, err := domain.ComputeDiffStats(patch.DiffContent); err == nil {
			view.DiffStats = &stats
		}
	}

	rating, err := h.triage.UserRating(ctx, id, user.ID)
	switch {
	case err == nil:
		view.UserRating = &rating.IsUseful
	case !errors.Is(err, domain.ErrNotFound):
		writeError(ctx, w, err)
		return
	}

	claims, err := h.triage.ListClaims(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	for _, c := range claims {
		view.Claims = append(view.Claims, claimView{UserID: c.UserID, Notes: c.Notes, CreatedAt: c.CreatedAt})
		if c.UserID == user.ID {
			view.ClaimedByMe = true
		}
	}

	neighbours, err := h.triage.Neighbours(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	view.PrevID, view.NextID = neighbours.PrevID, neighbours.NextID

	writeJSON(w, http.StatusOK, view)
}

type rateRequest struct {
	IsUseful *bool `json:"is_useful"`
}

func (h *handler) rate(w http.ResponseWriter, r *http.Request) {
	id, err := patchID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var req rateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if req.IsUseful == nil {
		writeError(r.Context(), w, &domain.ValidationError{Fields: []domain.FieldError{{Field: "is_useful", Message: "is required"}}})
		return
	}

	if _, err := h.triage.Vote(r.Context(), triageusecase.VoteInput{PatchID: id, UserID: caller(r).ID, IsUseful: *req.IsUseful}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	patch, err := h.triage.GetPatch(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPatchView(patch, h.triage.RepoRef()))
}

type claimRequest struct {
	Notes string `json:"notes"`
}

func (h *handler) claim(w http.ResponseWriter, r *http.Request) {
	id, err := patchID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	claim, err := h.triage.ClaimPatch(r.Context(), triageusecase.ClaimInput{PatchID: id, UserID: caller(r).ID, Notes: req.Notes})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, claimView{UserID: claim.UserID, Notes: claim.Notes, CreatedAt: claim.CreatedAt})
}

func (h *handler) unclaim(w http.ResponseWriter, r *http.Request) {
	id, err := patchID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	removed, err := h.triage.UnclaimPatch(r.Context(), triageusecase.ClaimInput{PatchID: id, UserID: caller(r).ID})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

type resolveRequest struct {
	Status       string `json:"status"`
	Notes        string `json:"notes"`
	ChangesetURL string `json:"changeset_url"`
}

func (h *handler) resolve(w http.ResponseWriter, r *http.Request) {
	id, err := patchID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	patch, err := h.triage.ResolvePatch(r.Context(), triageusecase.ResolveInput{
		PatchID:      id,
		Status:       req.Status,
		Notes:        req.Notes,
		ChangesetURL: req.ChangesetURL,
		ResolvedBy:   caller(r).ID,
	})
	var verr *domain.ValidationError
	if errors.As(err, &verr) && patch.ID != 0 {
		view := newPatchView(patch, h.triage.RepoRef())
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: domain.ErrValidation.Error(), Fields: verr.Fields, Patch: &view})
		return
	}
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPatchView(patch, h.triage.RepoRef()))
}

func (h *handler) unresolve(w http.ResponseWriter, r *http.Request) {
	id, err := patchID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	patch, err := h.triage.UnresolvePatch(r.Context(), id, caller(r).ID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPatchView(patch, h.triage.RepoRef()))
}

func (h *handler) downloadToken(w http.ResponseWriter, r *http.Request) {
	id, err := patchID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	token, err := h.triage.GenerateDownloadToken(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"token": token,
		"url":   "/downloads/" + token,
	})
}

// download is reachable without the user header; the token is the credential.
func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	file, err := h.triage.DownloadPatch(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-diff; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(file.Content))
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.triage.UserStats(r.Context(), caller(r).ID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	q := &queryParams{values: r.URL.Query()}
	limit := q.integer("limit", 0, 0, maxPageSize)
	if err := q.err(); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	entries, err := h.triage.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	views := make([]leaderboardView, 0, len(entries))
	for _, e := range entries {
		views = append(views, leaderboardView{UserID: e.User.ID, Username: e.User.Username, RatingCount: e.RatingCount})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) recountAll(w http.ResponseWriter, r *http.Request) {
	processed, err := h.triage.RecountAll(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

func (h *handler) toggleActive(w http.ResponseWriter, r *http.Request) {
	id, err := patchID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	active, err := h.triage.TogglePatchActive(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (h *handler) deletePatch(w http.ResponseWriter, r *http.Request) {
	id, err := patchID(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := h.triage.DeletePatch(r.Context(), id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package triage

import (
	"strings"
	"time"
)

// Resolution is the terminal outcome written by resolve.
type Resolution struct {
	Status       ResolutionStatus
	Notes        string
	ChangesetURL string
	ResolvedByID uint64
	ResolvedAt   time.Time
}

// NewResolution normalizes and validates a resolve request. A changeset URL is
// only kept for fixed resolutions.
func NewResolution(status string, notes string, changesetURL string, resolvedBy uint64, at time.Time) (Resolution, error) {
	res := Resolution{
		Status:       ResolutionStatus(strings.ToLower(strings.TrimSpace(status))),
		Notes:        strings.TrimSpace(notes),
		ChangesetURL: strings.TrimSpace(changesetURL),
		ResolvedByID: resolvedBy,
		ResolvedAt:   at,
	}

	verr := &ValidationError{}
	if !res.Status.Valid() {
		verr.add("resolution_status", "must be fixed or invalid")
	}
	if resolvedBy == 0 {
		verr.add("resolved_by", "can't be blank")
	}
	if res.Status == ResolutionFixed {
		if msg := changesetURLProblem(res.ChangesetURL); msg != "" {
			verr.add("resolution_changeset_url", msg)
		}
	} else {
		res.ChangesetURL = ""
	}
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = time.Now().UTC()
	}

	if err := verr.orNil(); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// Apply returns a copy of p carrying the resolution fields.
func (r Resolution) Apply(p Patch) Patch {
	at := r.ResolvedAt
	by := r.ResolvedByID
	p.ResolvedAt = &at
	p.ResolvedByID = &by
	p.ResolutionStatus = r.Status
	p.ResolutionNotes = r.Notes
	p.ResolutionChangesetURL = r.ChangesetURL
	return p
}

// ClearResolution returns a copy of p with every resolution field cleared.
func ClearResolution(p Patch) Patch {
	p.ResolvedAt = nil
	p.ResolvedByID = nil
	p.ResolutionStatus = ""
	p.ResolutionNotes = ""
	p.ResolutionChangesetURL = ""
	return p
}

// AutoUnclaimNote is the audit note written for claims released by resolve.
func AutoUnclaimNote(status ResolutionStatus) string {
	return "auto: patch resolved as " + string(status)
}

package triage

import "time"

// Rating is one user's vote on one patch.
type Rating struct {
	ID        uint64
	PatchID   uint64
	UserID    uint64
	IsUseful  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Claim marks a user as currently working a patch.
type Claim struct {
	ID        uint64
	PatchID   uint64
	UserID    uint64
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ClaimAction string

const (
	ClaimActionClaimed   ClaimAction = "claimed"
	ClaimActionUnclaimed ClaimAction = "unclaimed"
)

// ClaimLog is an append-only audit entry.
type ClaimLog struct {
	ID        uint64
	PatchID   uint64
	UserID    uint64
	Action    ClaimAction
	Notes     string
	CreatedAt time.Time
}

// User is the local view of an identity owned by the user directory.
type User struct {
	ID             uint64
	Username       string
	Email          string
	Admin          bool
	Staged         bool
	GitHubID       *int64
	GitHubUsername string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type UserStats struct {
	Total     int64 `json:"total"`
	Useful    int64 `json:"useful"`
	NotUseful int64 `json:"not_useful"`
	Remaining int64 `json:"remaining"`
}

type LeaderboardEntry struct {
	User        User
	RatingCount int64
}

package ports

import (
	"context"
	"time"

	"patchtriage/internal/domain/triage"
)

// Cache stores short-lived string values such as download tokens. A zero ttl
// keeps the value until Delete; expired values read as not found.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// UserDirectory is the local projection of the external identity provider.
type UserDirectory interface {
	GetUser(ctx context.Context, userID uint64) (triage.User, error)
	FindUserByEmail(ctx context.Context, email string) (triage.User, error)
	FindUserByGitHubID(ctx context.Context, githubID int64) (triage.User, error)
	FindUserByGitHubUsername(ctx context.Context, username string) (triage.User, error)
	CreateUser(ctx context.Context, user triage.User) (triage.User, error)
	ListUsers(ctx context.Context) ([]triage.User, error)
	ListUsersByIDs(ctx context.Context, userIDs []uint64) ([]triage.User, error)
}

// CommitAuthor is what the code host knows about a commit's author.
// GitHubID is 0 when the commit is not linked to an account.
type CommitAuthor struct {
	Email          string
	Name           string
	GitHubUsername string
	GitHubID       int64
}

// CommitLookup fetches commit metadata from the code host.
//
// Errors: triage.ErrRateLimited stops a batch, triage.ErrCommitNotFound marks
// the commit as checked, anything else is a transient lookup failure.
type CommitLookup interface {
	LookupCommit(ctx context.Context, repoPath string, sha string) (CommitAuthor, error)
}

type TriageEvent struct {
	Action     string    `json:"action"`
	PatchID    uint64    `json:"patch_id"`
	CommitHash string    `json:"commit_hash"`
	UserID     uint64    `json:"user_id"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher announces committed triage changes. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event TriageEvent) error
}

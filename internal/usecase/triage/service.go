package triage

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	"patchtriage/internal/ports"
)

const (
	defaultDownloadTokenTTL = 10 * time.Minute
	defaultLeaderboardSize  = 10
	recentRatingsLimit      = 20
)

// Options carries the collaborators and knobs that are not repositories.
type Options struct {
	Repo             domain.RepoRef
	DownloadTokenTTL time.Duration
	LeaderboardSize  int
	// Random returns a value in [0, n). Defaults to math/rand/v2.
	Random func(n int64) int64
	Now    func() time.Time
}

type Service struct {
	repo      ports.TriageRepository
	users     ports.UserDirectory
	uow       ports.UnitOfWork
	cache     ports.Cache
	publisher ports.EventPublisher

	repoRef          domain.RepoRef
	downloadTokenTTL time.Duration
	leaderboardSize  int
	random           func(n int64) int64
	now              func() time.Time
}

// NewService wires triage usecases. cache and publisher may be nil.
func NewService(
	repo ports.TriageRepository,
	users ports.UserDirectory,
	uow ports.UnitOfWork,
	cache ports.Cache,
	publisher ports.EventPublisher,
	opts Options,
) *Service {
	s := &Service{
		repo:             repo,
		users:            users,
		uow:              uow,
		cache:            cache,
		publisher:        publisher,
		repoRef:          opts.Repo,
		downloadTokenTTL: opts.DownloadTokenTTL,
		leaderboardSize:  opts.LeaderboardSize,
		random:           opts.Random,
		now:              opts.Now,
	}
	if s.repoRef.Owner == "" || s.repoRef.Name == "" {
		s.repoRef = domain.DefaultRepoRef
	}
	if s.downloadTokenTTL <= 0 {
		s.downloadTokenTTL = defaultDownloadTokenTTL
	}
	if s.leaderboardSize <= 0 {
		s.leaderboardSize = defaultLeaderboardSize
	}
	if s.random == nil {
		s.random = rand.Int64N
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// RepoRef is the repository used for patches without a repository label.
func (s *Service) RepoRef() domain.RepoRef { return s.repoRef }

func (s *Service) checkReady(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return errors.New("triage repository is required")
	}
	if s.uow == nil {
		return errors.New("triage unit of work is required")
	}
	return nil
}

// withTx runs fn in one transaction. Storage failures come back as a
// TransactionError; domain errors pass through unchanged.
func (s *Service) withTx(ctx context.Context, op string, fn func(txCtx context.Context) error) error {
	err := s.uow.WithTx(ctx, fn)
	if err == nil {
		return nil
	}
	if domain.IsDomainError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var txErr *domain.TransactionError
	if errors.As(err, &txErr) {
		return err
	}
	return domain.NewTransactionError(op, errs.WithStack(err))
}

func (s *Service) publishBestEffort(ctx context.Context, action string, patch domain.Patch, userID uint64, detail string) {
	if s.publisher == nil {
		return
	}

	event := ports.TriageEvent{
		Action:     action,
		PatchID:    patch.ID,
		CommitHash: patch.CommitHash,
		UserID:     userID,
		Detail:     detail,
		OccurredAt: s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logging.Warn(
			logging.WithAttrs(ctx, slog.String("component", "usecase.triage")),
			"publish triage event failed",
			slog.String("action", action),
			slog.Uint64("patch_id", patch.ID),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

// RequireAdmin fails with ErrForbidden unless the user holds the admin capability.
func (s *Service) RequireAdmin(ctx context.Context, userID uint64) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user directory is required")
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if !user.Admin {
		return domain.User{}, domain.ErrForbidden
	}
	return user, nil
}

package triage

import (
	"context"
	"errors"
	"log/slog"

	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
)

// MatchCommitterToUser links the patch to a local user by GitHub id, then
// email, then GitHub username. The first match wins; an existing link is
// kept. It reports the linked user id, zero when nothing matched.
func (s *Service) MatchCommitterToUser(ctx context.Context, patchID uint64) (uint64, error) {
	if err := s.checkReady(ctx); err != nil {
		return 0, err
	}
	if s.users == nil {
		return 0, errors.New("user directory is required")
	}

	patch, err := s.repo.GetPatch(ctx, patchID)
	if err != nil {
		return 0, err
	}
	if patch.CommitterUserID != nil {
		return *patch.CommitterUserID, nil
	}

	user, err := s.findCommitter(ctx, patch)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if err := s.repo.LinkCommitterUser(ctx, patchID, user.ID); err != nil {
		return 0, err
	}
	logging.Debug(
		logging.WithAttrs(ctx, slog.String("component", "usecase.triage")),
		"committer linked",
		slog.Uint64("patch_id", patchID),
		slog.Uint64("user_id", user.ID),
	)
	return user.ID, nil
}

func (s *Service) findCommitter(ctx context.Context, patch domain.Patch) (domain.User, error) {
	lookups := make([]func() (domain.User, error), 0, 3)
	if id := patch.CommitterGitHubID; id != nil && *id > 0 {
		lookups = append(lookups, func() (domain.User, error) { return s.users.FindUserByGitHubID(ctx, *id) })
	}
	if email := patch.CommitterEmail; email != nil && *email != "" {
		lookups = append(lookups, func() (domain.User, error) { return s.users.FindUserByEmail(ctx, *email) })
	}
	if login := patch.CommitterGitHubUsername; login != nil && *login != "" {
		lookups = append(lookups, func() (domain.User, error) { return s.users.FindUserByGitHubUsername(ctx, *login) })
	}

	for _, lookup := range lookups {
		user, err := lookup()
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, err
		}
	}
	return domain.User{}, domain.ErrNotFound
}

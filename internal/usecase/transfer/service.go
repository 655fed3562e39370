package transfer

import (
	"context"
	"errors"
	"time"

	"patchtriage/internal/errs"
	"patchtriage/internal/ports"
)

// Service moves the whole triage graph between stores as one JSON document.
type Service struct {
	repo  ports.TransferRepository
	users ports.UserDirectory
	uow   ports.UnitOfWork
	now   func() time.Time
}

func NewService(repo ports.TransferRepository, users ports.UserDirectory, uow ports.UnitOfWork) *Service {
	return &Service{
		repo:  repo,
		users: users,
		uow:   uow,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) checkReady(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return errors.New("transfer repository is required")
	}
	if s.users == nil {
		return errors.New("user directory is required")
	}
	if s.uow == nil {
		return errors.New("transfer unit of work is required")
	}
	return nil
}

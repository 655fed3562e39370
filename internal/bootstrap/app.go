package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"patchtriage/internal/bootstrap/config"
	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	"patchtriage/internal/infrastructure/persistence/gormdb/model"
	"patchtriage/internal/ports"
	"patchtriage/internal/usecase/enrich"
	"patchtriage/internal/usecase/transfer"
	"patchtriage/internal/usecase/triage"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	DB       *gorm.DB
	Users    ports.UserDirectory
	Triage   *triage.Service
	Transfer *transfer.Service
	Backfill *enrich.Backfiller
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}

// Actor resolves the acting user from a user id or email. A blank reference
// means the configured system identity, which is created as an admin on
// first use.
func (a *App) Actor(ctx context.Context, ref string) (domain.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return a.systemUser(ctx)
	}
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return a.Users.GetUser(ctx, id)
	}
	return a.Users.FindUserByEmail(ctx, ref)
}

func (a *App) systemUser(ctx context.Context) (domain.User, error) {
	email := strings.TrimSpace(a.Config.Triage.SystemUserEmail)
	if email == "" {
		return domain.User{}, errors.New("triage.system_user_email is required when no user is given")
	}

	user, err := a.Users.FindUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}

	username, _, _ := strings.Cut(email, "@")
	user, err = a.Users.CreateUser(ctx, domain.User{Username: username, Email: email, Admin: true})
	if errors.Is(err, domain.ErrDuplicate) {
		return a.Users.FindUserByEmail(ctx, email)
	}
	if err != nil {
		return domain.User{}, errs.Wrap(err, "create system user")
	}

	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")),
		"system user created",
		slog.String("email", email),
		slog.Uint64("user_id", user.ID),
	)
	return user, nil
}

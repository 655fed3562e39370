package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"patchtriage/internal/bootstrap/config"
	"patchtriage/internal/bootstrap/database"
	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	cacheinfra "patchtriage/internal/infrastructure/cache"
	"patchtriage/internal/infrastructure/events"
	"patchtriage/internal/infrastructure/github"
	"patchtriage/internal/infrastructure/persistence/gormdb/model"
	"patchtriage/internal/infrastructure/persistence/gormdb/repository"
	"patchtriage/internal/infrastructure/persistence/gormdb/uow"
	"patchtriage/internal/ports"
	"patchtriage/internal/usecase/enrich"
	"patchtriage/internal/usecase/transfer"
	"patchtriage/internal/usecase/triage"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideLogger),
	fx.Provide(provideDatabase),
	fx.Provide(
		repository.NewTriageRepository,
		func(r *repository.TriageRepository) ports.TriageRepository { return r },
		func(r *repository.TriageRepository) ports.TransferRepository { return r },
	),
	fx.Provide(
		fx.Annotate(
			repository.NewUserRepository,
			fx.As(new(ports.UserDirectory)),
		),
	),
	fx.Provide(
		fx.Annotate(
			uow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(provideCache),
	fx.Provide(providePublisher),
	fx.Provide(
		fx.Annotate(
			provideCommitLookup,
			fx.As(new(ports.CommitLookup)),
		),
	),
	fx.Provide(provideTriageService),
	fx.Provide(transfer.NewService),
	fx.Provide(provideBackfiller),
	fx.Provide(provideApp),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	if cfg.Database.AutoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
			return nil, errs.Wrap(err, "auto migrate schema")
		}
	}

	return db, nil
}

func provideCache(lc fx.Lifecycle, ctx context.Context, cfg config.Config, db *gorm.DB) (ports.Cache, error) {
	if !strings.EqualFold(cfg.Cache.Driver, "redis") {
		return cacheinfra.NewDatabaseCache(db), nil
	}

	redisCache, err := cacheinfra.NewRedisCache(ctx, cacheinfra.RedisOptions{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error { return redisCache.Close() },
	})
	return redisCache, nil
}

func providePublisher(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.EventPublisher, error) {
	url := strings.TrimSpace(cfg.Events.NATSURL)
	if url == "" {
		return events.NopPublisher{}, nil
	}

	conn, err := events.ConnectNATS(url, cfg.App.Name)
	if err != nil {
		return nil, err
	}
	publisher := events.NewNATSPublisher(conn, cfg.Events.SubjectPrefix)
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error { return publisher.Close() },
	})

	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
		"triage events enabled",
		slog.String("subject_prefix", cfg.Events.SubjectPrefix),
	)
	return publisher, nil
}

func provideCommitLookup(ctx context.Context, cfg config.Config) (*github.CommitClient, error) {
	return github.NewCommitClient(ctx, github.Options{
		Token:             cfg.GitHub.APIToken,
		AppID:             cfg.GitHub.AppID,
		InstallationID:    cfg.GitHub.InstallationID,
		PrivateKeyPath:    cfg.GitHub.PrivateKeyPath,
		BaseURL:           cfg.GitHub.BaseURL,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
	})
}

func repoRef(cfg config.Config) domain.RepoRef {
	return domain.RepoRef{Owner: cfg.Triage.DefaultRepoOwner, Name: cfg.Triage.DefaultRepo}
}

func provideTriageService(
	cfg config.Config,
	repo ports.TriageRepository,
	users ports.UserDirectory,
	unitOfWork ports.UnitOfWork,
	cache ports.Cache,
	publisher ports.EventPublisher,
) *triage.Service {
	return triage.NewService(repo, users, unitOfWork, cache, publisher, triage.Options{
		Repo:             repoRef(cfg),
		DownloadTokenTTL: cfg.Cache.DownloadTokenTTL,
		LeaderboardSize:  cfg.Triage.LeaderboardSize,
	})
}

func provideBackfiller(cfg config.Config, repo ports.TriageRepository, lookup ports.CommitLookup, svc *triage.Service) *enrich.Backfiller {
	return enrich.NewBackfiller(repo, lookup, svc, enrich.Options{
		Repo:      repoRef(cfg),
		BatchSize: cfg.GitHub.BatchSize,
	})
}

type appParams struct {
	fx.In

	Config   config.Config
	Logger   *slog.Logger
	DB       *gorm.DB
	Users    ports.UserDirectory
	Triage   *triage.Service
	Transfer *transfer.Service
	Backfill *enrich.Backfiller
}

func provideApp(p appParams) *App {
	return &App{
		Config:   p.Config,
		Logger:   p.Logger,
		DB:       p.DB,
		Users:    p.Users,
		Triage:   p.Triage,
		Transfer: p.Transfer,
		Backfill: p.Backfill,
	}
}

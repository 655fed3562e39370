package bootstrap

import (
	"context"
	"errors"
	"testing"

	"patchtriage/internal/bootstrap/config"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/infrastructure/persistence/gormdb/repository"
	"patchtriage/internal/infrastructure/persistence/gormdb/testdb"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	db := testdb.SQLite(t)
	return &App{
		Config: config.Config{Triage: config.TriageConfig{SystemUserEmail: "system@patchtriage.local"}},
		DB:     db,
		Users:  repository.NewUserRepository(db),
	}
}

func TestActorCreatesSystemUserOnce(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	first, err := app.Actor(ctx, "")
	if err != nil {
		t.Fatalf("Actor(blank) error = %v", err)
	}
	if !first.Admin || first.Username != "system" {
		t.Fatalf("system user = %+v", first)
	}

	second, err := app.Actor(ctx, "  ")
	if err != nil {
		t.Fatalf("Actor(blank) second call error = %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("system user id = %d, want %d", second.ID, first.ID)
	}
}

func TestActorResolvesIDAndEmail(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	user, err := app.Users.CreateUser(ctx, domain.User{Username: "reviewer", Email: "reviewer@example.com"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	byEmail, err := app.Actor(ctx, "Reviewer@Example.com")
	if err != nil || byEmail.ID != user.ID {
		t.Fatalf("Actor(email) = %+v, %v", byEmail, err)
	}
	byID, err := app.Actor(ctx, "1")
	if err != nil || byID.ID != user.ID {
		t.Fatalf("Actor(id) = %+v, %v", byID, err)
	}
	if _, err := app.Actor(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Actor(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestInitSchemaIsRepeatable(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 2; i++ {
		if err := app.InitSchema(context.Background()); err != nil {
			t.Fatalf("InitSchema() run %d error = %v", i+1, err)
		}
	}
}

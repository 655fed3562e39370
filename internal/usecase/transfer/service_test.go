package transfer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/infrastructure/persistence/gormdb/repository"
	"patchtriage/internal/infrastructure/persistence/gormdb/testdb"
	"patchtriage/internal/infrastructure/persistence/gormdb/uow"
)

type store struct {
	svc   *Service
	repo  *repository.TriageRepository
	users *repository.UserRepository
}

func newStore(t *testing.T) *store {
	t.Helper()
	db := testdb.SQLite(t)
	repo := repository.NewTriageRepository(db)
	users := repository.NewUserRepository(db)
	return &store{svc: NewService(repo, users, uow.NewUnitOfWork(db)), repo: repo, users: users}
}

func daysAgo(n int) time.Time {
	return time.Now().UTC().Add(-time.Duration(n) * 24 * time.Hour).Truncate(time.Second)
}

type fixture struct {
	reviewer1, reviewer2, committer, resolver domain.User
	patch1, patch2                            domain.Patch
}

func seed(t *testing.T, s *store) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture

	mkUser := func(name string) domain.User {
		u, err := s.users.CreateUser(ctx, domain.User{Username: name, Email: name + "@example.com"})
		require.NoError(t, err)
		return u
	}
	f.reviewer1 = mkUser("reviewer_one")
	f.reviewer2 = mkUser("reviewer_two")
	f.committer = mkUser("committer_user")
	f.resolver = mkUser("resolver_user")

	email, name, login := "dev@github.com", "Dev User", "devuser"
	githubID := int64(12345)
	var err error
	f.patch1, err = s.repo.CreatePatch(ctx, domain.Patch{
		CommitHash:              "abc1234567890",
		Title:                   "Fix security issue",
		Summary:                 "Important security fix",
		MarkdownContent:         "# Security Fix\n\nDetails here",
		DiffContent:             "diff --git a/file.rb",
		IssueType:               domain.IssueTypeSecurity,
		Repository:              "discourse (main)",
		Active:                  true,
		CommitterEmail:          &email,
		CommitterName:           &name,
		CommitterGitHubUsername: &login,
		CommitterGitHubID:       &githubID,
		CommitterUserID:         &f.committer.ID,
		CreatedAt:               daysAgo(20),
		UpdatedAt:               daysAgo(15),
	})
	require.NoError(t, err)

	resolvedAt := daysAgo(3)
	f.patch2, err = s.repo.CreatePatch(ctx, domain.Patch{
		CommitHash:             "def7890123456",
		Title:                  "Bug fix for login",
		Summary:                "Fixes login redirect",
		IssueType:              domain.IssueTypeBug,
		Repository:             "discourse-ai",
		Active:                 false,
		ResolvedAt:             &resolvedAt,
		ResolvedByID:           &f.resolver.ID,
		ResolutionStatus:       domain.ResolutionFixed,
		ResolutionNotes:        "Fixed in PR #999",
		ResolutionChangesetURL: "https://github.com/discourse/discourse/pull/999",
		CreatedAt:              daysAgo(18),
		UpdatedAt:              daysAgo(12),
	})
	require.NoError(t, err)

	for _, r := range []domain.Rating{
		{PatchID: f.patch1.ID, UserID: f.reviewer1.ID, IsUseful: true, CreatedAt: daysAgo(10), UpdatedAt: daysAgo(10)},
		{PatchID: f.patch1.ID, UserID: f.reviewer2.ID, IsUseful: false, CreatedAt: daysAgo(9), UpdatedAt: daysAgo(9)},
		{PatchID: f.patch2.ID, UserID: f.reviewer1.ID, IsUseful: true, CreatedAt: daysAgo(8), UpdatedAt: daysAgo(8)},
	} {
		_, err := s.repo.CreateRating(ctx, r)
		require.NoError(t, err)
	}
	require.NoError(t, s.repo.RecountPatch(ctx, f.patch1.ID))
	require.NoError(t, s.repo.RecountPatch(ctx, f.patch2.ID))

	_, err = s.repo.CreateClaim(ctx, domain.Claim{PatchID: f.patch1.ID, UserID: f.reviewer1.ID, Notes: "Working on review", CreatedAt: daysAgo(7), UpdatedAt: daysAgo(7)})
	require.NoError(t, err)

	for _, l := range []domain.ClaimLog{
		{PatchID: f.patch1.ID, UserID: f.reviewer1.ID, Action: domain.ClaimActionClaimed, Notes: "Starting review", CreatedAt: daysAgo(6)},
		{PatchID: f.patch1.ID, UserID: f.reviewer2.ID, Action: domain.ClaimActionClaimed, Notes: "Also reviewing", CreatedAt: daysAgo(5)},
		{PatchID: f.patch1.ID, UserID: f.reviewer2.ID, Action: domain.ClaimActionUnclaimed, Notes: "Done", CreatedAt: daysAgo(4)},
	} {
		_, err := s.repo.AppendClaimLog(ctx, l)
		require.NoError(t, err)
	}
	return f
}

func readDocument(t *testing.T, path string) Document {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := newStore(t)
	f := seed(t, source)
	path := filepath.Join(t.TempDir(), "export.json")

	counts, err := source.svc.Export(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, Counts{Patches: 2, PatchRatings: 3, PatchClaims: 1, PatchClaimLogs: 3}, counts)

	doc := readDocument(t, path)
	assert.Equal(t, counts, doc.Counts)
	assert.Len(t, doc.Users, 4)

	target := newStore(t)
	result, err := target.svc.Import(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 4, result.UsersStaged)
	assert.Equal(t, 2, result.PatchesCreated)
	assert.Equal(t, 3, result.RatingsCreated)
	assert.Equal(t, 1, result.ClaimsCreated)
	assert.Equal(t, 3, result.ClaimLogsInserted)

	patches, err := target.repo.ListAllPatches(ctx)
	require.NoError(t, err)
	require.Len(t, patches, 2)

	got1, err := target.repo.FindPatchByHash(ctx, "abc1234567890")
	require.NoError(t, err)
	assert.Equal(t, "Fix security issue", got1.Title)
	assert.Equal(t, "Important security fix", got1.Summary)
	assert.Equal(t, domain.IssueTypeSecurity, got1.IssueType)
	assert.Equal(t, 1, got1.UsefulCount)
	assert.Equal(t, 1, got1.NotUsefulCount)
	require.NotNil(t, got1.CommitterGitHubID)
	assert.Equal(t, int64(12345), *got1.CommitterGitHubID)
	assert.WithinDuration(t, f.patch1.CreatedAt, got1.CreatedAt, time.Second)
	assert.WithinDuration(t, f.patch1.UpdatedAt, got1.UpdatedAt, time.Second)

	require.NotNil(t, got1.CommitterUserID)
	committer, err := target.users.GetUser(ctx, *got1.CommitterUserID)
	require.NoError(t, err)
	assert.Equal(t, f.committer.Email, committer.Email)
	assert.True(t, committer.Staged)

	got2, err := target.repo.FindPatchByHash(ctx, "def7890123456")
	require.NoError(t, err)
	assert.True(t, got2.Resolved())
	assert.False(t, got2.Active)
	assert.Equal(t, domain.ResolutionFixed, got2.ResolutionStatus)
	assert.Equal(t, "https://github.com/discourse/discourse/pull/999", got2.ResolutionChangesetURL)
	require.NotNil(t, got2.ResolvedByID)
	resolver, err := target.users.GetUser(ctx, *got2.ResolvedByID)
	require.NoError(t, err)
	assert.Equal(t, f.resolver.Email, resolver.Email)

	reviewer1, err := target.users.FindUserByEmail(ctx, f.reviewer1.Email)
	require.NoError(t, err)
	rating, err := target.repo.GetRating(ctx, got1.ID, reviewer1.ID)
	require.NoError(t, err)
	assert.True(t, rating.IsUseful)
	assert.WithinDuration(t, daysAgo(10), rating.CreatedAt, time.Second)

	claims, err := target.repo.ListClaims(ctx, got1.ID)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "Working on review", claims[0].Notes)
	assert.WithinDuration(t, daysAgo(7), claims[0].CreatedAt, time.Second)

	logs, err := target.repo.ListClaimLogs(ctx, got1.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, s)
	path := filepath.Join(t.TempDir(), "export.json")

	_, err := s.svc.Export(ctx, path)
	require.NoError(t, err)

	for run := 0; run < 2; run++ {
		result, err := s.svc.Import(ctx, path)
		require.NoError(t, err)
		assert.Zero(t, result.UsersStaged)
		assert.Zero(t, result.PatchesCreated)
		assert.Equal(t, 2, result.PatchesUpdated)
		assert.Zero(t, result.RatingsCreated)
		assert.Zero(t, result.ClaimsCreated)
		assert.Zero(t, result.ClaimLogsInserted)
		assert.Equal(t, 3, result.ClaimLogsSkipped)
	}

	logs, err := s.repo.ListAllClaimLogs(ctx)
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	got, err := s.repo.GetPatch(ctx, f.patch1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix security issue", got.Title)
	assert.Equal(t, 1, got.UsefulCount)
}

func TestImportReassertsExportedRating(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, s)
	path := filepath.Join(t.TempDir(), "export.json")

	_, err := s.svc.Export(ctx, path)
	require.NoError(t, err)

	rating, err := s.repo.GetRating(ctx, f.patch1.ID, f.reviewer1.ID)
	require.NoError(t, err)
	changed, err := s.repo.FlipRating(ctx, rating.ID, false, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, s.repo.RecountPatch(ctx, f.patch1.ID))

	_, err = s.svc.Import(ctx, path)
	require.NoError(t, err)

	rating, err = s.repo.GetRating(ctx, f.patch1.ID, f.reviewer1.ID)
	require.NoError(t, err)
	assert.True(t, rating.IsUseful)

	got, err := s.repo.GetPatch(ctx, f.patch1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsefulCount)
	assert.Equal(t, 1, got.NotUsefulCount)
}

func TestImportMatchesExistingUsersByEmail(t *testing.T) {
	ctx := context.Background()
	source := newStore(t)
	f := seed(t, source)
	path := filepath.Join(t.TempDir(), "export.json")
	_, err := source.svc.Export(ctx, path)
	require.NoError(t, err)

	target := newStore(t)
	existing, err := target.users.CreateUser(ctx, domain.User{Username: "someone", Email: f.reviewer1.Email})
	require.NoError(t, err)

	result, err := target.svc.Import(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, result.UsersStaged)

	got, err := target.repo.FindPatchByHash(ctx, "abc1234567890")
	require.NoError(t, err)
	_, err = target.repo.GetRating(ctx, got.ID, existing.ID)
	assert.NoError(t, err)

	staged, err := target.users.FindUserByEmail(ctx, f.reviewer2.Email)
	require.NoError(t, err)
	assert.True(t, staged.Staged)
	assert.NotEqual(t, f.reviewer2.Username, staged.Username)
}

func TestExportCreatesNestedDirectories(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	path := filepath.Join(t.TempDir(), "a", "b", "c", "export.json")

	counts, err := s.svc.Export(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)

	doc := readDocument(t, path)
	assert.Equal(t, 0, doc.Counts.Patches)
	assert.Empty(t, doc.Users)
	assert.Equal(t, documentVersion, doc.Version)
}

func TestImportMissingFileIsFatal(t *testing.T) {
	s := newStore(t)
	_, err := s.svc.Import(context.Background(), filepath.Join(t.TempDir(), "nonexistent.json"))
	assert.ErrorIs(t, err, domain.ErrImportSourceMissing)
}

func TestImportRejectsInconsistentDocument(t *testing.T) {
	s := newStore(t)
	path := filepath.Join(t.TempDir(), "bad.json")

	data, err := json.Marshal(Document{Version: documentVersion, Counts: Counts{Patches: 3}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = s.svc.Import(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrImportInvalid)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = s.svc.Import(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrImportInvalid)
}

func TestImportRollsBackOnUnknownUserReference(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()

	_, err := s.svc.Apply(ctx, Document{
		Version: documentVersion,
		Counts:  Counts{Patches: 1, PatchRatings: 1},
		Patches: []PatchRecord{{CommitHash: "abc1234", Title: "t", Active: true, CreatedAt: now, UpdatedAt: now}},
		Ratings: []RatingRecord{{CommitHash: "abc1234", UserID: 77, IsUseful: true, CreatedAt: now, UpdatedAt: now}},
	})
	assert.ErrorIs(t, err, domain.ErrImportInvalid)

	patches, err := s.repo.ListAllPatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, patches)
}

func TestStagedUsername(t *testing.T) {
	name := stagedUsername("Jane.Doe+test@Example.com")
	assert.Regexp(t, `^jane\.doe_test_[0-9a-f]{8}$`, name)
	assert.NotEqual(t, name, stagedUsername("Jane.Doe+test@Example.com"))
	assert.Regexp(t, `^user_[0-9a-f]{8}$`, stagedUsername("@example.com"))
}

// hookedRepo runs afterPatches once the patch table has been read.
type hookedRepo struct {
	*repository.TriageRepository
	afterPatches func()
	dropPatch    uint64
}

func (r hookedRepo) ListAllPatches(ctx context.Context) ([]domain.Patch, error) {
	patches, err := r.TriageRepository.ListAllPatches(ctx)
	if err != nil {
		return nil, err
	}
	if r.afterPatches != nil {
		r.afterPatches()
	}
	kept := patches[:0]
	for _, p := range patches {
		if p.ID != r.dropPatch {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func TestExportIgnoresWritesCommittedDuringExport(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "triage.sqlite")
	reader := testdb.SQLiteFile(t, dsn)
	writer := repository.NewTriageRepository(testdb.SQLiteFile(t, dsn))

	s := &store{repo: repository.NewTriageRepository(reader), users: repository.NewUserRepository(reader)}
	f := seed(t, s)

	var lateErr error
	repo := hookedRepo{TriageRepository: s.repo, afterPatches: func() {
		now := time.Now().UTC()
		p, err := writer.CreatePatch(ctx, domain.Patch{CommitHash: "fedcba9876543", Title: "Late", Active: true, CreatedAt: now, UpdatedAt: now})
		if err != nil {
			lateErr = err
			return
		}
		_, lateErr = writer.CreateRating(ctx, domain.Rating{PatchID: p.ID, UserID: f.reviewer2.ID, IsUseful: true, CreatedAt: now, UpdatedAt: now})
	}}

	doc, err := NewService(repo, s.users, uow.NewUnitOfWork(reader)).Build(ctx)
	require.NoError(t, err)
	require.NoError(t, lateErr)
	assert.Len(t, doc.Patches, 2)
	assert.Len(t, doc.Ratings, 3)
	for _, r := range doc.Ratings {
		assert.NotEmpty(t, r.CommitHash)
	}

	next, err := NewService(s.repo, s.users, uow.NewUnitOfWork(reader)).Build(ctx)
	require.NoError(t, err)
	assert.Len(t, next.Patches, 3)
	assert.Len(t, next.Ratings, 4)
}

func TestExportFailsOnRecordWithoutPatch(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	f := seed(t, s)
	path := filepath.Join(t.TempDir(), "export.json")

	svc := NewService(hookedRepo{TriageRepository: s.repo, dropPatch: f.patch1.ID}, s.users, s.svc.uow)
	_, err := svc.Export(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the export")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file is written for a broken snapshot")
}

package triage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/infrastructure/cache"
	"patchtriage/internal/infrastructure/persistence/gormdb/repository"
	"patchtriage/internal/infrastructure/persistence/gormdb/testdb"
	"patchtriage/internal/infrastructure/persistence/gormdb/uow"
	"patchtriage/internal/ports"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []ports.TriageEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event ports.TriageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

type testEnv struct {
	svc       *Service
	db        *gorm.DB
	repo      *repository.TriageRepository
	users     *repository.UserRepository
	publisher *recordingPublisher
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	return setupServiceWithRepo(t, nil)
}

// setupServiceWithRepo lets a test wrap the real repository to inject failures.
func setupServiceWithRepo(t *testing.T, wrap func(ports.TriageRepository) ports.TriageRepository) *testEnv {
	t.Helper()

	db := testdb.SQLite(t)
	repo := repository.NewTriageRepository(db)
	users := repository.NewUserRepository(db)
	publisher := &recordingPublisher{}

	var svcRepo ports.TriageRepository = repo
	if wrap != nil {
		svcRepo = wrap(repo)
	}

	svc := NewService(svcRepo, users, uow.NewUnitOfWork(db), cache.NewDatabaseCache(db), publisher, Options{
		Random: func(int64) int64 { return 0 },
	})
	return &testEnv{svc: svc, db: db, repo: repo, users: users, publisher: publisher}
}

func strPtr(v string) *string { return &v }

func (e *testEnv) createPatch(t *testing.T, hash string) domain.Patch {
	t.Helper()
	p, err := e.svc.CreatePatch(context.Background(), PatchInput{
		CommitHash: strPtr(hash),
		Title:      strPtr("Patch " + hash),
	})
	if err != nil {
		t.Fatalf("CreatePatch(%s) error = %v", hash, err)
	}
	return p
}

func (e *testEnv) createUser(t *testing.T, name string, admin bool) domain.User {
	t.Helper()
	u, err := e.users.CreateUser(context.Background(), domain.User{
		Username: name,
		Email:    name + "@example.com",
		Admin:    admin,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s) error = %v", name, err)
	}
	return u
}

func (e *testEnv) counters(t *testing.T, patchID uint64) (int, int) {
	t.Helper()
	p, err := e.repo.GetPatch(context.Background(), patchID)
	if err != nil {
		t.Fatalf("GetPatch() error = %v", err)
	}
	return p.UsefulCount, p.NotUsefulCount
}

func TestCreatePatchNormalizesAndValidates(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	p, err := env.svc.CreatePatch(ctx, PatchInput{
		CommitHash: strPtr("  ABCDEF1234 "),
		Title:      strPtr("  Fix XSS  "),
		IssueType:  strPtr("Security"),
	})
	if err != nil {
		t.Fatalf("CreatePatch() error = %v", err)
	}
	if p.CommitHash != "abcdef1234" || p.Title != "Fix XSS" || p.IssueType != domain.IssueTypeSecurity || !p.Active {
		t.Fatalf("CreatePatch() = %+v", p)
	}

	_, err = env.svc.CreatePatch(ctx, PatchInput{CommitHash: strPtr("xyz"), IssueType: strPtr("chore")})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("CreatePatch(invalid) error = %v, want ValidationError", err)
	}
	for _, field := range []string{"commit_hash", "title", "issue_type"} {
		if !verr.Has(field) {
			t.Fatalf("ValidationError missing %s: %v", field, verr)
		}
	}

	_, err = env.svc.CreatePatch(ctx, PatchInput{CommitHash: strPtr("abcdef1234"), Title: strPtr("dup")})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("CreatePatch(duplicate) error = %v, want ErrDuplicate", err)
	}
}

func TestUpdatePatchKeepsCountersAndResolution(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	u := env.createUser(t, "alice", false)

	if _, err := env.svc.Vote(ctx, VoteInput{PatchID: p.ID, UserID: u.ID, IsUseful: true}); err != nil {
		t.Fatalf("Vote() error = %v", err)
	}

	updated, err := env.svc.UpdatePatch(ctx, p.ID, PatchInput{Summary: strPtr("new summary")})
	if err != nil {
		t.Fatalf("UpdatePatch() error = %v", err)
	}
	if updated.Summary != "new summary" || updated.Title != p.Title || updated.UsefulCount != 1 {
		t.Fatalf("UpdatePatch() = %+v", updated)
	}

	if _, err := env.svc.UpdatePatch(ctx, p.ID, PatchInput{Title: strPtr(" ")}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("UpdatePatch(blank title) error = %v, want ErrValidation", err)
	}
	if _, err := env.svc.UpdatePatch(ctx, 999, PatchInput{Title: strPtr("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdatePatch(missing) error = %v, want ErrNotFound", err)
	}
}

func TestVoteScenario(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	u1 := env.createUser(t, "u1", false)
	u2 := env.createUser(t, "u2", false)

	steps := []struct {
		user          uint64
		useful        bool
		wantUseful    int
		wantNotUseful int
	}{
		{user: u1.ID, useful: true, wantUseful: 1, wantNotUseful: 0},
		{user: u1.ID, useful: true, wantUseful: 1, wantNotUseful: 0},
		{user: u1.ID, useful: false, wantUseful: 0, wantNotUseful: 1},
		{user: u2.ID, useful: true, wantUseful: 1, wantNotUseful: 1},
	}
	for i, step := range steps {
		if _, err := env.svc.Vote(ctx, VoteInput{PatchID: p.ID, UserID: step.user, IsUseful: step.useful}); err != nil {
			t.Fatalf("step %d: Vote() error = %v", i, err)
		}
		useful, notUseful := env.counters(t, p.ID)
		if useful != step.wantUseful || notUseful != step.wantNotUseful {
			t.Fatalf("step %d: counters = %d/%d, want %d/%d", i, useful, notUseful, step.wantUseful, step.wantNotUseful)
		}
	}

	got, err := env.svc.UserRating(ctx, p.ID, u1.ID)
	if err != nil || got.IsUseful {
		t.Fatalf("UserRating() = %+v, %v", got, err)
	}
	rated, err := env.svc.RatedBy(ctx, p.ID, u2.ID)
	if err != nil || !rated {
		t.Fatalf("RatedBy() = %v, %v", rated, err)
	}

	updated, err := env.svc.GetPatch(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPatch() error = %v", err)
	}
	if updated.UsefulRatio() != 50.0 {
		t.Fatalf("UsefulRatio() = %v, want 50", updated.UsefulRatio())
	}
	if n := len(env.publisher.actions()); n != 4 {
		t.Fatalf("published %d events, want 4", n)
	}
}

func TestConcurrentVotesKeepCountersExact(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")

	const voters = 12
	userIDs := make([]uint64, 0, voters)
	for i := 0; i < voters; i++ {
		userIDs = append(userIDs, env.createUser(t, fmt.Sprintf("voter%d", i), false).ID)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, voters*2)
	for i, id := range userIDs {
		wg.Add(1)
		go func(userID uint64, useful bool) {
			defer wg.Done()
			_, err := env.svc.Vote(ctx, VoteInput{PatchID: p.ID, UserID: userID, IsUseful: useful})
			errCh <- err
			// The same user double-submitting must not double count.
			_, err = env.svc.Vote(ctx, VoteInput{PatchID: p.ID, UserID: userID, IsUseful: useful})
			errCh <- err
		}(id, i%3 != 0)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("Vote() error = %v", err)
		}
	}

	useful, notUseful := env.counters(t, p.ID)
	if useful != 8 || notUseful != 4 {
		t.Fatalf("counters = %d/%d, want 8/4", useful, notUseful)
	}
}

// staleRatingRepo answers the next GetRating calls with the opposite vote,
// as if another request flipped the rating after it was read.
type staleRatingRepo struct {
	ports.TriageRepository
	staleReads *int
}

func (r staleRatingRepo) GetRating(ctx context.Context, patchID uint64, userID uint64) (domain.Rating, error) {
	rating, err := r.TriageRepository.GetRating(ctx, patchID, userID)
	if err == nil && *r.staleReads > 0 {
		*r.staleReads--
		rating.IsUseful = !rating.IsUseful
	}
	return rating, err
}

func TestVoteReturnsStoredRatingWhenFlipAlreadyApplied(t *testing.T) {
	staleReads := 0
	env := setupServiceWithRepo(t, func(repo ports.TriageRepository) ports.TriageRepository {
		return staleRatingRepo{TriageRepository: repo, staleReads: &staleReads}
	})
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	u := env.createUser(t, "u1", false)

	if _, err := env.svc.Vote(ctx, VoteInput{PatchID: p.ID, UserID: u.ID, IsUseful: true}); err != nil {
		t.Fatalf("Vote() error = %v", err)
	}

	staleReads = 1
	rating, err := env.svc.Vote(ctx, VoteInput{PatchID: p.ID, UserID: u.ID, IsUseful: true})
	if err != nil {
		t.Fatalf("Vote(stale) error = %v", err)
	}
	if !rating.IsUseful {
		t.Fatalf("Vote(stale) returned IsUseful = false, stored value is true")
	}
	if useful, notUseful := env.counters(t, p.ID); useful != 1 || notUseful != 0 {
		t.Fatalf("counters = %d/%d, want 1/0", useful, notUseful)
	}
}

func TestVoteRejectsInactivePatch(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	u := env.createUser(t, "alice", false)

	active, err := env.svc.TogglePatchActive(ctx, p.ID)
	if err != nil || active {
		t.Fatalf("TogglePatchActive() = %v, %v", active, err)
	}

	if _, err := env.svc.Vote(ctx, VoteInput{PatchID: p.ID, UserID: u.ID, IsUseful: true}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Vote(inactive) error = %v, want ErrNotFound", err)
	}
}

func TestResolveReleasesAllClaims(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	u1 := env.createUser(t, "u1", false)
	u2 := env.createUser(t, "u2", false)
	admin := env.createUser(t, "admin", true)

	for _, u := range []domain.User{u1, u2} {
		if _, err := env.svc.ClaimPatch(ctx, ClaimInput{PatchID: p.ID, UserID: u.ID, Notes: "on it"}); err != nil {
			t.Fatalf("ClaimPatch() error = %v", err)
		}
	}

	resolved, err := env.svc.ResolvePatch(ctx, ResolveInput{
		PatchID:      p.ID,
		Status:       "invalid",
		Notes:        "not reproducible",
		ChangesetURL: "https://github.com/discourse/discourse/pull/1",
		ResolvedBy:   admin.ID,
	})
	if err != nil {
		t.Fatalf("ResolvePatch() error = %v", err)
	}
	if !resolved.Resolved() || resolved.ResolutionChangesetURL != "" {
		t.Fatalf("ResolvePatch() = %+v", resolved)
	}

	stored, err := env.svc.GetPatch(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPatch() error = %v", err)
	}
	if !stored.Resolved() || stored.ResolutionStatus != domain.ResolutionInvalid || stored.ResolvedByID == nil || *stored.ResolvedByID != admin.ID {
		t.Fatalf("stored patch = %+v", stored)
	}
	if stored.ResolutionChangesetURL != "" {
		t.Fatalf("changeset url = %q, want empty", stored.ResolutionChangesetURL)
	}

	claims, err := env.svc.ListClaims(ctx, p.ID)
	if err != nil || len(claims) != 0 {
		t.Fatalf("ListClaims() = %v, %v", claims, err)
	}

	logs, err := env.svc.ClaimHistory(ctx, p.ID)
	if err != nil {
		t.Fatalf("ClaimHistory() error = %v", err)
	}
	var unclaimed int
	for _, entry := range logs {
		if entry.Action == domain.ClaimActionUnclaimed {
			unclaimed++
			if entry.Notes != "auto: patch resolved as invalid" {
				t.Fatalf("unclaim note = %q", entry.Notes)
			}
		}
	}
	if len(logs) != 4 || unclaimed != 2 {
		t.Fatalf("claim logs = %d (unclaimed %d), want 4 (2)", len(logs), unclaimed)
	}

	if _, err := env.svc.ClaimPatch(ctx, ClaimInput{PatchID: p.ID, UserID: u1.ID}); !errors.Is(err, domain.ErrPatchResolved) {
		t.Fatalf("ClaimPatch(resolved) error = %v, want ErrPatchResolved", err)
	}
}

func TestResolveRejectsUnsafeChangesetURL(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	u := env.createUser(t, "u1", false)

	if _, err := env.svc.ClaimPatch(ctx, ClaimInput{PatchID: p.ID, UserID: u.ID}); err != nil {
		t.Fatalf("ClaimPatch() error = %v", err)
	}

	got, err := env.svc.ResolvePatch(ctx, ResolveInput{
		PatchID:      p.ID,
		Status:       "fixed",
		ChangesetURL: "javascript:alert(1)",
		ResolvedBy:   u.ID,
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || !verr.Has("resolution_changeset_url") {
		t.Fatalf("ResolvePatch() error = %v, want changeset url validation error", err)
	}
	if got.ID != p.ID || got.Resolved() || got.ResolutionStatus != "" {
		t.Fatalf("ResolvePatch() returned %+v, want the unchanged patch", got)
	}

	stored, _ := env.svc.GetPatch(ctx, p.ID)
	if stored.ResolutionStatus != "" {
		t.Fatalf("resolution_status = %q, want empty", stored.ResolutionStatus)
	}
	claimed, err := env.svc.ClaimedBy(ctx, p.ID, u.ID)
	if err != nil || !claimed {
		t.Fatalf("ClaimedBy() = %v, %v", claimed, err)
	}
	logs, _ := env.svc.ClaimHistory(ctx, p.ID)
	if len(logs) != 1 {
		t.Fatalf("claim logs = %d, want 1", len(logs))
	}
}

// failingLogRepo fails audit writes for one action.
type failingLogRepo struct {
	ports.TriageRepository
	action domain.ClaimAction
}

func (r failingLogRepo) AppendClaimLog(ctx context.Context, entry domain.ClaimLog) (domain.ClaimLog, error) {
	if entry.Action == r.action {
		return domain.ClaimLog{}, errors.New("disk I/O error")
	}
	return r.TriageRepository.AppendClaimLog(ctx, entry)
}

func TestClaimRollsBackWhenLogWriteFails(t *testing.T) {
	env := setupServiceWithRepo(t, func(repo ports.TriageRepository) ports.TriageRepository {
		return failingLogRepo{TriageRepository: repo, action: domain.ClaimActionClaimed}
	})
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	u := env.createUser(t, "u1", false)

	_, err := env.svc.ClaimPatch(ctx, ClaimInput{PatchID: p.ID, UserID: u.ID})
	if !errors.Is(err, domain.ErrTransaction) {
		t.Fatalf("ClaimPatch() error = %v, want ErrTransaction", err)
	}

	claimed, err := env.repo.HasClaim(ctx, p.ID, u.ID)
	if err != nil || claimed {
		t.Fatalf("HasClaim() = %v, %v; want rolled back", claimed, err)
	}
	if n := len(env.publisher.actions()); n != 0 {
		t.Fatalf("published %d events after rollback", n)
	}
}

func TestResolveRollsBackWhenUnclaimLogFails(t *testing.T) {
	env := setupServiceWithRepo(t, func(repo ports.TriageRepository) ports.TriageRepository {
		return failingLogRepo{TriageRepository: repo, action: domain.ClaimActionUnclaimed}
	})
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	u := env.createUser(t, "u1", false)

	if _, err := env.svc.ClaimPatch(ctx, ClaimInput{PatchID: p.ID, UserID: u.ID}); err != nil {
		t.Fatalf("ClaimPatch() error = %v", err)
	}

	_, err := env.svc.ResolvePatch(ctx, ResolveInput{PatchID: p.ID, Status: "invalid", ResolvedBy: u.ID})
	var txErr *domain.TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("ResolvePatch() error = %v, want TransactionError", err)
	}

	stored, _ := env.repo.GetPatch(ctx, p.ID)
	if stored.Resolved() {
		t.Fatalf("patch resolved despite rollback")
	}
	claimed, _ := env.repo.HasClaim(ctx, p.ID, u.ID)
	if !claimed {
		t.Fatalf("claim removed despite rollback")
	}
}

func TestClaimAndUnclaim(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	u := env.createUser(t, "u1", false)

	if _, err := env.svc.ClaimPatch(ctx, ClaimInput{PatchID: p.ID, UserID: u.ID, Notes: "  reviewing "}); err != nil {
		t.Fatalf("ClaimPatch() error = %v", err)
	}
	if _, err := env.svc.ClaimPatch(ctx, ClaimInput{PatchID: p.ID, UserID: u.ID}); !errors.Is(err, domain.ErrDuplicateClaim) {
		t.Fatalf("ClaimPatch(again) error = %v, want ErrDuplicateClaim", err)
	}

	removed, err := env.svc.UnclaimPatch(ctx, ClaimInput{PatchID: p.ID, UserID: u.ID})
	if err != nil || !removed {
		t.Fatalf("UnclaimPatch() = %v, %v", removed, err)
	}
	removed, err = env.svc.UnclaimPatch(ctx, ClaimInput{PatchID: p.ID, UserID: u.ID})
	if err != nil || removed {
		t.Fatalf("UnclaimPatch(again) = %v, %v", removed, err)
	}

	logs, _ := env.svc.ClaimHistory(ctx, p.ID)
	if len(logs) != 2 || logs[0].Action != domain.ClaimActionClaimed || logs[0].Notes != "reviewing" || logs[1].Action != domain.ClaimActionUnclaimed {
		t.Fatalf("claim logs = %+v", logs)
	}
	if got := strings.Join(env.publisher.actions(), ","); got != "claimed,unclaimed" {
		t.Fatalf("published actions = %s", got)
	}
}

func TestUnresolveClearsResolution(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	admin := env.createUser(t, "admin", true)

	if _, err := env.svc.ResolvePatch(ctx, ResolveInput{
		PatchID:      p.ID,
		Status:       "FIXED",
		ChangesetURL: "https://github.com/discourse/discourse/pull/2",
		ResolvedBy:   admin.ID,
	}); err != nil {
		t.Fatalf("ResolvePatch() error = %v", err)
	}

	got, err := env.svc.UnresolvePatch(ctx, p.ID, admin.ID)
	if err != nil {
		t.Fatalf("UnresolvePatch() error = %v", err)
	}
	stored, _ := env.svc.GetPatch(ctx, p.ID)
	for _, patch := range []domain.Patch{got, stored} {
		if patch.Resolved() || patch.ResolvedByID != nil || patch.ResolutionStatus != "" || patch.ResolutionChangesetURL != "" {
			t.Fatalf("patch still resolved: %+v", patch)
		}
	}
}

func TestRandomUnratedFor(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	u := env.createUser(t, "u1", false)
	admin := env.createUser(t, "admin", true)

	p1 := env.createPatch(t, "aaa1111")
	p2 := env.createPatch(t, "bbb2222")
	p3 := env.createPatch(t, "ccc3333")
	p4 := env.createPatch(t, "ddd4444")

	if err := env.svc.SetPatchActive(ctx, p3.ID, false); err != nil {
		t.Fatalf("SetPatchActive() error = %v", err)
	}
	if _, err := env.svc.ResolvePatch(ctx, ResolveInput{PatchID: p4.ID, Status: "invalid", ResolvedBy: admin.ID}); err != nil {
		t.Fatalf("ResolvePatch() error = %v", err)
	}

	got, found, err := env.svc.RandomUnratedFor(ctx, u.ID, SelectionScope{})
	if err != nil || !found || got.ID != p1.ID {
		t.Fatalf("RandomUnratedFor() = %d, %v, %v; want %d", got.ID, found, err, p1.ID)
	}

	if _, err := env.svc.Vote(ctx, VoteInput{PatchID: p1.ID, UserID: u.ID, IsUseful: true}); err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	got, found, err = env.svc.RandomUnratedFor(ctx, u.ID, SelectionScope{})
	if err != nil || !found || got.ID != p2.ID {
		t.Fatalf("RandomUnratedFor() = %d, %v, %v; want %d", got.ID, found, err, p2.ID)
	}

	if _, err := env.svc.Vote(ctx, VoteInput{PatchID: p2.ID, UserID: u.ID, IsUseful: false}); err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	_, found, err = env.svc.RandomUnratedFor(ctx, u.ID, SelectionScope{})
	if err != nil || found {
		t.Fatalf("RandomUnratedFor() found = %v, err = %v; want none", found, err)
	}

	got, found, err = env.svc.RandomUnratedFor(ctx, u.ID, SelectionScope{IncludeResolved: true})
	if err != nil || !found || got.ID != p4.ID {
		t.Fatalf("RandomUnratedFor(include resolved) = %d, %v, %v; want %d", got.ID, found, err, p4.ID)
	}
}

func TestRandomUnratedForUsesOffset(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	env.svc.random = func(n int64) int64 { return n - 1 }

	env.createPatch(t, "aaa1111")
	last := env.createPatch(t, "bbb2222")

	got, found, err := env.svc.RandomUnratedFor(ctx, 42, SelectionScope{})
	if err != nil || !found || got.ID != last.ID {
		t.Fatalf("RandomUnratedFor() = %d, %v, %v; want %d", got.ID, found, err, last.ID)
	}
}

func TestRecountAllIsIdempotent(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p1 := env.createPatch(t, "aaa1111")
	p2 := env.createPatch(t, "bbb2222")
	u1 := env.createUser(t, "u1", false)
	u2 := env.createUser(t, "u2", false)

	for _, v := range []VoteInput{
		{PatchID: p1.ID, UserID: u1.ID, IsUseful: true},
		{PatchID: p1.ID, UserID: u2.ID, IsUseful: false},
		{PatchID: p2.ID, UserID: u1.ID, IsUseful: true},
	} {
		if _, err := env.svc.Vote(ctx, v); err != nil {
			t.Fatalf("Vote() error = %v", err)
		}
	}
	if err := env.repo.SetVoteCounters(ctx, p1.ID, 9, 9); err != nil {
		t.Fatalf("SetVoteCounters() error = %v", err)
	}

	for run := 0; run < 2; run++ {
		processed, err := env.svc.RecountAll(ctx)
		if err != nil || processed != 2 {
			t.Fatalf("run %d: RecountAll() = %d, %v", run, processed, err)
		}
		if u, n := env.counters(t, p1.ID); u != 1 || n != 1 {
			t.Fatalf("run %d: p1 counters = %d/%d", run, u, n)
		}
		if u, n := env.counters(t, p2.ID); u != 1 || n != 0 {
			t.Fatalf("run %d: p2 counters = %d/%d", run, u, n)
		}
	}
}

func TestUserStatsAndLeaderboard(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p1 := env.createPatch(t, "aaa1111")
	p2 := env.createPatch(t, "bbb2222")
	env.createPatch(t, "ccc3333")
	u1 := env.createUser(t, "u1", false)
	u2 := env.createUser(t, "u2", false)

	for _, v := range []VoteInput{
		{PatchID: p1.ID, UserID: u1.ID, IsUseful: true},
		{PatchID: p2.ID, UserID: u1.ID, IsUseful: false},
		{PatchID: p1.ID, UserID: u2.ID, IsUseful: true},
	} {
		if _, err := env.svc.Vote(ctx, v); err != nil {
			t.Fatalf("Vote() error = %v", err)
		}
	}

	stats, err := env.svc.UserStats(ctx, u1.ID)
	if err != nil {
		t.Fatalf("UserStats() error = %v", err)
	}
	if stats != (domain.UserStats{Total: 2, Useful: 1, NotUseful: 1, Remaining: 1}) {
		t.Fatalf("UserStats() = %+v", stats)
	}

	board, err := env.svc.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(board) != 2 || board[0].User.ID != u1.ID || board[0].RatingCount != 2 {
		t.Fatalf("Leaderboard() = %+v", board)
	}

	recent, err := env.svc.RecentRatings(ctx, u1.ID)
	if err != nil || len(recent) != 2 {
		t.Fatalf("RecentRatings() = %v, %v", recent, err)
	}
}

func TestDownloadTokens(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p, err := env.svc.CreatePatch(ctx, PatchInput{
		CommitHash:  strPtr("0123456789abcdef"),
		Title:       strPtr("With diff"),
		DiffContent: strPtr("diff --git a/x b/x\n"),
	})
	if err != nil {
		t.Fatalf("CreatePatch() error = %v", err)
	}

	token, err := env.svc.GenerateDownloadToken(ctx, p.ID)
	if err != nil || token == "" {
		t.Fatalf("GenerateDownloadToken() = %q, %v", token, err)
	}

	download, err := env.svc.DownloadPatch(ctx, token)
	if err != nil {
		t.Fatalf("DownloadPatch() error = %v", err)
	}
	if download.Filename != "01234567.patch" || download.Content != "diff --git a/x b/x\n" {
		t.Fatalf("DownloadPatch() = %+v", download)
	}

	for _, bad := range []string{"", "   ", "unknown-token"} {
		if _, err := env.svc.ResolveDownloadToken(ctx, bad); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("ResolveDownloadToken(%q) error = %v, want ErrNotFound", bad, err)
		}
	}
	if _, err := env.svc.GenerateDownloadToken(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GenerateDownloadToken(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMatchCommitterToUser(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p := env.createPatch(t, "abc1234")
	u := env.createUser(t, "dev", false)

	if _, err := env.repo.UpdateCommitter(ctx, p.ID, ports.CommitterUpdate{
		Email:          "DEV@example.com",
		Name:           "Dev",
		GitHubUsername: "nobody-here",
		GitHubID:       domain.GitHubIDNotFound,
	}); err != nil {
		t.Fatalf("UpdateCommitter() error = %v", err)
	}

	linked, err := env.svc.MatchCommitterToUser(ctx, p.ID)
	if err != nil || linked != u.ID {
		t.Fatalf("MatchCommitterToUser() = %d, %v; want %d", linked, err, u.ID)
	}

	env.createUser(t, "other", false)
	again, err := env.svc.MatchCommitterToUser(ctx, p.ID)
	if err != nil || again != u.ID {
		t.Fatalf("MatchCommitterToUser(again) = %d, %v", again, err)
	}

	unmatched := env.createPatch(t, "def5678")
	if _, err := env.repo.UpdateCommitter(ctx, unmatched.ID, ports.CommitterUpdate{Email: "ghost@example.com", GitHubID: domain.GitHubIDNotFound}); err != nil {
		t.Fatalf("UpdateCommitter() error = %v", err)
	}
	if id, err := env.svc.MatchCommitterToUser(ctx, unmatched.ID); err != nil || id != 0 {
		t.Fatalf("MatchCommitterToUser(unmatched) = %d, %v", id, err)
	}
}

func TestRequireAdmin(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	admin := env.createUser(t, "admin", true)
	member := env.createUser(t, "member", false)

	if _, err := env.svc.RequireAdmin(ctx, admin.ID); err != nil {
		t.Fatalf("RequireAdmin(admin) error = %v", err)
	}
	if _, err := env.svc.RequireAdmin(ctx, member.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("RequireAdmin(member) error = %v, want ErrForbidden", err)
	}
	if _, err := env.svc.RequireAdmin(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("RequireAdmin(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeletePatchAndNeighbours(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	p1 := env.createPatch(t, "aaa1111")
	p2 := env.createPatch(t, "bbb2222")
	p3 := env.createPatch(t, "ccc3333")
	u := env.createUser(t, "u1", false)

	if _, err := env.svc.Vote(ctx, VoteInput{PatchID: p2.ID, UserID: u.ID, IsUseful: true}); err != nil {
		t.Fatalf("Vote() error = %v", err)
	}

	n, err := env.svc.Neighbours(ctx, p2.ID)
	if err != nil || n.PrevID != p1.ID || n.NextID != p3.ID {
		t.Fatalf("Neighbours() = %+v, %v", n, err)
	}

	if err := env.svc.DeletePatch(ctx, p2.ID); err != nil {
		t.Fatalf("DeletePatch() error = %v", err)
	}
	if _, err := env.svc.UserRating(ctx, p2.ID, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rating survived delete: %v", err)
	}
	n, _ = env.svc.Neighbours(ctx, p1.ID)
	if n.NextID != p3.ID || n.PrevID != 0 {
		t.Fatalf("Neighbours() after delete = %+v", n)
	}
}

const auditMarkdown = `# Stored XSS in topic titles

**Audited:** 2025-03-14
**Repository:** core (discourse)

Tags: [Security] [bug]

## Summary

Titles were rendered without escaping.

## Details

More text.
`

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestImportDirectory(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "abc1234.md"), auditMarkdown)
	writeFile(t, filepath.Join(dir, "abc1234.patch"), "diff --git a/a b/a\n")
	writeFile(t, filepath.Join(dir, "def5678.md"), auditMarkdown)
	writeFile(t, filepath.Join(dir, "not-a-hash.md"), auditMarkdown)
	writeFile(t, filepath.Join(dir, "not-a-hash.patch"), "x")
	writeFile(t, filepath.Join(dir, "README.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "0000000.patch"), strings.Repeat("x", maxImportFileSize+1))

	result, err := env.svc.ImportDirectory(ctx, dir)
	if err != nil {
		t.Fatalf("ImportDirectory() error = %v", err)
	}
	if result.Created != 1 || result.Updated != 0 || len(result.Errors) != 0 {
		t.Fatalf("ImportDirectory() = %+v", result)
	}
	if result.TotalFiles != 7 || result.MDFiles != 3 || result.PatchFiles != 2 {
		t.Fatalf("file counts = %+v", result)
	}

	reasons := map[string]string{}
	for _, s := range result.Skipped {
		reasons[s.CommitHash] = s.Reason
	}
	if reasons["def5678"] != "Missing .patch file" || reasons["not-a-hash"] != "Invalid commit hash format" || !strings.HasPrefix(reasons["0000000"], "File too large") {
		t.Fatalf("skipped = %+v", result.Skipped)
	}

	p, err := env.svc.GetPatchByHash(ctx, "abc1234")
	if err != nil {
		t.Fatalf("GetPatchByHash() error = %v", err)
	}
	if p.Title != "Stored XSS in topic titles" || p.IssueType != domain.IssueTypeSecurity || p.Repository != "core (discourse)" {
		t.Fatalf("imported patch = %+v", p)
	}
	if p.Summary != "Titles were rendered without escaping." || p.AuditDate == nil || p.AuditDate.Format(time.DateOnly) != "2025-03-14" {
		t.Fatalf("imported summary/date = %q / %v", p.Summary, p.AuditDate)
	}
	if p.GitHubRepoPath(env.svc.RepoRef()) != "discourse/core" {
		t.Fatalf("GitHubRepoPath() = %q", p.GitHubRepoPath(env.svc.RepoRef()))
	}

	again, err := env.svc.ImportDirectory(ctx, dir)
	if err != nil || again.Created != 0 || again.Updated != 1 {
		t.Fatalf("ImportDirectory(again) = %+v, %v", again, err)
	}

	if _, err := env.svc.ImportDirectory(ctx, filepath.Join(dir, "missing")); !errors.Is(err, domain.ErrImportSourceMissing) {
		t.Fatalf("ImportDirectory(missing) error = %v, want ErrImportSourceMissing", err)
	}
}

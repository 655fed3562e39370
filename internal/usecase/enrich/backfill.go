package enrich

import (
	"context"
	"errors"
	"log/slog"

	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	"patchtriage/internal/observability"
	"patchtriage/internal/ports"
)

const defaultBatchSize = 100

// CommitterMatcher links a patch's committer to a local user.
type CommitterMatcher interface {
	MatchCommitterToUser(ctx context.Context, patchID uint64) (uint64, error)
}

type Options struct {
	Repo      domain.RepoRef
	BatchSize int
}

// Backfiller fills committer metadata for patches that were never looked up.
type Backfiller struct {
	repo      ports.PatchRepository
	lookup    ports.CommitLookup
	matcher   CommitterMatcher
	repoRef   domain.RepoRef
	batchSize int
}

func NewBackfiller(repo ports.PatchRepository, lookup ports.CommitLookup, matcher CommitterMatcher, opts Options) *Backfiller {
	b := &Backfiller{
		repo:      repo,
		lookup:    lookup,
		matcher:   matcher,
		repoRef:   opts.Repo,
		batchSize: opts.BatchSize,
	}
	if b.batchSize <= 0 {
		b.batchSize = defaultBatchSize
	}
	return b
}

type Result struct {
	Processed   int  `json:"processed"`
	Updated     int  `json:"updated"`
	NotFound    int  `json:"not_found"`
	Failed      int  `json:"failed"`
	Linked      int  `json:"linked"`
	RateLimited bool `json:"rate_limited"`
}

// Run walks patches missing committer data in id order, up to limit patches
// (0 means all). A rate limit stops the run without failing it; patches
// already written stay written. Lookups that fail for other reasons are
// logged and left for the next run.
func (b *Backfiller) Run(ctx context.Context, limit int) (Result, error) {
	if ctx == nil {
		return Result{}, errors.New("context is required")
	}
	if b.repo == nil || b.lookup == nil {
		return Result{}, errors.New("backfill needs a patch repository and a commit lookup")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.enrich.backfill"))

	var (
		result  Result
		afterID uint64
	)
	for {
		if err := ctx.Err(); err != nil {
			return result, errs.Wrap(err, "check context")
		}

		size := b.batchSize
		if limit > 0 && limit-result.Processed < size {
			size = limit - result.Processed
		}
		if size <= 0 {
			break
		}

		patches, err := b.repo.ListPatchesMissingCommitter(ctx, afterID, size)
		if err != nil {
			return result, err
		}
		if len(patches) == 0 {
			break
		}

		for _, patch := range patches {
			afterID = patch.ID
			stop, err := b.backfillOne(ctx, logCtx, patch, &result)
			if err != nil {
				return result, err
			}
			if stop {
				logging.Warn(logCtx, "rate limited, stopping backfill", slog.Int("processed", result.Processed))
				return result, nil
			}
		}
	}

	logging.Info(
		logCtx,
		"committer backfill finished",
		slog.Int("processed", result.Processed),
		slog.Int("updated", result.Updated),
		slog.Int("not_found", result.NotFound),
		slog.Int("failed", result.Failed),
		slog.Int("linked", result.Linked),
	)
	return result, nil
}

func (b *Backfiller) backfillOne(ctx context.Context, logCtx context.Context, patch domain.Patch, result *Result) (bool, error) {
	author, err := b.lookup.LookupCommit(ctx, patch.GitHubRepoPath(b.repoRef), patch.CommitHash)
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		observability.CountCommitterLookup("rate_limited")
		result.RateLimited = true
		return true, nil
	case errors.Is(err, domain.ErrCommitNotFound):
		observability.CountCommitterLookup("not_found")
		result.Processed++
		if _, err := b.repo.UpdateCommitter(ctx, patch.ID, ports.CommitterUpdate{GitHubID: domain.GitHubIDNotFound}); err != nil {
			return false, err
		}
		result.NotFound++
		return false, nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, errs.Wrap(ctxErr, "lookup commit")
		}
		observability.CountCommitterLookup("error")
		result.Processed++
		result.Failed++
		logging.Warn(
			logCtx,
			"commit lookup failed",
			slog.Uint64("patch_id", patch.ID),
			slog.String("commit_hash", patch.CommitHash),
			slog.Any("err", errs.Loggable(err)),
		)
		return false, nil
	}

	observability.CountCommitterLookup("found")
	result.Processed++

	githubID := author.GitHubID
	if githubID <= 0 {
		githubID = domain.GitHubIDNotFound
	}
	written, err := b.repo.UpdateCommitter(ctx, patch.ID, ports.CommitterUpdate{
		Email:          author.Email,
		Name:           author.Name,
		GitHubUsername: author.GitHubUsername,
		GitHubID:       githubID,
	})
	if err != nil {
		return false, err
	}
	if written {
		result.Updated++
	}

	if b.matcher == nil {
		return false, nil
	}
	userID, err := b.matcher.MatchCommitterToUser(ctx, patch.ID)
	if err != nil {
		logging.Warn(logCtx, "match committer failed", slog.Uint64("patch_id", patch.ID), slog.Any("err", errs.Loggable(err)))
		return false, nil
	}
	if userID != 0 {
		result.Linked++
	}
	return false, nil
}

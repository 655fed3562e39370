package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	"patchtriage/internal/observability"
)

const maxImportFileSize = 1 << 20

type SkippedFile struct {
	CommitHash string `json:"commit_hash"`
	Reason     string `json:"reason"`
}

type FailedFile struct {
	CommitHash string `json:"commit_hash"`
	Error      string `json:"error"`
}

// DirImportResult summarizes one markdown directory import.
type DirImportResult struct {
	TotalFiles int           `json:"total_files"`
	MDFiles    int           `json:"md_files"`
	PatchFiles int           `json:"patch_files"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Skipped    []SkippedFile `json:"skipped"`
	Errors     []FailedFile  `json:"errors"`
}

const importParseWorkers = 4

type auditFiles struct {
	hash     string
	markdown string
	diff     string
}

type loadedAudit struct {
	hash  string
	input PatchInput
	err   error
}

// ImportDirectory upserts a patch for every <hash>.md with a sibling
// <hash>.patch in dir. Per-file problems are reported in the result; only an
// unreadable directory fails the call.
func (s *Service) ImportDirectory(ctx context.Context, dir string) (result DirImportResult, err error) {
	defer observability.ObserveOperation("import_dir", time.Now(), &err)

	if err := s.checkReady(ctx); err != nil {
		return DirImportResult{}, err
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.triage.import_dir"), slog.String("dir", dir))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DirImportResult{}, fmt.Errorf("%s: %w", dir, domain.ErrImportSourceMissing)
		}
		return DirImportResult{}, errs.Wrapf(err, "read import dir %q", dir)
	}

	groups := make(map[string]*auditFiles)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		base := strings.TrimSuffix(name, filepath.Ext(name))
		result.TotalFiles++

		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, FailedFile{CommitHash: base, Error: err.Error()})
			continue
		}
		if info.Size() > maxImportFileSize {
			result.Skipped = append(result.Skipped, SkippedFile{CommitHash: base, Reason: "File too large (max 1MB)"})
			continue
		}

		switch ext {
		case ".md":
			result.MDFiles++
		case ".patch":
			result.PatchFiles++
		default:
			continue
		}

		group, ok := groups[base]
		if !ok {
			group = &auditFiles{}
			groups[base] = group
		}
		path := filepath.Join(dir, name)
		if ext == ".md" {
			group.markdown = path
		} else {
			group.diff = path
		}
	}

	bases := make([]string, 0, len(groups))
	for base := range groups {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	pending := make([]string, 0, len(bases))
	for _, base := range bases {
		group := groups[base]
		hash := domain.NormalizeCommitHash(base)
		if !domain.ValidCommitHash(hash) {
			result.Skipped = append(result.Skipped, SkippedFile{CommitHash: base, Reason: "Invalid commit hash format"})
			continue
		}
		if group.markdown == "" || group.diff == "" {
			missing := ".md"
			if group.markdown != "" {
				missing = ".patch"
			}
			result.Skipped = append(result.Skipped, SkippedFile{CommitHash: hash, Reason: "Missing " + missing + " file"})
			continue
		}
		group.hash = hash
		pending = append(pending, base)
	}

	// Files are read and parsed in parallel; writes stay sequential.
	loaded := make([]loadedAudit, len(pending))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(importParseWorkers)
	for i, base := range pending {
		group := groups[base]
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			input, err := loadAuditFiles(group.hash, *group)
			loaded[i] = loadedAudit{hash: group.hash, input: input, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DirImportResult{}, errs.Wrap(err, "load audit files")
	}

	for _, item := range loaded {
		err := item.err
		created := false
		if err == nil {
			created, err = s.saveAuditPatch(ctx, item.hash, item.input)
		}
		if err != nil {
			logging.Error(logCtx, "patch import failed", slog.String("commit_hash", item.hash), slog.Any("err", errs.Loggable(err)))
			result.Errors = append(result.Errors, FailedFile{CommitHash: item.hash, Error: err.Error()})
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	logging.Info(
		logCtx,
		"patch directory imported",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func loadAuditFiles(hash string, files auditFiles) (PatchInput, error) {
	markdown, err := os.ReadFile(files.markdown)
	if err != nil {
		return PatchInput{}, errs.Wrap(err, "read markdown")
	}
	diff, err := os.ReadFile(files.diff)
	if err != nil {
		return PatchInput{}, errs.Wrap(err, "read patch")
	}

	report, err := domain.ParseAuditMarkdown(string(markdown))
	if err != nil {
		return PatchInput{}, err
	}

	markdownContent := string(markdown)
	diffContent := string(diff)
	issueType := string(report.IssueType)
	return PatchInput{
		CommitHash:      &hash,
		Title:           &report.Title,
		Summary:         &report.Summary,
		MarkdownContent: &markdownContent,
		DiffContent:     &diffContent,
		IssueType:       &issueType,
		Repository:      &report.Repository,
		AuditDate:       report.AuditDate,
	}, nil
}

func (s *Service) saveAuditPatch(ctx context.Context, hash string, input PatchInput) (bool, error) {
	var created bool
	err := s.withTx(ctx, "import patch", func(txCtx context.Context) error {
		existing, err := s.repo.FindPatchByHash(txCtx, hash)
		if errors.Is(err, domain.ErrNotFound) {
			created = true
			_, err = s.CreatePatch(txCtx, input)
			return err
		}
		if err != nil {
			return err
		}
		_, err = s.UpdatePatch(txCtx, existing.ID, input)
		return err
	})
	return created, err
}

package triage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
)

const downloadTokenKeyPrefix = "patch-download-token:"

func downloadTokenKey(token string) string {
	return downloadTokenKeyPrefix + token
}

// GenerateDownloadToken issues a short-lived token that resolves to the patch.
func (s *Service) GenerateDownloadToken(ctx context.Context, patchID uint64) (string, error) {
	if err := s.checkReady(ctx); err != nil {
		return "", err
	}
	if s.cache == nil {
		return "", errors.New("download tokens need a cache")
	}
	if _, err := s.repo.GetPatch(ctx, patchID); err != nil {
		return "", err
	}

	token := uuid.NewString()
	if err := s.cache.Set(ctx, downloadTokenKey(token), strconv.FormatUint(patchID, 10), s.downloadTokenTTL); err != nil {
		return "", errs.Wrap(err, "store download token")
	}
	return token, nil
}

// ResolveDownloadToken returns the patch id behind a token or ErrNotFound.
func (s *Service) ResolveDownloadToken(ctx context.Context, token string) (uint64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, fmt.Errorf("blank download token: %w", domain.ErrNotFound)
	}
	if s.cache == nil {
		return 0, errors.New("download tokens need a cache")
	}

	value, found, err := s.cache.Get(ctx, downloadTokenKey(token))
	if err != nil {
		return 0, errs.Wrap(err, "load download token")
	}
	if !found {
		return 0, fmt.Errorf("download token: %w", domain.ErrNotFound)
	}

	patchID, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("download token holds %q: %w", value, domain.ErrNotFound)
	}
	return patchID, nil
}

// Download is a patch file ready to be served.
type Download struct {
	Filename string
	Content  string
}

// DownloadPatch resolves the token and returns the patch diff.
func (s *Service) DownloadPatch(ctx context.Context, token string) (Download, error) {
	patchID, err := s.ResolveDownloadToken(ctx, token)
	if err != nil {
		return Download{}, err
	}
	patch, err := s.GetPatch(ctx, patchID)
	if err != nil {
		return Download{}, err
	}
	return Download{Filename: patch.DownloadFilename(), Content: patch.DiffContent}, nil
}

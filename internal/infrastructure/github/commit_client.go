package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	"patchtriage/internal/ports"
)

type Options struct {
	// Token authenticates as a user or PAT. Ignored when app credentials are set.
	Token string

	AppID          int64
	InstallationID int64
	PrivateKeyPath string

	// BaseURL overrides https://api.github.com/, e.g. for GitHub Enterprise.
	BaseURL string

	RequestsPerSecond float64
	Timeout           time.Duration
}

// CommitClient looks up commit authors through the GitHub REST API.
type CommitClient struct {
	client  *gh.Client
	limiter *rate.Limiter
}

var _ ports.CommitLookup = (*CommitClient)(nil)

func NewCommitClient(ctx context.Context, opts Options) (*CommitClient, error) {
	httpClient, err := newHTTPClient(ctx, opts)
	if err != nil {
		return nil, err
	}

	client := gh.NewClient(httpClient)
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, errs.Wrapf(err, "parse github base url %q", opts.BaseURL)
		}
		client.BaseURL = parsed
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &CommitClient{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

func newHTTPClient(ctx context.Context, opts Options) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	switch {
	case opts.AppID != 0 && opts.InstallationID != 0 && opts.PrivateKeyPath != "":
		tr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, opts.AppID, opts.InstallationID, opts.PrivateKeyPath)
		if err != nil {
			return nil, errs.Wrap(err, "load github app key")
		}
		if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
			tr.BaseURL = base
		}
		return &http.Client{Transport: tr, Timeout: timeout}, nil
	case strings.TrimSpace(opts.Token) != "":
		client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(opts.Token)}))
		client.Timeout = timeout
		return client, nil
	default:
		return &http.Client{Timeout: timeout}, nil
	}
}

// LookupCommit fetches GET /repos/{owner}/{repo}/commits/{sha}.
func (c *CommitClient) LookupCommit(ctx context.Context, repoPath string, sha string) (ports.CommitAuthor, error) {
	owner, repo, ok := strings.Cut(repoPath, "/")
	if !ok || owner == "" || repo == "" {
		return ports.CommitAuthor{}, fmt.Errorf("invalid repository path %q", repoPath)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return ports.CommitAuthor{}, errs.Wrap(err, "wait for github rate limiter")
	}

	commit, resp, err := c.client.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return ports.CommitAuthor{}, classifyError(err, resp)
	}

	author := ports.CommitAuthor{
		Email:          commit.GetCommit().GetAuthor().GetEmail(),
		Name:           commit.GetCommit().GetAuthor().GetName(),
		GitHubUsername: commit.GetAuthor().GetLogin(),
		GitHubID:       commit.GetAuthor().GetID(),
	}
	return author, nil
}

func classifyError(err error, resp *gh.Response) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: %v", triage.ErrRateLimited, err)
	}

	if resp != nil && resp.Response != nil {
		switch status := resp.StatusCode; {
		case status == http.StatusForbidden || status == http.StatusTooManyRequests:
			return fmt.Errorf("%w: status %d", triage.ErrRateLimited, status)
		case status != http.StatusOK:
			return fmt.Errorf("%w: status %d", triage.ErrCommitNotFound, status)
		}
	}
	return fmt.Errorf("%w: %v", triage.ErrExternalLookup, err)
}

package triage

import (
	"math"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type IssueType string

const (
	IssueTypeSecurity    IssueType = "security"
	IssueTypeBug         IssueType = "bug"
	IssueTypeEnhancement IssueType = "enhancement"
	IssueTypeFeature     IssueType = "feature"
)

// IssueTypes is ordered by detection priority.
var IssueTypes = []IssueType{IssueTypeSecurity, IssueTypeBug, IssueTypeEnhancement, IssueTypeFeature}

type ResolutionStatus string

const (
	ResolutionFixed   ResolutionStatus = "fixed"
	ResolutionInvalid ResolutionStatus = "invalid"
)

func (s ResolutionStatus) Valid() bool {
	return s == ResolutionFixed || s == ResolutionInvalid
}

// Patch is one externally sourced commit under review.
type Patch struct {
	ID              uint64
	CommitHash      string
	Title           string
	Summary         string
	MarkdownContent string
	DiffContent     string
	IssueType       IssueType
	AuditDate       *time.Time
	Repository      string
	Active          bool

	UsefulCount    int
	NotUsefulCount int

	ResolvedAt             *time.Time
	ResolvedByID           *uint64
	ResolutionStatus       ResolutionStatus
	ResolutionNotes        string
	ResolutionChangesetURL string

	// Committer fields stay nil until the backfill has looked the commit up.
	CommitterEmail          *string
	CommitterName           *string
	CommitterGitHubUsername *string
	CommitterGitHubID       *int64
	CommitterUserID         *uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RepoRef names the GitHub repository used when a patch has no repository label.
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) String() string { return r.Owner + "/" + r.Name }

var DefaultRepoRef = RepoRef{Owner: "discourse", Name: "discourse"}

const (
	GitHubIDNotFound = int64(-1)
	shortHashLength  = 8
)

var commitHashPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// NormalizeCommitHash lowercases and trims a commit hash.
func NormalizeCommitHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

func ValidCommitHash(hash string) bool {
	return commitHashPattern.MatchString(hash)
}

// Normalize canonicalizes user-supplied attributes in place.
func (p *Patch) Normalize() {
	p.CommitHash = NormalizeCommitHash(p.CommitHash)
	p.Title = strings.TrimSpace(p.Title)
	p.Repository = strings.TrimSpace(p.Repository)
	p.IssueType = IssueType(strings.ToLower(strings.TrimSpace(string(p.IssueType))))
	p.ResolutionStatus = ResolutionStatus(strings.ToLower(strings.TrimSpace(string(p.ResolutionStatus))))
	p.ResolutionChangesetURL = strings.TrimSpace(p.ResolutionChangesetURL)
}

type patchRules struct {
	CommitHash       string `field:"commit_hash" validate:"required,commithash"`
	Title            string `field:"title" validate:"required"`
	IssueType        string `field:"issue_type" validate:"omitempty,oneof=security bug enhancement feature"`
	ResolutionStatus string `field:"resolution_status" validate:"omitempty,oneof=fixed invalid"`
	UsefulCount      int    `field:"useful_count" validate:"gte=0"`
	NotUsefulCount   int    `field:"not_useful_count" validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("field"); name != "" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("commithash", func(fl validator.FieldLevel) bool {
		return ValidCommitHash(fl.Field().String())
	})
	return v
}

var ruleMessages = map[string]string{
	"required":   "can't be blank",
	"commithash": "must be 7-40 lowercase hex characters",
	"oneof":      "is not included in the list",
	"gte":        "must be greater than or equal to 0",
}

// Validate checks attribute rules and resolution consistency. It does not normalize.
func (p Patch) Validate() error {
	verr := &ValidationError{}

	err := validate.Struct(patchRules{
		CommitHash:       p.CommitHash,
		Title:            p.Title,
		IssueType:        string(p.IssueType),
		ResolutionStatus: string(p.ResolutionStatus),
		UsefulCount:      p.UsefulCount,
		NotUsefulCount:   p.NotUsefulCount,
	})
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrs {
			msg, ok := ruleMessages[fe.Tag()]
			if !ok {
				msg = "is invalid"
			}
			verr.add(fe.Field(), msg)
		}
	} else if err != nil {
		verr.add("base", err.Error())
	}

	validateResolutionState(p, verr)
	return verr.orNil()
}

func validateResolutionState(p Patch, verr *ValidationError) {
	hasStatus := p.ResolutionStatus != ""
	if hasStatus != (p.ResolvedAt != nil) {
		verr.add("resolved_at", "must be present exactly when resolution_status is present")
	}
	if hasStatus != (p.ResolvedByID != nil) {
		verr.add("resolved_by", "must be present exactly when resolution_status is present")
	}

	switch p.ResolutionStatus {
	case ResolutionFixed:
		if msg := changesetURLProblem(p.ResolutionChangesetURL); msg != "" {
			verr.add("resolution_changeset_url", msg)
		}
	default:
		if p.ResolutionChangesetURL != "" {
			verr.add("resolution_changeset_url", "must be blank unless resolution_status is fixed")
		}
	}
}

func changesetURLProblem(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "is required when resolution_status is fixed"
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "must be a valid HTTP or HTTPS URL"
	}
	return ""
}

func (p Patch) Resolved() bool { return p.ResolvedAt != nil }

func (p Patch) TotalVotes() int { return p.UsefulCount + p.NotUsefulCount }

// UsefulRatio is the useful share of votes as a percentage rounded to one decimal.
func (p Patch) UsefulRatio() float64 {
	total := p.TotalVotes()
	if total == 0 {
		return 0
	}
	return math.Round(float64(p.UsefulCount)/float64(total)*1000) / 10
}

// GitHubRepoPath derives owner/name from the repository label, e.g.
// "core (discourse)" becomes "discourse/core".
func (p Patch) GitHubRepoPath(def RepoRef) string {
	if def.Owner == "" || def.Name == "" {
		def = DefaultRepoRef
	}
	name, _, _ := strings.Cut(p.Repository, "(")
	name = strings.TrimSpace(name)
	if name == "" {
		return def.String()
	}
	return def.Owner + "/" + name
}

func (p Patch) GitHubCommitURL(def RepoRef) string {
	return "https://github.com/" + p.GitHubRepoPath(def) + "/commit/" + p.CommitHash
}

func (p Patch) ShortHash() string {
	if len(p.CommitHash) <= shortHashLength {
		return p.CommitHash
	}
	return p.CommitHash[:shortHashLength]
}

func (p Patch) DownloadFilename() string { return p.ShortHash() + ".patch" }

// CommitterLookedUp reports whether the backfill already wrote committer fields.
func (p Patch) CommitterLookedUp() bool {
	return p.CommitterEmail != nil || p.CommitterName != nil || p.CommitterGitHubUsername != nil
}

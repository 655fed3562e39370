package triage

import (
	"strings"
	"testing"
)

const sampleAudit = `# Prevent open redirect in login flow

**Audited:** 2025-01-15
**Repository:** discourse-saml (plugin)

- [ ] [Bug]
- [x] [Security]

## Summary

The return_path parameter was not checked.
It allowed redirects to other hosts.

## Details

Not part of the summary.
`

func TestParseAuditMarkdown(t *testing.T) {
	report, err := ParseAuditMarkdown(sampleAudit)
	if err != nil {
		t.Fatalf("ParseAuditMarkdown() error = %v", err)
	}

	if report.Title != "Prevent open redirect in login flow" {
		t.Fatalf("Title = %q", report.Title)
	}
	if report.AuditDate == nil || report.AuditDate.Format("2006-01-02") != "2025-01-15" {
		t.Fatalf("AuditDate = %v", report.AuditDate)
	}
	if report.Repository != "discourse-saml (plugin)" {
		t.Fatalf("Repository = %q", report.Repository)
	}
	if report.IssueType != IssueTypeSecurity {
		t.Fatalf("IssueType = %q", report.IssueType)
	}
	want := "The return_path parameter was not checked.\nIt allowed redirects to other hosts."
	if report.Summary != want {
		t.Fatalf("Summary = %q", report.Summary)
	}
}

func TestParseAuditMarkdownIgnoresSubheadingsForTitle(t *testing.T) {
	report, err := ParseAuditMarkdown("## Summary\n\nonly summary\n")
	if err != nil {
		t.Fatalf("ParseAuditMarkdown() error = %v", err)
	}
	if report.Title != "" {
		t.Fatalf("Title = %q, want empty", report.Title)
	}
	if report.Summary != "only summary" {
		t.Fatalf("Summary = %q", report.Summary)
	}
	if report.IssueType != "" || report.AuditDate != nil || report.Repository != "" {
		t.Fatalf("unexpected fields: %+v", report)
	}
}

func TestParseAuditMarkdownIssueTypePriority(t *testing.T) {
	report, err := ParseAuditMarkdown("# t\n[feature] [BUG]\n")
	if err != nil {
		t.Fatalf("ParseAuditMarkdown() error = %v", err)
	}
	if report.IssueType != IssueTypeBug {
		t.Fatalf("IssueType = %q, want bug", report.IssueType)
	}
}

func TestParseAuditMarkdownRejectsImpossibleDate(t *testing.T) {
	_, err := ParseAuditMarkdown("# t\n**Audited:** 2025-13-40\n")
	if err == nil || !strings.Contains(err.Error(), "audit date") {
		t.Fatalf("ParseAuditMarkdown() error = %v", err)
	}
}

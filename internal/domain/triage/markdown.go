package triage

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	markdownTitle      = regexp.MustCompile(`(?m)^# ([^\n]+)`)
	markdownAuditDate  = regexp.MustCompile(`\*\*Audited:\*\*\s*(\d{4}-\d{2}-\d{2})`)
	markdownRepository = regexp.MustCompile(`(?m)\*\*Repository:\*\*\s*(.+)$`)
	markdownSummary    = regexp.MustCompile(`## Summary[ \t\r]*\n`)
)

// AuditReport holds the attributes extracted from an audit markdown document.
type AuditReport struct {
	Title      string
	Summary    string
	IssueType  IssueType
	AuditDate  *time.Time
	Repository string
}

// ParseAuditMarkdown extracts patch attributes from an audit report. Missing
// sections leave the corresponding field empty.
func ParseAuditMarkdown(content string) (AuditReport, error) {
	var report AuditReport

	if m := markdownTitle.FindStringSubmatch(content); m != nil {
		report.Title = strings.TrimSpace(m[1])
	}

	if m := markdownAuditDate.FindStringSubmatch(content); m != nil {
		date, err := time.Parse(time.DateOnly, m[1])
		if err != nil {
			return AuditReport{}, fmt.Errorf("parse audit date %q: %w", m[1], err)
		}
		report.AuditDate = &date
	}

	if m := markdownRepository.FindStringSubmatch(content); m != nil {
		report.Repository = strings.TrimSpace(m[1])
	}

	lower := strings.ToLower(content)
	for _, it := range IssueTypes {
		if strings.Contains(lower, "["+string(it)+"]") {
			report.IssueType = it
			break
		}
	}

	report.Summary = summarySection(content)
	return report, nil
}

func summarySection(content string) string {
	loc := markdownSummary.FindStringIndex(content)
	if loc == nil {
		return ""
	}

	body := strings.TrimLeft(content[loc[1]:], "\n")
	if end := strings.Index(body, "\n## "); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
)

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

func writePatchTable(w io.Writer, patches []domain.Patch) error {
	table := newTable(w, []string{"ID", "HASH", "TYPE", "TITLE", "USEFUL", "NOT USEFUL", "ACTIVE", "RESOLVED"})
	for _, p := range patches {
		resolved := ""
		if p.Resolved() {
			resolved = string(p.ResolutionStatus)
		}
		if err := table.Append([]string{
			strconv.FormatUint(p.ID, 10),
			p.ShortHash(),
			string(p.IssueType),
			truncate(p.Title, 60),
			strconv.Itoa(p.UsefulCount),
			strconv.Itoa(p.NotUsefulCount),
			strconv.FormatBool(p.Active),
			resolved,
		}); err != nil {
			return errs.Wrap(err, "append patch row")
		}
	}
	return table.Render()
}

func writePatchDetail(w io.Writer, p domain.Patch, repo domain.RepoRef) error {
	lines := []string{
		fmt.Sprintf("id:          %d", p.ID),
		fmt.Sprintf("commit:      %s", p.CommitHash),
		fmt.Sprintf("title:       %s", p.Title),
		fmt.Sprintf("issue type:  %s", p.IssueType),
		fmt.Sprintf("repository:  %s", p.GitHubRepoPath(repo)),
		fmt.Sprintf("github:      %s", p.GitHubCommitURL(repo)),
		fmt.Sprintf("active:      %t", p.Active),
		fmt.Sprintf("votes:       %d useful / %d not useful", p.UsefulCount, p.NotUsefulCount),
	}
	if p.AuditDate != nil {
		lines = append(lines, "audited:     "+p.AuditDate.Format(time.DateOnly))
	}
	if p.Resolved() {
		lines = append(lines, fmt.Sprintf("resolved:    %s at %s", p.ResolutionStatus, p.ResolvedAt.Format(time.RFC3339)))
		if p.ResolutionChangesetURL != "" {
			lines = append(lines, "changeset:   "+p.ResolutionChangesetURL)
		}
		if p.ResolutionNotes != "" {
			lines = append(lines, "notes:       "+p.ResolutionNotes)
		}
	}
	if p.CommitterName != nil && *p.CommitterName != "" {
		lines = append(lines, "committer:   "+*p.CommitterName)
	}
	if p.Summary != "" {
		lines = append(lines, "", p.Summary)
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// readContent returns the inline flag value or the contents of the file flag.
// The second result is false when neither flag was set.
func readContent(cmd *cobra.Command, inlineFlag string, fileFlag string) (string, bool, error) {
	inline, _ := cmd.Flags().GetString(inlineFlag)
	file, _ := cmd.Flags().GetString(fileFlag)
	inlineSet := cmd.Flags().Changed(inlineFlag)
	fileSet := strings.TrimSpace(file) != ""

	if inlineSet && fileSet {
		return "", false, fmt.Errorf("--%s and --%s are mutually exclusive", inlineFlag, fileFlag)
	}
	if fileSet {
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", false, errs.Wrapf(err, "read %s %q", fileFlag, file)
		}
		return string(raw), true, nil
	}
	return inline, inlineSet, nil
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("patch id must be a positive integer")
	}
	return id, nil
}

func writeValidation(w io.Writer, err error) {
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		return
	}
	for _, f := range verr.Fields {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", f.Field, f.Message)
	}
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"patchtriage/internal/bootstrap"
	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
	"patchtriage/internal/ports"
	"patchtriage/internal/usecase/triage"
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Manage audited patches",
}

func newPatchCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a patch",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
			ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

			input, err := patchInputFromFlags(cmd)
			if err != nil {
				return err
			}
			patch, err := app.Triage.CreatePatch(ctx, input)
			if err != nil {
				writeValidation(cmd.ErrOrStderr(), err)
				return errs.Wrap(err, "create patch")
			}

			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created patch %d (%s)\n", patch.ID, patch.ShortHash()); err != nil {
				return errs.Wrap(err, "write create output")
			}
			return nil
		}),
	}
	addPatchInputFlags(cmd)
	return cmd
}

func newPatchUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update patch attributes; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
			ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

			id, err := parseID(cmd.Flags().Arg(0))
			if err != nil {
				return err
			}
			input, err := patchInputFromFlags(cmd)
			if err != nil {
				return err
			}
			patch, err := app.Triage.UpdatePatch(ctx, id, input)
			if err != nil {
				writeValidation(cmd.ErrOrStderr(), err)
				return errs.Wrapf(err, "update patch %d", id)
			}

			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "updated patch %d (%s)\n", patch.ID, patch.ShortHash()); err != nil {
				return errs.Wrap(err, "write update output")
			}
			return nil
		}),
	}
	addPatchInputFlags(cmd)
	return cmd
}

func addPatchInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("hash", "", "Commit hash (7-40 hex characters)")
	cmd.Flags().String("title", "", "Patch title")
	cmd.Flags().String("summary", "", "Short summary")
	cmd.Flags().String("markdown", "", "Audit report markdown")
	cmd.Flags().String("markdown-file", "", "Read the audit report markdown from a file")
	cmd.Flags().String("diff", "", "Patch diff")
	cmd.Flags().String("diff-file", "", "Read the patch diff from a file")
	cmd.Flags().String("issue-type", "", "security, bug, enhancement or feature")
	cmd.Flags().String("repository", "", "Repository label, e.g. \"core (discourse)\"")
	cmd.Flags().String("audit-date", "", "Audit date (YYYY-MM-DD)")
	cmd.Flags().Bool("active", true, "Whether the patch is offered for rating")
}

// patchInputFromFlags only sets fields whose flag was given, so update keeps
// everything else.
func patchInputFromFlags(cmd *cobra.Command) (triage.PatchInput, error) {
	var input triage.PatchInput
	flags := cmd.Flags()

	stringFlag := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	input.CommitHash = stringFlag("hash")
	input.Title = stringFlag("title")
	input.Summary = stringFlag("summary")
	input.IssueType = stringFlag("issue-type")
	input.Repository = stringFlag("repository")

	markdown, ok, err := readContent(cmd, "markdown", "markdown-file")
	if err != nil {
		return triage.PatchInput{}, err
	}
	if ok {
		input.MarkdownContent = &markdown
	}
	diff, ok, err := readContent(cmd, "diff", "diff-file")
	if err != nil {
		return triage.PatchInput{}, err
	}
	if ok {
		input.DiffContent = &diff
	}

	if flags.Changed("audit-date") {
		raw, _ := flags.GetString("audit-date")
		at, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
		if err != nil {
			return triage.PatchInput{}, fmt.Errorf("--audit-date %q is not YYYY-MM-DD", raw)
		}
		input.AuditDate = &at
	}
	if flags.Changed("active") {
		active, _ := flags.GetBool("active")
		input.Active = &active
	}
	return input, nil
}

var patchShowCmd = &cobra.Command{
	Use:   "show <id|hash>",
	Short: "Show one patch",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		found, err := lookupPatch(ctx, app, cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		if err := writePatchDetail(cmd.OutOrStdout(), found, app.Triage.RepoRef()); err != nil {
			return errs.Wrap(err, "write patch")
		}

		if found.DiffContent == "" {
			return nil
		}
		if showDiff, _ := cmd.Flags().GetBool("diff"); showDiff {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", found.DiffContent); err != nil {
				return errs.Wrap(err, "write diff")
			}
			return nil
		}
		stats, err := app.Triage.PatchDiffStats(ctx, found.ID)
		if err != nil {
			logging.Warn(ctx, "diff stats unavailable", slog.Uint64("patch_id", found.ID), slog.Any("err", errs.Loggable(err)))
			return nil
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "\n%d files changed, %d insertions(+), %d deletions(-)\n", stats.FilesChanged, stats.LinesAdded, stats.LinesRemoved); err != nil {
			return errs.Wrap(err, "write diff stats")
		}
		return nil
	}),
}

// lookupPatch accepts a numeric id or a commit hash. Digit-only references
// shorter than seven characters are ids.
func lookupPatch(ctx context.Context, app *bootstrap.App, ref string) (domain.Patch, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil && !domain.ValidCommitHash(ref) {
		patch, err := app.Triage.GetPatch(ctx, id)
		return patch, errs.Wrapf(err, "get patch %d", id)
	}
	patch, err := app.Triage.GetPatchByHash(ctx, ref)
	return patch, errs.Wrapf(err, "get patch %q", ref)
}

var patchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patches",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		filter, err := patchFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		patches, err := app.Triage.ListPatches(ctx, filter)
		if err != nil {
			return errs.Wrap(err, "list patches")
		}
		return writePatchTable(cmd.OutOrStdout(), patches)
	}),
}

var patchSorts = map[string]ports.PatchSort{
	"id":            ports.SortByID,
	"newest":        ports.SortNewest,
	"oldest":        ports.SortOldest,
	"useful":        ports.SortUseful,
	"popular":       ports.SortPopular,
	"controversial": ports.SortControversial,
}

func patchFilterFromFlags(cmd *cobra.Command) (ports.PatchFilter, error) {
	flags := cmd.Flags()
	var filter ports.PatchFilter

	for name, target := range map[string]**bool{
		"active":   &filter.Active,
		"resolved": &filter.Resolved,
		"claimed":  &filter.Claimed,
	} {
		raw, _ := flags.GetString(name)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return ports.PatchFilter{}, fmt.Errorf("--%s must be true or false", name)
		}
		*target = &v
	}

	filter.CommitterUsername, _ = flags.GetString("committer")
	filter.CommitterUserID, _ = flags.GetUint64("authored-by")
	filter.Limit, _ = flags.GetInt("limit")
	filter.Offset, _ = flags.GetInt("offset")

	sortName, _ := flags.GetString("sort")
	sort, ok := patchSorts[strings.ToLower(strings.TrimSpace(sortName))]
	if !ok {
		return ports.PatchFilter{}, fmt.Errorf("unknown --sort %q", sortName)
	}
	filter.Sort = sort
	return filter, nil
}

var patchToggleActiveCmd = &cobra.Command{
	Use:   "toggle-active <id>",
	Short: "Flip whether a patch is offered for rating (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		id, err := parseID(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		if err := requireAdmin(cmd, app); err != nil {
			return err
		}
		active, err := app.Triage.TogglePatchActive(ctx, id)
		if err != nil {
			return errs.Wrapf(err, "toggle patch %d", id)
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "patch %d active=%t\n", id, active); err != nil {
			return errs.Wrap(err, "write toggle output")
		}
		return nil
	}),
}

var patchDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a patch with its ratings, claims and claim history (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		id, err := parseID(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		if err := requireAdmin(cmd, app); err != nil {
			return err
		}
		if err := app.Triage.DeletePatch(ctx, id); err != nil {
			return errs.Wrapf(err, "delete patch %d", id)
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted patch %d\n", id); err != nil {
			return errs.Wrap(err, "write delete output")
		}
		return nil
	}),
}

var patchImportDirCmd = &cobra.Command{
	Use:   "import-dir <dir>",
	Short: "Import <hash>.md / <hash>.patch pairs from a directory (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := requireAdmin(cmd, app); err != nil {
			return err
		}
		result, err := app.Triage.ImportDirectory(ctx, cmd.Flags().Arg(0))
		if err != nil {
			return errs.Wrap(err, "import directory")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "files=%d md=%d patch=%d created=%d updated=%d skipped=%d errors=%d\n",
			result.TotalFiles, result.MDFiles, result.PatchFiles, result.Created, result.Updated, len(result.Skipped), len(result.Errors)); err != nil {
			return errs.Wrap(err, "write import output")
		}
		for _, s := range result.Skipped {
			_, _ = fmt.Fprintf(out, "skipped %s: %s\n", s.CommitHash, s.Reason)
		}
		for _, f := range result.Errors {
			_, _ = fmt.Fprintf(out, "failed %s: %s\n", f.CommitHash, f.Error)
		}
		return nil
	}),
}

var patchRecountCmd = &cobra.Command{
	Use:   "recount [id]",
	Short: "Rebuild vote counters from the rating ledger (admin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := requireAdmin(cmd, app); err != nil {
			return err
		}

		if cmd.Flags().NArg() == 0 {
			processed, err := app.Triage.RecountAll(ctx)
			if err != nil {
				return errs.Wrap(err, "recount all patches")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "recounted %d patches\n", processed)
			return errs.Wrap(err, "write recount output")
		}

		id, err := parseID(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		patch, err := app.Triage.RecountRatings(ctx, id)
		if err != nil {
			return errs.Wrapf(err, "recount patch %d", id)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "patch %d: %d useful / %d not useful\n", patch.ID, patch.UsefulCount, patch.NotUsefulCount)
		return errs.Wrap(err, "write recount output")
	}),
}

func requireAdmin(cmd *cobra.Command, app *bootstrap.App) error {
	userID, err := actor(cmd, app)
	if err != nil {
		return err
	}
	if _, err := app.Triage.RequireAdmin(cmd.Context(), userID); err != nil {
		return errs.Wrap(err, "check admin")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(patchCmd)
	patchCmd.AddCommand(
		newPatchCreateCmd(),
		newPatchUpdateCmd(),
		patchShowCmd,
		patchListCmd,
		patchToggleActiveCmd,
		patchDeleteCmd,
		patchImportDirCmd,
		patchRecountCmd,
	)

	patchShowCmd.Flags().Bool("diff", false, "Print the full diff")

	patchListCmd.Flags().String("active", "", "Filter by active flag (true/false)")
	patchListCmd.Flags().String("resolved", "", "Filter by resolution (true/false)")
	patchListCmd.Flags().String("claimed", "", "Filter by claim state (true/false)")
	patchListCmd.Flags().String("committer", "", "Filter by committer GitHub username")
	patchListCmd.Flags().Uint64("authored-by", 0, "Filter by linked committer user id")
	patchListCmd.Flags().String("sort", "newest", "id, newest, oldest, useful, popular or controversial")
	patchListCmd.Flags().Int("limit", 50, "Maximum rows")
	patchListCmd.Flags().Int("offset", 0, "Rows to skip")
}

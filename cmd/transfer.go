package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"patchtriage/internal/bootstrap"
	"patchtriage/internal/bootstrap/logging"
	"patchtriage/internal/errs"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export patches, ratings, claims and claim history as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		path := cmd.Flags().Arg(0)
		counts, err := app.Transfer.Export(ctx, path)
		if err != nil {
			return errs.Wrap(err, "export triage data")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "exported to %s: patches=%d ratings=%d claims=%d claim_logs=%d\n",
			path, counts.Patches, counts.PatchRatings, counts.PatchClaims, counts.PatchClaimLogs); err != nil {
			return errs.Wrap(err, "write export output")
		}
		return nil
	}),
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an export file; re-running it is a no-op (admin)",
	Long: `Import an export file in one transaction.

Patches match on commit hash, ratings and claims on (patch, user); the values
and timestamps in the file win over what is stored. Do not import an old
export over data that was edited since. Users are matched by email and
missing ones are created as staged placeholders.`,
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := requireAdmin(cmd, app); err != nil {
			return err
		}
		path := cmd.Flags().Arg(0)
		result, err := app.Transfer.Import(ctx, path)
		if err != nil {
			return errs.Wrap(err, "import triage data")
		}

		out := cmd.OutOrStdout()
		table := newTable(out, []string{"RECORD", "CREATED", "UPDATED", "SKIPPED"})
		rows := [][]string{
			{"users (staged)", fmt.Sprint(result.UsersStaged), "", ""},
			{"patches", fmt.Sprint(result.PatchesCreated), fmt.Sprint(result.PatchesUpdated), ""},
			{"ratings", fmt.Sprint(result.RatingsCreated), fmt.Sprint(result.RatingsUpdated), ""},
			{"claims", fmt.Sprint(result.ClaimsCreated), fmt.Sprint(result.ClaimsUpdated), ""},
			{"claim logs", fmt.Sprint(result.ClaimLogsInserted), "", fmt.Sprint(result.ClaimLogsSkipped)},
		}
		for _, row := range rows {
			if err := table.Append(row); err != nil {
				return errs.Wrap(err, "append import row")
			}
		}
		return table.Render()
	}),
}

var backfillCmd = &cobra.Command{
	Use:   "backfill-committers",
	Short: "Look up commit authors on GitHub and link them to local users",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		limit, _ := cmd.Flags().GetInt("limit")
		result, err := app.Backfill.Run(ctx, limit)
		if err != nil {
			return errs.Wrap(err, "backfill committers")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "processed=%d updated=%d not_found=%d failed=%d linked=%d\n",
			result.Processed, result.Updated, result.NotFound, result.Failed, result.Linked); err != nil {
			return errs.Wrap(err, "write backfill output")
		}
		if result.RateLimited {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "stopped early: GitHub rate limit reached, run again later")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd, backfillCmd)

	backfillCmd.Flags().Int("limit", 0, "Maximum patches to look up (0 = all)")
}

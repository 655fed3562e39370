package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"patchtriage/internal/bootstrap"
	"patchtriage/internal/bootstrap/logging"
	"patchtriage/internal/errs"
	"patchtriage/internal/usecase/triage"
)

var voteCmd = &cobra.Command{
	Use:   "vote <id> <useful|not-useful>",
	Short: "Rate a patch; voting again changes the rating",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		id, err := parseID(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		var useful bool
		switch strings.ToLower(strings.TrimSpace(cmd.Flags().Arg(1))) {
		case "useful", "yes", "true":
			useful = true
		case "not-useful", "no", "false":
			useful = false
		default:
			return fmt.Errorf("rating must be useful or not-useful, got %q", cmd.Flags().Arg(1))
		}
		userID, err := actor(cmd, app)
		if err != nil {
			return err
		}

		if _, err := app.Triage.Vote(ctx, triage.VoteInput{PatchID: id, UserID: userID, IsUseful: useful}); err != nil {
			return errs.Wrapf(err, "vote on patch %d", id)
		}
		patch, err := app.Triage.GetPatch(ctx, id)
		if err != nil {
			return errs.Wrapf(err, "get patch %d", id)
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "patch %d: %d useful / %d not useful\n", patch.ID, patch.UsefulCount, patch.NotUsefulCount); err != nil {
			return errs.Wrap(err, "write vote output")
		}
		return nil
	}),
}

var claimCmd = &cobra.Command{
	Use:   "claim <id>",
	Short: "Claim a patch you are working on",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		id, err := parseID(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		userID, err := actor(cmd, app)
		if err != nil {
			return err
		}
		notes, _ := cmd.Flags().GetString("notes")

		if _, err := app.Triage.ClaimPatch(ctx, triage.ClaimInput{PatchID: id, UserID: userID, Notes: notes}); err != nil {
			return errs.Wrapf(err, "claim patch %d", id)
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "claimed patch %d\n", id); err != nil {
			return errs.Wrap(err, "write claim output")
		}
		return nil
	}),
}

var unclaimCmd = &cobra.Command{
	Use:   "unclaim <id>",
	Short: "Release your claim on a patch",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		id, err := parseID(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		userID, err := actor(cmd, app)
		if err != nil {
			return err
		}

		removed, err := app.Triage.UnclaimPatch(ctx, triage.ClaimInput{PatchID: id, UserID: userID})
		if err != nil {
			return errs.Wrapf(err, "unclaim patch %d", id)
		}
		msg := "released claim on patch %d\n"
		if !removed {
			msg = "no claim on patch %d\n"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), msg, id); err != nil {
			return errs.Wrap(err, "write unclaim output")
		}
		return nil
	}),
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Record the outcome of a patch and release its claims (admin)",
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
		userID, err := actor(cmd, app)
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		notes, _ := cmd.Flags().GetString("notes")
		changeset, _ := cmd.Flags().GetString("changeset-url")

		patch, err := app.Triage.ResolvePatch(ctx, triage.ResolveInput{
			PatchID:      id,
			Status:       status,
			Notes:        notes,
			ChangesetURL: changeset,
			ResolvedBy:   userID,
		})
		if err != nil {
			writeValidation(cmd.ErrOrStderr(), err)
			return errs.Wrapf(err, "resolve patch %d", id)
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "patch %d resolved as %s\n", patch.ID, patch.ResolutionStatus); err != nil {
			return errs.Wrap(err, "write resolve output")
		}
		return nil
	}),
}

var unresolveCmd = &cobra.Command{
	Use:   "unresolve <id>",
	Short: "Clear the resolution of a patch (admin)",
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
		userID, err := actor(cmd, app)
		if err != nil {
			return err
		}

		if _, err := app.Triage.UnresolvePatch(ctx, id, userID); err != nil {
			return errs.Wrapf(err, "unresolve patch %d", id)
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "patch %d is unresolved\n", id); err != nil {
			return errs.Wrap(err, "write unresolve output")
		}
		return nil
	}),
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show a random active patch you have not rated yet",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		userID, err := actor(cmd, app)
		if err != nil {
			return err
		}
		var scope triage.SelectionScope
		scope.IncludeResolved, _ = cmd.Flags().GetBool("include-resolved")
		if raw, _ := cmd.Flags().GetString("claimed"); strings.TrimSpace(raw) != "" {
			claimed, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("--claimed must be true or false")
			}
			scope.Claimed = &claimed
		}

		patch, found, err := app.Triage.RandomUnratedFor(ctx, userID, scope)
		if err != nil {
			return errs.Wrap(err, "pick next patch")
		}
		if !found {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "nothing left to rate")
			return errs.Wrap(err, "write next output")
		}
		return errs.Wrap(writePatchDetail(cmd.OutOrStdout(), patch, app.Triage.RepoRef()), "write patch")
	}),
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show your rating statistics",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		userID, err := actor(cmd, app)
		if err != nil {
			return err
		}
		stats, err := app.Triage.UserStats(ctx, userID)
		if err != nil {
			return errs.Wrap(err, "load user stats")
		}

		table := newTable(cmd.OutOrStdout(), []string{"RATED", "USEFUL", "NOT USEFUL", "REMAINING"})
		if err := table.Append([]string{
			strconv.FormatInt(stats.Total, 10),
			strconv.FormatInt(stats.Useful, 10),
			strconv.FormatInt(stats.NotUseful, 10),
			strconv.FormatInt(stats.Remaining, 10),
		}); err != nil {
			return errs.Wrap(err, "append stats row")
		}
		return table.Render()
	}),
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the users with the most ratings",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := app.Triage.Leaderboard(ctx, limit)
		if err != nil {
			return errs.Wrap(err, "load leaderboard")
		}

		table := newTable(cmd.OutOrStdout(), []string{"RANK", "USER", "RATINGS"})
		for i, e := range entries {
			if err := table.Append([]string{strconv.Itoa(i + 1), e.User.Username, strconv.FormatInt(e.RatingCount, 10)}); err != nil {
				return errs.Wrap(err, "append leaderboard row")
			}
		}
		return table.Render()
	}),
}

var downloadTokenCmd = &cobra.Command{
	Use:   "download-token <id>",
	Short: "Issue a short-lived token for downloading a patch file",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		id, err := parseID(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		token, err := app.Triage.GenerateDownloadToken(ctx, id)
		if err != nil {
			return errs.Wrapf(err, "generate download token for patch %d", id)
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n/downloads/%s (valid for %s)\n", token, token, app.Config.Cache.DownloadTokenTTL); err != nil {
			return errs.Wrap(err, "write token output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(
		voteCmd,
		claimCmd,
		unclaimCmd,
		resolveCmd,
		unresolveCmd,
		nextCmd,
		statsCmd,
		leaderboardCmd,
		downloadTokenCmd,
	)

	claimCmd.Flags().String("notes", "", "What you plan to do")

	resolveCmd.Flags().String("status", "", "fixed or invalid")
	resolveCmd.Flags().String("notes", "", "Resolution notes")
	resolveCmd.Flags().String("changeset-url", "", "http(s) link to the fixing change (fixed only)")
	_ = resolveCmd.MarkFlagRequired("status")

	nextCmd.Flags().Bool("include-resolved", false, "Also offer resolved patches")
	nextCmd.Flags().String("claimed", "", "Only claimed (true) or unclaimed (false) patches")

	leaderboardCmd.Flags().Int("limit", 0, "Number of users (default: triage.leaderboard_size)")
}

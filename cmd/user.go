package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"patchtriage/internal/bootstrap"
	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/errs"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the local user directory",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a user",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")
		admin, _ := cmd.Flags().GetBool("admin")
		githubUsername, _ := cmd.Flags().GetString("github-username")

		user := domain.User{Username: username, Email: email, Admin: admin, GitHubUsername: githubUsername}
		if cmd.Flags().Changed("github-id") {
			githubID, _ := cmd.Flags().GetInt64("github-id")
			user.GitHubID = &githubID
		}

		created, err := app.Users.CreateUser(ctx, user)
		if err != nil {
			writeValidation(cmd.ErrOrStderr(), err)
			return errs.Wrap(err, "create user")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", created.ID, created.Email); err != nil {
			return errs.Wrap(err, "write user output")
		}
		return nil
	}),
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		users, err := app.Users.ListUsers(ctx)
		if err != nil {
			return errs.Wrap(err, "list users")
		}

		table := newTable(cmd.OutOrStdout(), []string{"ID", "USERNAME", "EMAIL", "ADMIN", "STAGED", "GITHUB"})
		for _, u := range users {
			if err := table.Append([]string{
				strconv.FormatUint(u.ID, 10),
				u.Username,
				u.Email,
				strconv.FormatBool(u.Admin),
				strconv.FormatBool(u.Staged),
				u.GitHubUsername,
			}); err != nil {
				return errs.Wrap(err, "append user row")
			}
		}
		return table.Render()
	}),
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userListCmd)

	userCreateCmd.Flags().String("username", "", "Username")
	userCreateCmd.Flags().String("email", "", "Email address")
	userCreateCmd.Flags().Bool("admin", false, "Grant the admin capability")
	userCreateCmd.Flags().String("github-username", "", "GitHub login used for committer matching")
	userCreateCmd.Flags().Int64("github-id", 0, "GitHub account id used for committer matching")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")
}

package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"expensewise/internal/auth"
	"expensewise/internal/store"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(createUserCmd())
	cmd.AddCommand(listUsersCmd())
	return cmd
}

func createUserCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Long:  `Create an email/password account, as the sign-up page would.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if password == "" {
				password = os.Getenv("EXPENSEWISE_PASSWORD")
			}

			_, res, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			sess, err := auth.NewService(res.Store, time.Minute, 1).SignUp(ctx, email, password)
			switch {
			case errors.Is(err, auth.ErrEmailTaken):
				return fmt.Errorf("an account for %s already exists", email)
			case err != nil:
				return fmt.Errorf("failed to create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", sess.UserID, sess.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (or EXPENSEWISE_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func listUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, res, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			ids, err := res.Store.ListUserIDs(ctx)
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users found. Use 'expensewise-cli users create' to add one.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "ID\tEMAIL\tCREATED")
			for _, id := range ids {
				u, err := res.Store.UserByID(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to load user %s: %w", id, err)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Email, u.CreatedAt.Format(time.DateOnly))
			}
			return nil
		},
	}
}

// userByEmail resolves an account for the per-user commands.
func userByEmail(cmd *cobra.Command, repo auth.Repository, email string) (auth.User, error) {
	normalized, err := auth.NormalizeEmail(email)
	if err != nil {
		return auth.User{}, fmt.Errorf("invalid email %q", email)
	}
	u, err := repo.UserByEmail(cmd.Context(), normalized)
	if errors.Is(err, auth.ErrUserNotFound) || errors.Is(err, store.ErrNotFound) {
		return auth.User{}, fmt.Errorf("no account for %s", normalized)
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to look up %s: %w", normalized, err)
	}
	return u, nil
}

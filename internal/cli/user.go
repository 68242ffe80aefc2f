package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/learnwire/internal/app"
	"github.com/vovakirdan/learnwire/internal/auth"
	"github.com/vovakirdan/learnwire/internal/config"
	"github.com/vovakirdan/learnwire/internal/store/sqlite"
)

// UserCreateOptions holds flags for the user create command.
type UserCreateOptions struct {
	*RootOptions
	Name     string
	Email    string
	Password string
}

// NewUserCommand groups account subcommands.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserCreateCommand(rootOpts))
	return cmd
}

func newUserCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print a token for it",
		Example: `  learnwire user create --name Alice --email alice@example.com --password secret1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAuthService(cmd.Context(), opts.RootOptions, func(ctx context.Context, svc *auth.Service) error {
				token, user, err := svc.Register(ctx, opts.Name, opts.Email, opts.Password)
				if err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]string{
					"id":    user.ID,
					"name":  user.Name,
					"email": user.Email,
					"token": token,
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password, at least 6 characters (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:           "token",
		Short:         "Mint a token for an existing user",
		Example:       `  learnwire token --user-id 3f9c...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAuthService(cmd.Context(), rootOpts, func(ctx context.Context, svc *auth.Service) error {
				token, err := svc.TokenForUser(ctx, userID)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}

func withAuthService(ctx context.Context, opts *RootOptions, fn func(context.Context, *auth.Service) error) error {
	cfg, _, err := loadConfig(opts, config.Config{})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, auth.NewService(st, app.JWTConfig(&cfg)))
}

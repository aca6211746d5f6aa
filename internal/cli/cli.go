// Package cli is the administrative command line: schema migration and
// permission management by GitHub login or local user id.
//
//	admin migrate
//	admin permission grant  --user @ed --permission admin
//	admin permission revoke --user 7   --permission admin
//	admin permission show   --user ed
//	admin permission show   --permission admin
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/idevgames/internal/service"
)

// PermissionAdmin is what the permission commands drive.
// *service.PermissionService satisfies it.
type PermissionAdmin interface {
	Grant(ctx context.Context, ref, name string) (*service.UserPermissions, error)
	Revoke(ctx context.Context, ref, name string) (int64, error)
	ShowUser(ctx context.Context, ref string) (*service.UserPermissions, error)
	ShowPermission(ctx context.Context, name string) ([]string, error)
}

// Backend is the opened store plus the services built on it.
type Backend interface {
	Migrate(ctx context.Context) error
	Permissions() PermissionAdmin
	Close() error
}

// Opener opens a Backend. It runs once per command invocation, after flags
// are parsed, so --help never touches the database.
type Opener func(ctx context.Context) (Backend, error)

// NewRootCommand builds the admin command tree.
func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Administer the idevgames database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCommand(open), newPermissionCommand(open))
	return root
}

// withBackend opens the backend, runs fn and closes it again.
func withBackend(cmd *cobra.Command, open Opener, fn func(Backend) error) (err error) {
	b, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, b.Close())
	}()
	return fn(b)
}

func newMigrateCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				if err := b.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func newPermissionCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Grant, revoke and show permissions",
	}
	cmd.AddCommand(
		newGrantCommand(open),
		newRevokeCommand(open),
		newShowCommand(open),
	)
	return cmd
}

func newGrantCommand(open Opener) *cobra.Command {
	var user, name string
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a permission, creating the user from GitHub if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				perms, err := b.Permissions().Grant(cmd.Context(), user, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "granted %q to %s\n", name, describe(perms))
				printPermissions(cmd.OutOrStdout(), perms)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "GitHub login (ed or @ed) or local user id")
	cmd.Flags().StringVar(&name, "permission", "", "permission name, e.g. admin")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("permission")
	return cmd
}

func newRevokeCommand(open Opener) *cobra.Command {
	var user, name string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a permission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				n, err := b.Permissions().Revoke(cmd.Context(), user, name)
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s did not have %q\n", user, name)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %q from %s\n", name, user)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "GitHub login (ed or @ed) or local user id")
	cmd.Flags().StringVar(&name, "permission", "", "permission name, e.g. admin")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("permission")
	return cmd
}

func newShowCommand(open Opener) *cobra.Command {
	var user, name string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user's permissions or a permission's holders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				out := cmd.OutOrStdout()
				if user != "" {
					perms, err := b.Permissions().ShowUser(cmd.Context(), user)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, describe(perms))
					printPermissions(out, perms)
					return nil
				}

				holders, err := b.Permissions().ShowPermission(cmd.Context(), name)
				if err != nil {
					return err
				}
				if len(holders) == 0 {
					fmt.Fprintf(out, "nobody has %q\n", name)
					return nil
				}
				for _, h := range holders {
					fmt.Fprintln(out, h)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "GitHub login (ed or @ed) or local user id")
	cmd.Flags().StringVar(&name, "permission", "", "permission name, e.g. admin")
	cmd.MarkFlagsOneRequired("user", "permission")
	cmd.MarkFlagsMutuallyExclusive("user", "permission")
	return cmd
}

func describe(p *service.UserPermissions) string {
	if p.Login == "" {
		return fmt.Sprintf("user %d (%s)", p.UserID, service.MissingUser)
	}
	return fmt.Sprintf("%s (user %d)", p.Login, p.UserID)
}

func printPermissions(w io.Writer, p *service.UserPermissions) {
	if len(p.Permissions) == 0 {
		fmt.Fprintln(w, "  permissions: none")
		return
	}
	fmt.Fprintf(w, "  permissions: %s\n", strings.Join(p.Permissions, ", "))
}

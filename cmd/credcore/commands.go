package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/password"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the account table in the configured SQL store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), c.settings)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.sql == nil {
				return errNoSQLStore
			}
			if err := a.sql.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func (c *cli) hashPasswordCmd() *cobra.Command {
	var skipPolicy bool
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its argon2id hash with default parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			pw := strings.TrimRight(line, "\r\n")

			cfg := credcore.DefaultConfig().Password
			if !skipPolicy {
				if err := cfg.Policy.Validate(pw); err != nil {
					return err
				}
			}
			h, err := password.NewHasher(cfg.Hash)
			if err != nil {
				return err
			}
			encoded, err := h.Hash(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
	// No signing keys are needed to hash.
	cmd.Annotations = map[string]string{"config": "skip"}
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "hash even if the password fails the composition policy")
	return cmd
}

func (c *cli) unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <email>",
		Short: "Clear the lockout and failure count of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAccount(cmd, args[0], func(a *app, acct *credcore.Account) error {
				if err := a.engine.UnlockAccount(cmd.Context(), acct.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", acct.Email)
				return nil
			})
		},
	}
}

func (c *cli) devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect or clear an account's trusted devices",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <email>",
			Short: "List active trusted devices",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withAccount(cmd, args[0], func(a *app, acct *credcore.Account) error {
					devices, err := a.engine.ListDevices(cmd.Context(), acct.ID)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tLABEL\tCREATED\tEXPIRES")
					for _, d := range devices {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Label,
							d.CreatedAt.UTC().Format(time.RFC3339), d.ExpiresAt.UTC().Format(time.RFC3339))
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "clear <email>",
			Short: "Revoke every trusted device",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withAccount(cmd, args[0], func(a *app, acct *credcore.Account) error {
					if err := a.engine.ClearDevices(cmd.Context(), acct.ID); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "cleared devices for %s\n", acct.Email)
					return nil
				})
			},
		},
	)
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the effective security policy as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), c.settings)
			if err != nil {
				return err
			}
			defer a.Close()

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(a.engine.SecurityReport()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// withAccount opens the app, resolves email and runs fn.
func (c *cli) withAccount(cmd *cobra.Command, emailArg string, fn func(*app, *credcore.Account) error) error {
	email, err := normalizeEmailArg(emailArg)
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), c.settings)
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := a.store.FindByEmail(cmd.Context(), email)
	if errors.Is(err, credcore.ErrAccountNotFound) {
		return fmt.Errorf("no account for %s", email)
	}
	if err != nil {
		return err
	}
	return fn(a, acct)
}

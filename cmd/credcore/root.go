package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/credcore/config"
)

type cli struct {
	configPath string
	settings   *config.Settings
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "credcore",
		Short:         "Operate a credcore account-security deployment",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["config"] == "skip" {
				return nil
			}
			s, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.settings = s
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a .yaml or .toml settings file")

	root.AddCommand(
		c.migrateCmd(),
		c.hashPasswordCmd(),
		c.unlockCmd(),
		c.devicesCmd(),
		c.reportCmd(),
		c.serveCmd(),
		c.loadtestCmd(),
	)
	return root
}

func normalizeEmailArg(arg string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(arg))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("invalid email %q", arg)
	}
	return email, nil
}

var errNoSQLStore = errors.New("migrate needs store driver sqlite or postgres")

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/reqfind/internal/config"
	"github.com/Aman-CERP/reqfind/internal/output"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user/global configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/reqfind/config.yaml)
  3. Project config (.reqfind.yaml in --config-dir)
  4. Environment variables (REQFIND_*), including --config-dir/.env`,
		Example: `  # Create user config with defaults
  reqfind config init

  # Show effective configuration (merged from all sources)
  reqfind config show

  # Undo the last write
  reqfind config restore`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(a))
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigBackupsCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Write the default configuration to the user config file.

With --force an existing file keeps its settings and gains the fields it
is missing. The previous file is backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Upgrade an existing configuration")
	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	configPath := config.GetUserConfigPath()

	cfg := config.NewConfig()
	var added []string
	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Field("location", configPath)
			out.Dim("Use --force to add new defaults (keeps your settings)")
			return nil
		}
		existing, err := config.LoadUserConfig()
		if err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
		added = existing.MergeNewDefaults()
		cfg = existing
	}

	backup, err := config.WriteUserConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if backup == "" {
		out.Success("Created user configuration")
	} else {
		out.Success("Configuration upgraded")
	}
	out.Field("location", configPath)
	if backup != "" {
		out.Field("backup", backup)
		if len(added) == 0 {
			out.Dim("No new fields")
		}
		for _, f := range added {
			out.Statusf("+", "%s", f)
		}
	}
	return nil
}

func newConfigShowCmd(a *app) *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Example: `  reqfind config show
  reqfind config show --json
  reqfind config show --source user`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg *config.Config
			switch source {
			case "merged":
				loaded, err := a.config()
				if err != nil {
					return err
				}
				cfg = loaded
			case "user":
				loaded, err := config.LoadUserConfig()
				if err != nil {
					return err
				}
				if loaded == nil {
					output.New(cmd.OutOrStdout()).Status("", "No user configuration")
					return nil
				}
				cfg = loaded
			case "defaults":
				cfg = config.NewConfig()
			default:
				return fmt.Errorf("unknown source %q (merged, user, defaults)", source)
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, defaults")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func newConfigBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List user config backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				output.New(cmd.OutOrStdout()).Status("", "No backups")
				return nil
			}
			for _, b := range backups {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), b); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore the user config from a backup",
		Long: `Restore the user config from the given backup, or from the newest one.
The current file is backed up before it is replaced.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				backups, err := config.ListUserConfigBackups()
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					return fmt.Errorf("no backups to restore")
				}
				path = backups[0]
			}

			if err := config.RestoreUserConfig(path); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Restored %s", path)
			return nil
		},
	}
}

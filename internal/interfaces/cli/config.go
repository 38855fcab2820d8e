package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kilometers.ai/appdeploy/internal/application/commands"
)

// NewConfigCommand creates the config command
func NewConfigCommand(a *app) *cobra.Command {
	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage configuration settings for appdeploy.

Configuration is read from the config file, then overridden by APPDEPLOY_*
environment variables (a .env file in the working directory is loaded
first). Nested keys use a double underscore, for example
APPDEPLOY_COMMANDS__INSTALL__DIR.`,
	}

	// Add subcommands
	configCmd.AddCommand(NewConfigShowCommand(a))
	configCmd.AddCommand(NewConfigPathCommand(a))
	configCmd.AddCommand(NewConfigInitCommand(a))

	return configCmd
}

// NewConfigShowCommand creates the show subcommand
func NewConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.services()
			if err != nil {
				return err
			}

			config, err := c.ConfigService.LoadConfiguration(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", c.ConfigService.GetConfigurationPath(cmd.Context()))

			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(config); err != nil {
				return fmt.Errorf("failed to render configuration: %w", err)
			}
			return enc.Close()
		},
	}
}

// NewConfigPathCommand creates the path subcommand
func NewConfigPathCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.services()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), c.ConfigService.GetConfigurationPath(cmd.Context()))
			return nil
		},
	}
}

// NewConfigInitCommand creates the init subcommand
func NewConfigInitCommand(a *app) *cobra.Command {
	var (
		projectDir string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init <app-name>",
		Short: "Write a starter configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.services()
			if err != nil {
				return err
			}

			initCmd := commands.NewInitConfigurationCommand(args[0])
			initCmd.ProjectDir = projectDir
			initCmd.Force = force

			result, err := c.ConfigService.InitializeConfiguration(cmd.Context(), initCmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := newStyles(out, a.opts.NoColor)
			fmt.Fprintf(out, "%s %s\n", st.ok.Render(result.Message), st.muted.Render(fmt.Sprint(result.Metadata["config_path"])))
			return nil
		},
	}

	cmd.Flags().StringVar(&projectDir, "project-dir", "", "Project directory to record (default is the current directory)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")

	return cmd
}

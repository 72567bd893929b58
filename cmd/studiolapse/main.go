package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studiolapse/studiolapse-agent/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "studiolapse",
	Short: "Turn recorded clips into watermarked timelapse exports",
	Long: `studiolapse manages timelapse projects and renders them with ffmpeg.

Clips are grouped into projects. An export concatenates a project's clips
oldest-first, speeds them up to fit a 20, 30, 45 or 60 second target,
stamps the watermark and saves the result into the StudioLapse album.

Examples:
  # Create a project and select it
  studiolapse projects create "Night Mural" --select

  # Add clips to the selected project
  studiolapse clips add ~/Movies/part1.mov ~/Movies/part2.mov

  # Render a 30 second timelapse of the selected project
  studiolapse export run --duration 30

  # Run the local API and tray indicator
  studiolapse serve`,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", config.Version, config.GitCommit, config.BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and environment
overrides have been applied, in the config file layout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		out, err := cfg.Effective()
		if err != nil {
			return err
		}
		if path := cfg.FilePath(); path != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", path)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (overrides "+config.EnvConfigFile+")")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path != "" {
			return os.Setenv(config.EnvConfigFile, path)
		}
		return nil
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(clipsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

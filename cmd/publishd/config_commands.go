package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"publishd/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand())
	configCmd.AddCommand(newConfigShowCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&targetPath, "path", "", "Where to write the sample config")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing config file")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	var pathFlag string

	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Load and validate a configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolved, found, err := config.Load(pathFlag)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !found {
				fmt.Fprintln(out, "No config file found, defaults are valid.")
				return nil
			}
			fmt.Fprintf(out, "Configuration at %s is valid.\n", resolved)
			fmt.Fprintf(out, "Watch directory: %s\n", cfg.Paths.WatchDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&pathFlag, "path", "", "Configuration file to validate")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var pathFlag string

	cmd := &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolved, found, err := config.Load(pathFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if found {
				fmt.Fprintln(out, "Config file:", resolved)
			} else {
				fmt.Fprintln(out, "Config file: (defaults)")
			}

			rows := [][]string{
				{"watch_dir", cfg.Paths.WatchDir},
				{"staging_dir", cfg.Paths.StagingDir},
				{"public_dir", cfg.Paths.PublicDir},
				{"log_dir", cfg.Paths.LogDir},
				{"max_concurrent_publish", fmt.Sprintf("%d", cfg.Publish.MaxConcurrent)},
				{"accepted_extensions", strings.Join(cfg.Publish.AcceptedExtensions, ", ")},
				{"default_platform", cfg.Publish.DefaultPlatform},
				{"auto_publish", fmt.Sprintf("%t", cfg.Publish.AutoPublish)},
				{"local.vod_dir", cfg.Platforms.Local.VodDir},
				{"s3.endpoint", cfg.Platforms.S3.Endpoint},
				{"log_format", cfg.Logging.Format},
				{"log_level", cfg.Logging.Level},
			}
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&pathFlag, "path", "", "Configuration file to show")
	return cmd
}

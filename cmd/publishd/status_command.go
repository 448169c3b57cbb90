package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"publishd/internal/config"
	"publishd/internal/deps"
	"publishd/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()

				lockPath := filepath.Join(cfg.Paths.LogDir, "publishd.lock")
				if _, err := os.Stat(lockPath); err == nil {
					fmt.Fprintln(out, "Daemon lock file present:", lockPath)
				} else {
					fmt.Fprintln(out, "Daemon not running")
				}
				fmt.Fprintln(out, "Watch directory:", cfg.Paths.WatchDir)

				rows := make([][]string, 0, 2)
				for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
					avail := "ok"
					if !status.Available {
						avail = "missing"
						if status.Detail != "" {
							avail = status.Detail
						}
					}
					rows = append(rows, []string{status.Name, status.Command, avail})
				}
				fmt.Fprintln(out, renderTable([]string{"Tool", "Command", "Status"}, rows, nil))

				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				total := 0
				for _, count := range stats {
					total += count
				}
				fmt.Fprintf(out, "Packages on record: %d\n", total)
				return nil
			})
		},
	}
}

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"publishd/internal/config"
	"publishd/internal/media"
	"publishd/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the package queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stateFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List packages and their states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				var states []media.State
				if stateFlag != "" {
					state, ok := media.ParseState(stateFlag)
					if !ok {
						return fmt.Errorf("unknown state %q", stateFlag)
					}
					states = append(states, state)
				}

				records, err := st.List(cmd.Context(), states...)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No packages.")
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					errText := ""
					if rec.ErrorCode != media.ErrCodeNone {
						errText = rec.ErrorCode.String()
					}
					rows = append(rows, []string{
						shortID(rec.ID),
						rec.Title,
						rec.PackageType,
						string(rec.State),
						rec.Platform,
						errText,
						rec.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Type", "State", "Platform", "Error", "Updated"},
					rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stateFlag, "state", "", "Only list packages in this state")
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show package counts per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}

				total := 0
				rows := make([][]string, 0, len(stats))
				for _, state := range media.AllStates() {
					count := stats[state]
					if count == 0 {
						continue
					}
					total += count
					rows = append(rows, []string{string(state), strconv.Itoa(count)})
				}
				if total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
					return nil
				}
				rows = append(rows, []string{"total", strconv.Itoa(total)})
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"State", "Packages"},
					rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a package record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				removed, err := st.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no package with id %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed package %s\n", args[0])
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove records in stable states (error, waiting, ready, published)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				cleared, err := st.ClearStable(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d package(s)\n", cleared)
				return nil
			})
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

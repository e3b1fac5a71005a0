package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

func (c *cli) applyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply FILE",
		Short: "Apply a full snapshot CSV as one change source",
		Long: `Apply diffs the snapshot against the current registry and writes every
insert, update and delete in a single change source. Records missing from
the snapshot are soft-deleted.`,
		Example: `  registryctl apply moh-2024-03.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			return c.run(cmd, func(ctx context.Context, svc *core.Service, p core.Principal) error {
				res, err := svc.ApplySnapshot(ctx, p, core.SnapshotUpload{
					Filename: filepath.Base(args[0]),
					Data:     data,
				})
				if err != nil {
					return err
				}
				return c.render(res, func(w io.Writer) {
					fmt.Fprintf(w, "change source: %s\n", res.ChangeSourceID)
					printStats(w, res.Stats)
				})
			})
		},
	}
}

func (c *cli) simulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "simulate FILE",
		Short:   "Report what applying a snapshot would change",
		Example: `  registryctl simulate moh-2024-03.csv -o json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			return c.run(cmd, func(ctx context.Context, svc *core.Service, p core.Principal) error {
				stats, err := svc.SimulateSnapshot(ctx, p, bytes.NewReader(data))
				if err != nil {
					return err
				}
				return c.render(stats, func(w io.Writer) { printStats(w, stats) })
			})
		},
	}
}

func (c *cli) rollbackCmd() *cobra.Command {
	var force, preview bool

	cmd := &cobra.Command{
		Use:   "rollback CHANGE_SOURCE_ID",
		Short: "Revert the effect of a change source",
		Long: `Rollback writes a new ROLLBACK change source that restores every person
the target touched. Persons changed again after the target block the
rollback unless --force is given.`,
		Example: `  registryctl rollback 6f1c... --preview
  registryctl rollback 6f1c... --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *core.Service, p core.Principal) error {
				if preview {
					pv, err := svc.PreviewRollback(ctx, p, args[0])
					if err != nil {
						return err
					}
					return c.render(pv, func(w io.Writer) {
						printStats(w, pv.Stats)
						fmt.Fprintf(w, "skipped:  %d\neligible: %t\n", pv.Skipped, pv.Eligible)
						if len(pv.Conflicts) > 0 {
							fmt.Fprintf(w, "conflicts: %s\n", strings.Join(pv.Conflicts, ", "))
						}
					})
				}

				res, err := svc.Rollback(ctx, p, args[0], core.RollbackOptions{Force: force})
				if err != nil {
					return err
				}
				return c.render(res, func(w io.Writer) {
					fmt.Fprintf(w, "change source: %s\n", res.ChangeSourceID)
					printStats(w, res.Stats)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "roll back persons that changed after the target")
	cmd.Flags().BoolVar(&preview, "preview", false, "show what the rollback would do without writing")
	return cmd
}

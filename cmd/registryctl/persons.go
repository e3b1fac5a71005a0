package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

func (c *cli) exportCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current registry as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *core.Service, _ core.Principal) error {
				w := c.out
				if file != "" {
					f, err := os.Create(file)
					if err != nil {
						return fmt.Errorf("create export file: %w", err)
					}
					defer f.Close()
					w = f
				}

				n, err := svc.ExportPersons(ctx, w)
				if err != nil {
					return err
				}
				if file != "" {
					fmt.Fprintf(c.out, "exported %d persons to %s\n", n, file)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "write to this file instead of stdout")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "history PERSON_ID",
		Short:   "List every version of a person",
		Example: `  registryctl history 0b6d... -o yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *core.Service, p core.Principal) error {
				versions, err := svc.History(ctx, p, args[0])
				if err != nil {
					return err
				}
				return c.render(versions, func(w io.Writer) {
					for _, v := range versions {
						fmt.Fprintf(w, "v%d\t%s\t%s\t%s\n",
							v.VersionNumber, v.ChangeType, v.ChangeSourceID, v.CreatedAt.Format(time.RFC3339))
					}
				})
			})
		},
	}
}

func (c *cli) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [PERSON_ID]",
		Short: "Replay version history and compare it with current state",
		Long: `Verify replays each person's versions and checks the result matches the
stored record. With no argument every person is checked and only
inconsistent ones are reported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *core.Service, p core.Principal) error {
				if len(args) == 1 {
					report, err := svc.VerifyHistory(ctx, p, args[0])
					if err != nil {
						return err
					}
					if err := c.render(report, func(w io.Writer) { printReport(w, report) }); err != nil {
						return err
					}
					if !report.Consistent {
						return fmt.Errorf("history of %s is inconsistent", report.ExternalID)
					}
					return nil
				}

				bad, checked, err := svc.VerifyAll(ctx, p)
				if err != nil {
					return err
				}
				out := struct {
					Checked      int                  `json:"checked"`
					Inconsistent []core.HistoryReport `json:"inconsistent"`
				}{checked, bad}
				if err := c.render(out, func(w io.Writer) {
					fmt.Fprintf(w, "checked %d persons, %d inconsistent\n", checked, len(bad))
					for _, r := range bad {
						printReport(w, r)
					}
				}); err != nil {
					return err
				}
				if len(bad) > 0 {
					return fmt.Errorf("%d persons have inconsistent history", len(bad))
				}
				return nil
			})
		},
	}
}

func printReport(w io.Writer, r core.HistoryReport) {
	state := "ok"
	if !r.Consistent {
		state = "INCONSISTENT"
	}
	fmt.Fprintf(w, "%s\t%s\t%d versions\t%s\n", r.ExternalID, r.PersonID, r.Versions, state)
	for _, p := range r.Problems {
		fmt.Fprintf(w, "  - %s\n", p)
	}
}

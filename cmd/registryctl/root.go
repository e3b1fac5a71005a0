package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

// opener returns a ready service and a func that releases it.
type opener func(ctx context.Context) (*core.Service, func(), error)

type globalFlags struct {
	principal string
	role      string
	output    string
}

// cli carries what every subcommand needs.
type cli struct {
	open  opener
	out   io.Writer
	flags globalFlags
}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	c := &cli{open: open, out: out}

	root := &cobra.Command{
		Use:   "registryctl",
		Short: "Operate the casualty registry from the command line",
		Long: `registryctl applies and simulates snapshots, rolls back change sources,
exports the current registry and inspects person history.

Every command acts as the principal given by --principal and --role.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.principal, "principal", "registryctl", "principal id recorded on change sources and audit entries")
	pf.StringVar(&c.flags.role, "role", string(core.RoleAdmin), "principal role (admin, moderator, member)")
	pf.StringVarP(&c.flags.output, "output", "o", "text", "output format (text, json, yaml)")

	root.AddCommand(
		c.applyCmd(),
		c.simulateCmd(),
		c.rollbackCmd(),
		c.exportCmd(),
		c.historyCmd(),
		c.verifyCmd(),
	)
	return root
}

func (c *cli) principal() (core.Principal, error) {
	role, ok := core.ParseRole(c.flags.role)
	if !ok {
		return core.Principal{}, fmt.Errorf("unknown role %q", c.flags.role)
	}
	if c.flags.principal == "" {
		return core.Principal{}, fmt.Errorf("--principal is required")
	}
	return core.Principal{ID: c.flags.principal, Role: role}, nil
}

// run opens the service, resolves the principal and calls fn.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, svc *core.Service, p core.Principal) error) error {
	p, err := c.principal()
	if err != nil {
		return err
	}
	switch c.flags.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", c.flags.output)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	return fn(ctx, svc, p)
}

// render writes v as json or yaml, or calls text for the default format.
func (c *cli) render(v any, text func(w io.Writer)) error {
	switch c.flags.output {
	case "json":
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		_, err = c.out.Write(b)
		return err
	default:
		text(c.out)
		return nil
	}
}

func printStats(w io.Writer, s core.Stats) {
	fmt.Fprintf(w, "inserted: %d\nupdated:  %d\ndeleted:  %d\n", s.Inserted, s.Updated, s.Deleted)
}

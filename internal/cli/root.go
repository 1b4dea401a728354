// Package cli implements licensectl, the operator CLI for brand
// provisioning and schema migrations.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type BrandAdmin interface {
	CreateBrand(ctx context.Context, input application.CreateBrandInput) (application.BrandCredentials, error)
	RotateBrandCredential(ctx context.Context, slug string) (application.BrandCredentials, error)
	SetBrandActive(ctx context.Context, slug string, active bool) (domain.Brand, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
}

// Env is what a command needs once configuration has been resolved.
type Env struct {
	Admin   BrandAdmin
	Migrate func(ctx context.Context) ([]string, error)
	Close   func()
}

type Opener func(ctx context.Context, configPath string) (*Env, error)

type options struct {
	configPath string
	output     string
	open       Opener
}

func NewRootCommand(open Opener) *cobra.Command {
	opts := &options{open: open}
	root := &cobra.Command{
		Use:   "licensectl",
		Short: "Operate the M91 license service",
		Long: `licensectl provisions brands (tenants) and manages the license schema.
Brand API keys are printed once at creation or rotation and are never stored in plain text.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.output {
			case "text", "json":
				return nil
			default:
				return fmt.Errorf("unsupported output format %q", opts.output)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "configs/default.yaml", "config file")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(newMigrateCommand(opts), newBrandCommand(opts))
	return root
}

// withEnv opens the environment for the duration of one command.
func (o *options) withEnv(cmd *cobra.Command, fn func(ctx context.Context, env *Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := o.open(ctx, o.configPath)
	if err != nil {
		return err
	}
	if env.Close != nil {
		defer env.Close()
	}
	return fn(ctx, env)
}

func (o *options) print(w io.Writer, data any, text func(tw *tabwriter.Writer)) error {
	if o.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd, func(ctx context.Context, env *Env) error {
				applied, err := env.Migrate(ctx)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				return opts.print(cmd.OutOrStdout(), map[string]any{"applied": applied}, func(tw *tabwriter.Writer) {
					if len(applied) == 0 {
						fmt.Fprintln(tw, "schema up to date")
						return
					}
					for _, name := range applied {
						fmt.Fprintf(tw, "applied\t%s\n", name)
					}
				})
			})
		},
	}
}

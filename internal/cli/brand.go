package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

func newBrandCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brand",
		Short: "Manage brands (tenants)",
	}
	cmd.AddCommand(
		newBrandCreateCommand(opts),
		newBrandRotateCommand(opts),
		newBrandToggleCommand(opts, "enable", true),
		newBrandToggleCommand(opts, "disable", false),
		newBrandListCommand(opts),
	)
	return cmd
}

func newBrandCreateCommand(opts *options) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:     "create <slug>",
		Short:   "Create a brand and print its API key",
		Example: "  licensectl brand create acme --name \"Acme Corp\"",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = args[0]
			}
			return opts.withEnv(cmd, func(ctx context.Context, env *Env) error {
				creds, err := env.Admin.CreateBrand(ctx, application.CreateBrandInput{Name: name, Slug: args[0]})
				if err != nil {
					return fmt.Errorf("create brand: %w", err)
				}
				return opts.printCredentials(cmd, creds)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the slug)")
	return cmd
}

func newBrandRotateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key <slug>",
		Short: "Replace a brand's API key; the old key stops working immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd, func(ctx context.Context, env *Env) error {
				creds, err := env.Admin.RotateBrandCredential(ctx, args[0])
				if err != nil {
					return fmt.Errorf("rotate brand key: %w", err)
				}
				return opts.printCredentials(cmd, creds)
			})
		},
	}
}

func newBrandToggleCommand(opts *options, verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <slug>",
		Short: verb + " a brand's API access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd, func(ctx context.Context, env *Env) error {
				brand, err := env.Admin.SetBrandActive(ctx, args[0], active)
				if err != nil {
					return fmt.Errorf("%s brand: %w", verb, err)
				}
				return opts.printBrands(cmd, []domain.Brand{brand})
			})
		},
	}
}

func newBrandListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List brands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd, func(ctx context.Context, env *Env) error {
				brands, err := env.Admin.ListBrands(ctx)
				if err != nil {
					return fmt.Errorf("list brands: %w", err)
				}
				return opts.printBrands(cmd, brands)
			})
		},
	}
}

func (o *options) printCredentials(cmd *cobra.Command, creds application.BrandCredentials) error {
	return o.print(cmd.OutOrStdout(), creds, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "brand\t%s\n", creds.Brand.Slug)
		fmt.Fprintf(tw, "id\t%s\n", creds.Brand.ID)
		fmt.Fprintf(tw, "api_key\t%s\n", creds.APIKey)
	})
}

func (o *options) printBrands(cmd *cobra.Command, brands []domain.Brand) error {
	return o.print(cmd.OutOrStdout(), brands, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "SLUG\tNAME\tACTIVE\tKEY ID\tID")
		for _, b := range brands {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", b.Slug, b.Name, b.Active, b.APIKeyID, b.ID)
		}
	})
}

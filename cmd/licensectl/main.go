package main

import (
	"context"
	"os"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/app/bootstrap"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/cli"
)

func main() {
	root := cli.NewRootCommand(func(ctx context.Context, configPath string) (*cli.Env, error) {
		core, err := bootstrap.NewCore(ctx, configPath, bootstrap.SkipMigrations())
		if err != nil {
			return nil, err
		}
		return &cli.Env{
			Admin: core.Service,
			Migrate: func(ctx context.Context) ([]string, error) {
				return postgres.RunMigrations(ctx, core.DB)
			},
			Close: func() { core.Close(context.Background()) },
		}, nil
	})
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

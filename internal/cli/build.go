package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/orreryhq/orrery/internal/baseurl"
	"github.com/orreryhq/orrery/internal/build"
	"github.com/orreryhq/orrery/internal/config"
	"github.com/orreryhq/orrery/internal/registry"
	"github.com/orreryhq/orrery/internal/widget"
)

var (
	okLabel   = color.New(color.FgGreen).SprintFunc()
	hashLabel = color.New(color.Faint).SprintFunc()
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Scan widget sources, write content-addressed bundles, and commit a generation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runBuild(ctx, currentConfig)
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(ctx context.Context, cfg *config.Config) error {
	resolver, err := baseurl.New(cfg.Assets.BaseURL)
	if err != nil {
		return err
	}

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := os.MkdirAll(cfg.Assets.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	orch := build.New(
		widget.NewDirScanner(cfg.Assets.SourceDir),
		resolver,
		registry.New(),
		store,
		cfg.Assets.OutputDir,
		cfg.Assets.PublicPath,
	)

	gen, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	printBuildSummary(gen)
	return nil
}

// openStore returns the configured manifest store and a cleanup func for any
// underlying connection.
func openStore(ctx context.Context, cfg *config.Config) (registry.Store, func(), error) {
	if cfg.Registry.Backend == config.BackendPostgres {
		pool, err := pgxpool.New(ctx, cfg.Registry.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := registry.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	}
	return registry.NewFileStore(cfg.Registry.ManifestPath), func() {}, nil
}

func printBuildSummary(gen *widget.Generation) {
	fmt.Printf("generation %d (%d widgets)\n", gen.ID, len(gen.Widgets))
	for _, e := range gen.Widgets {
		fmt.Printf("  %s %s\n", okLabel(e.WidgetID), e.Title)
		for _, k := range widget.Kinds {
			fmt.Printf("    %-6s %s %s\n", k, e.Path(k), hashLabel(e.Hashes[k]))
		}
	}
}

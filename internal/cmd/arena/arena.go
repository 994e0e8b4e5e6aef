// Package arena parses arena command flags and starts the service runtime.
package arena

import (
	"context"
	"flag"

	"github.com/ichorlabs/rumble/internal/arena/app"
	entrypoint "github.com/ichorlabs/rumble/internal/platform/cmd"
)

// ParseConfig parses environment and flags into the service configuration.
func ParseConfig(fs *flag.FlagSet, args []string) (app.Config, error) {
	var cfg app.Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return app.Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "The arena HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the arena sqlite database")
	fs.StringVar(&cfg.LedgerURL, "ledger", cfg.LedgerURL, "Base URL of the settlement ledger API")
	fs.IntVar(&cfg.Slots, "slots", cfg.Slots, "Number of concurrent rumble slots")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// Run starts the arena service.
func Run(ctx context.Context, cfg app.Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceArena, func(ctx context.Context) error {
		rt, err := app.NewRuntime(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = rt.Close()
		}()
		return rt.Run(ctx)
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"repricer/api"
	"repricer/db/catalog"
	"repricer/db/ingestion"
	contract "repricer/pkg/api"
	pricingerrors "repricer/pkg/errors"
)

// =============================================================================
// REPRICE COMMAND
// =============================================================================

func repriceCommand() *cli.Command {
	return &cli.Command{
		Name:  "reprice",
		Usage: "Recompute and store the listed price of one item",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "product", Usage: "Product id", Required: true},
			&cli.StringFlag{Name: "manufacturer", Usage: "Manufacturer id", Required: true},
		},
		Action: runReprice,
	}
}

func runReprice(c *cli.Context) error {
	svc, err := openServices(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	pair := contract.Pair{ProductID: c.String("product"), ManufacturerID: c.String("manufacturer")}
	outcome, err := svc.repricer.RepriceOne(c.Context, pair)
	if err != nil {
		return err
	}

	return outputJSON(c.App.Writer, contract.RepriceResponse{
		Pair:          outcome.Pair,
		Result:        outcome.Result,
		PreviousPrice: outcome.PreviousPrice,
		Changed:       outcome.Changed,
	})
}

// =============================================================================
// SWEEP COMMAND
// =============================================================================

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:   "sweep",
		Usage:  "Reprice every item in the catalog once",
		Action: runSweep,
	}
}

func runSweep(c *cli.Context) error {
	svc, err := openServices(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	summary, err := svc.repricer.Sweep(c.Context)
	if err != nil {
		return err
	}
	if err := outputJSON(c.App.Writer, summary); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d item(s) failed", summary.Failed), 2)
	}
	return nil
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the repricer API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Value:   "*",
				Usage:   "Comma-separated list of allowed CORS origins",
				EnvVars: []string{"REPRICER_CORS_ORIGINS"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Key required in X-API-Key for admin routes; empty disables the check",
				EnvVars: []string{"API_KEY"},
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "Run a background sweep at this interval (0 disables)",
				EnvVars: []string{"REPRICER_SWEEP_INTERVAL"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	svc, err := openServices(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if c.String("api-key") == "" {
		log.Warn().Msg("API key not configured; admin routes are unauthenticated")
	}

	deps := api.Dependencies{
		Config:   svc.catalog,
		Repricer: svc.repricer,
		Ready:    map[string]api.Pinger{"catalog": svc.catalog},
	}
	if svc.audit != nil {
		deps.History = svc.audit
		deps.Ready["clickhouse"] = svc.audit
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	if interval := c.Duration("sweep-interval"); interval > 0 {
		go func() {
			if err := svc.repricer.RunEvery(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Background re-pricer stopped")
			}
		}()
	}

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")
	cfg.CORSOrigins = splitList(c.String("cors-origins"))
	cfg.APIKey = c.String("api-key")

	server := api.NewServer(deps, cfg, log.Logger)
	return server.StartWithGracefulShutdown(ctx)
}

// =============================================================================
// CONFIG COMMANDS
// =============================================================================

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect or update the pricing policy",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the active pricing policy",
				Action: runConfigShow,
			},
			{
				Name:   "set",
				Usage:  "Write the pricing policy; unset flags keep their stored or default value",
				Flags:  policyCLIFlags(),
				Action: runConfigSet,
			},
		},
	}
}

func runConfigShow(c *cli.Context) error {
	store, err := openCatalog(c)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg, err := store.GetPricingConfig(c.Context)
	if err != nil {
		return err
	}
	if cfg.Inverted() {
		log.Warn().Msg("Margin ceiling is below floor; ceiling wins")
	}
	return outputJSON(c.App.Writer, cfg)
}

func runConfigSet(c *cli.Context) error {
	store, err := openCatalog(c)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg, err := store.GetPricingConfig(c.Context)
	switch {
	case errors.Is(err, pricingerrors.ErrNoConfiguration):
		cfg = catalog.Defaults()
	case err != nil:
		return err
	}

	if err := applyPolicyFlags(c, &cfg, true); err != nil {
		return err
	}
	if err := store.SavePricingConfig(c.Context, cfg); err != nil {
		return err
	}

	log.Info().Strs("changed", changedPolicyFlags(c)).Msg("Pricing policy saved")
	return outputJSON(c.App.Writer, cfg)
}

func changedPolicyFlags(c *cli.Context) []string {
	var names []string
	for _, pf := range policyFlags {
		if c.IsSet(pf.name) {
			names = append(names, pf.name)
		}
	}
	return names
}

// =============================================================================
// MIGRATE COMMAND
// =============================================================================

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create catalog (and ClickHouse, when enabled) tables",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Value: time.Minute,
				Usage: "Migration timeout",
			},
		},
		Action: runMigrate,
	}
}

func runMigrate(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	store, err := openCatalog(c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	migrated := []string{"catalog"}

	audit, err := openAudit(c)
	if err != nil {
		return err
	}
	if audit != nil {
		defer audit.Close()
		if err := audit.EnsureSchema(ctx); err != nil {
			return err
		}
		migrated = append(migrated, "clickhouse")
	}

	fmt.Fprintf(c.App.Writer, "Migrated: %s\n", strings.Join(migrated, ", "))
	return nil
}

// =============================================================================
// QUOTES COMMAND
// =============================================================================

func quotesCommand() *cli.Command {
	return &cli.Command{
		Name:  "quotes",
		Usage: "Manage competitor quotes",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Replace active quotes from a CSV file (product_id,manufacturer_id,competitor,price[,observed_at])",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "CSV file; - reads stdin", Required: true},
				},
				Action: runQuotesImport,
			},
		},
	}
}

func runQuotesImport(c *cli.Context) error {
	in := os.Stdin
	if path := c.String("file"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open quotes file: %w", err)
		}
		defer f.Close()
		in = f
	}

	recs, err := ingestion.ReadCSV(in)
	if err != nil {
		return err
	}

	store, err := openCatalog(c)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := ingestion.NewImporter(store, log.Logger).Ingest(c.Context, recs)
	if err != nil {
		return err
	}
	return outputJSON(c.App.Writer, result)
}

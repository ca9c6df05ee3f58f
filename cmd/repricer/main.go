// Repricer CLI - competitive pricing policy engine
//
// Usage:
//
//	repricer compute --quotes 13050,13158,13200
//	repricer reprice --product p1 --manufacturer m1
//	repricer sweep
//	repricer serve --sweep-interval 1h
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"repricer/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	platform.LoadDotEnv(".env")

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "repricer",
		Usage:   "Competitive pricing policy engine",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"REPRICER_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "env",
				Value:   "production",
				Usage:   "Runtime environment; development enables console logging",
				EnvVars: []string{"ENV"},
			},
			&cli.StringFlag{
				Name:    "db-driver",
				Value:   "sqlite",
				Usage:   "Catalog database driver (postgres, sqlite)",
				EnvVars: []string{"REPRICER_DB_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "db-dsn",
				Value:   "file:repricer.db",
				Usage:   "Catalog database DSN",
				EnvVars: []string{"REPRICER_DB_DSN", "DATABASE_URL"},
			},
			&cli.BoolFlag{
				Name:    "clickhouse-enabled",
				Usage:   "Record pricing decisions in ClickHouse",
				EnvVars: []string{"CLICKHOUSE_ENABLED"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "repricer",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka brokers for price-change events; empty disables publishing",
				EnvVars: []string{"KAFKA_BROKERS"},
			},
			&cli.StringFlag{
				Name:    "kafka-topic",
				Value:   "pricing.price-changed",
				Usage:   "Kafka topic for price-change events",
				EnvVars: []string{"KAFKA_TOPIC"},
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Value:   4,
				Usage:   "Items repriced in parallel during a sweep",
				EnvVars: []string{"REPRICER_CONCURRENCY"},
			},
		},

		Before: func(c *cli.Context) error {
			platform.InitLogger(c.String("env"), c.String("log-level"))
			return nil
		},

		Commands: []*cli.Command{
			computeCommand(),
			repriceCommand(),
			sweepCommand(),
			serveCommand(),
			configCommand(),
			migrateCommand(),
			quotesCommand(),
		},
	}
}

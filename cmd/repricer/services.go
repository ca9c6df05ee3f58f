package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"repricer/db/catalog"
	"repricer/db/clickhouse"
	"repricer/decision/sweep"
	"repricer/events/kafka"
	"repricer/pkg/platform"
)

// services holds the backends opened for one command.
type services struct {
	catalog  *catalog.Store
	audit    *clickhouse.Store
	events   *kafka.Publisher
	repricer *sweep.Repricer
	logger   zerolog.Logger
}

func openCatalog(c *cli.Context) (*catalog.Store, error) {
	store, err := catalog.Open(c.String("db-driver"), c.String("db-dsn"))
	if err != nil {
		return nil, err
	}
	if err := store.Ping(c.Context); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to reach catalog database: %w", err)
	}
	return store, nil
}

func openAudit(c *cli.Context) (*clickhouse.Store, error) {
	if !c.Bool("clickhouse-enabled") {
		return nil, nil
	}
	store, err := clickhouse.NewStore(&clickhouse.Config{
		Host:     c.String("clickhouse-host"),
		Port:     c.Int("clickhouse-port"),
		Database: c.String("clickhouse-database"),
		Username: c.String("clickhouse-user"),
		Password: c.String("clickhouse-password"),
		Debug:    platform.GetEnvBool("CLICKHOUSE_DEBUG", false),
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// kafkaConfig tunes the producer from the environment.
func kafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = platform.GetEnv("KAFKA_CLIENT_ID", "repricer")
	cfg.Producer.Timeout = platform.GetEnvDuration("KAFKA_PRODUCER_TIMEOUT", 10*time.Second)
	cfg.Producer.Retry.Max = platform.GetEnvInt("KAFKA_PRODUCER_RETRIES", 3)
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// openServices connects the catalog plus the optional audit log and event publisher.
func openServices(c *cli.Context) (*services, error) {
	s := &services{logger: log.Logger}

	var err error
	if s.catalog, err = openCatalog(c); err != nil {
		return nil, err
	}
	if s.audit, err = openAudit(c); err != nil {
		s.Close()
		return nil, err
	}
	if brokers := splitList(c.String("kafka-brokers")); len(brokers) > 0 {
		if s.events, err = kafka.NewPublisher(brokers, c.String("kafka-topic"), kafkaConfig()); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.repricer = &sweep.Repricer{
		Config:      s.catalog,
		Quotes:      s.catalog,
		Prices:      s.catalog,
		Logger:      s.logger,
		Concurrency: c.Int("concurrency"),
	}
	// Assign optional collaborators only when present so the interfaces stay nil.
	if s.audit != nil {
		s.repricer.Audit = s.audit
	}
	if s.events != nil {
		s.repricer.Events = s.events
	}

	s.logger.Debug().
		Str("db_driver", c.String("db-driver")).
		Bool("audit", s.audit != nil).
		Bool("events", s.events != nil).
		Msg("Services ready")
	return s, nil
}

func (s *services) Close() {
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close kafka publisher")
		}
	}
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close ClickHouse")
		}
	}
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close catalog database")
		}
	}
}

package main

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	credentials "github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/security"
	sqlstore "github.com/goliatone/go-credentials/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	cfg DatabaseConfig
}

func (c persistenceConfig) GetDebug() bool                { return c.cfg.Debug }
func (c persistenceConfig) GetDriver() string             { return c.cfg.Driver }
func (c persistenceConfig) GetServer() string             { return c.cfg.DSN }
func (c persistenceConfig) GetPingTimeout() time.Duration { return c.cfg.PingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string     { return "tokenctl" }

func dialectFor(driver string) (schema.Dialect, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "postgres":
		return pgdialect.New(), nil
	case "sqlite3":
		return sqlitedialect.New(), nil
	default:
		return nil, fmt.Errorf("tokenctl: unsupported database driver %q", driver)
	}
}

func openDatabase(cfg DatabaseConfig) (*persistence.Client, error) {
	dialect, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("tokenctl: database dsn is required")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("tokenctl: open database: %w", err)
	}
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{cfg: cfg}, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tokenctl: connect database: %w", err)
	}
	return client, nil
}

// environment owns the database handle behind a service.
type environment struct {
	client  *persistence.Client
	service *credentials.Service
}

func openEnvironment(g *Globals) (*environment, error) {
	client, err := openDatabase(g.Database)
	if err != nil {
		return nil, err
	}

	factoryOpts := []sqlstore.FactoryOption{}
	if strings.TrimSpace(g.AppKey) != "" {
		sealer, err := security.NewAppKeySealerFromString(g.AppKey)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		factoryOpts = append(factoryOpts, sqlstore.WithTokenSealer(sealer))
	}

	opts := []credentials.Option{
		credentials.WithPersistenceClient(client),
		credentials.WithRepositoryFactory(sqlstore.NewRepositoryFactory(factoryOpts...)),
		credentials.WithConfigProvider(core.NewCfgxConfigProvider(core.EnvConfigLoader{})),
	}
	if logger := g.logger(); logger != nil {
		opts = append(opts, credentials.WithLogger(logger))
	}
	service, err := credentials.NewService(credentials.DefaultConfig(), opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &environment{client: client, service: service}, nil
}

func (e *environment) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}

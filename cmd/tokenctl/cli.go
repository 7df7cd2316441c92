package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	credentials "github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/migrations"
)

// DatabaseConfig selects the linked_accounts database.
type DatabaseConfig struct {
	Driver      string        `help:"database/sql driver (postgres or sqlite3)" default:"sqlite3" enum:"postgres,sqlite3" env:"CREDENTIALS_DB_DRIVER"`
	DSN         string        `help:"database connection string" default:"file:credentials.db?_foreign_keys=on" env:"CREDENTIALS_DB_DSN" name:"dsn"`
	PingTimeout time.Duration `help:"database ping timeout" default:"5s" env:"CREDENTIALS_DB_PING_TIMEOUT"`
	Debug       bool          `help:"log SQL queries" env:"CREDENTIALS_DB_DEBUG"`
}

// Globals are shared by every command.
type Globals struct {
	Database DatabaseConfig `embed:"" prefix:"db-"`
	AppKey   string         `help:"key used to seal tokens at rest" env:"CREDENTIALS_APP_KEY"`
	Verbose  bool           `help:"log service activity to stderr" short:"v"`
	LogLevel string         `help:"log level used with --verbose" default:"debug" enum:"trace,debug,info,warn,error" env:"CREDENTIALS_LOG_LEVEL"`
	Timeout  time.Duration  `help:"overall command timeout" default:"30s"`

	stdout io.Writer `kong:"-"`
	stderr io.Writer `kong:"-"`
}

type CLI struct {
	Globals

	Migrate  MigrateCmd  `cmd:"" help:"Apply the linked_accounts migrations"`
	Token    TokenCmd    `cmd:"" help:"Print a valid access token, refreshing it when stale"`
	Accounts AccountsCmd `cmd:"" help:"List the accounts linked by a user"`
	CanLink  CanLinkCmd  `cmd:"" name:"can-link" help:"Check whether a user may link a provider account"`
	Link     LinkCmd     `cmd:"" help:"Link a provider account with an initial credential"`
	Unlink   UnlinkCmd   `cmd:"" help:"Remove a linked account"`
}

func (g *Globals) out() io.Writer {
	if g.stdout != nil {
		return g.stdout
	}
	return os.Stdout
}

func (g *Globals) commandContext() (context.Context, context.CancelFunc) {
	if g.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), g.Timeout)
}

func (g *Globals) logger() core.Logger {
	if !g.Verbose {
		return nil
	}
	out := g.stderr
	if out == nil {
		out = os.Stderr
	}
	level := g.LogLevel
	if level == "" {
		level = "debug"
	}
	return newCLILogger(out, level)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(g *Globals) error {
	ctx, cancel := g.commandContext()
	defer cancel()

	client, err := openDatabase(g.Database)
	if err != nil {
		return err
	}
	defer client.Close()

	dialect, err := migrations.DialectForDriver(g.Database.Driver)
	if err != nil {
		return err
	}
	if err := migrations.Apply(ctx, client, dialect); err != nil {
		return err
	}
	fmt.Fprintf(g.out(), "migrations applied (%s)\n", dialect)
	return nil
}

type TokenCmd struct {
	AccountID string `arg:"" help:"linked account id"`
	Reveal    bool   `help:"print the full access token"`
}

func (c *TokenCmd) Run(g *Globals) error {
	ctx, cancel := g.commandContext()
	defer cancel()

	env, err := openEnvironment(g)
	if err != nil {
		return err
	}
	defer env.Close()

	outcome, err := env.service.EnsureFresh(ctx, c.AccountID)
	if err != nil {
		return err
	}
	return writeOutcome(g.out(), outcome, c.Reveal)
}

type AccountsCmd struct {
	User string `help:"user id" required:""`
}

func (c *AccountsCmd) Run(g *Globals) error {
	ctx, cancel := g.commandContext()
	defer cancel()

	env, err := openEnvironment(g)
	if err != nil {
		return err
	}
	defer env.Close()

	accounts, err := env.service.ListLinkedAccounts(ctx, c.User)
	if err != nil {
		return err
	}
	return writeAccounts(g.out(), accounts)
}

type CanLinkCmd struct {
	User     string `help:"user id" required:""`
	Provider string `help:"provider kind" required:"" enum:"tiktok,twitter,google,facebook,instagram"`
}

func (c *CanLinkCmd) Run(g *Globals) error {
	ctx, cancel := g.commandContext()
	defer cancel()

	env, err := openEnvironment(g)
	if err != nil {
		return err
	}
	defer env.Close()

	eligibility, err := env.service.CanLinkAccount(ctx, c.User, core.ProviderKind(c.Provider))
	if err != nil {
		return err
	}
	if eligibility.CanLink {
		fmt.Fprintln(g.out(), "can link")
		return nil
	}
	fmt.Fprintf(g.out(), "cannot link: %s\n", eligibility.Reason)
	return nil
}

type LinkCmd struct {
	User              string        `help:"user id" required:""`
	Provider          string        `help:"provider kind" required:"" enum:"tiktok,twitter,google,facebook,instagram"`
	ProviderAccountID string        `help:"account id assigned by the provider" required:"" name:"provider-account-id"`
	AccessToken       string        `help:"initial access token" required:"" env:"CREDENTIALS_ACCESS_TOKEN"`
	RefreshToken      string        `help:"initial refresh token" env:"CREDENTIALS_REFRESH_TOKEN"`
	ExpiresIn         time.Duration `help:"lifetime of the access token, unknown when zero"`
}

func (c *LinkCmd) Run(g *Globals) error {
	ctx, cancel := g.commandContext()
	defer cancel()

	env, err := openEnvironment(g)
	if err != nil {
		return err
	}
	defer env.Close()

	input := credentials.LinkAccountInput{
		UserID:            c.User,
		Provider:          core.ProviderKind(c.Provider),
		ProviderAccountID: c.ProviderAccountID,
		AccessToken:       c.AccessToken,
	}
	if strings.TrimSpace(c.RefreshToken) != "" {
		input.RefreshToken = core.StringPtr(c.RefreshToken)
	}
	if c.ExpiresIn > 0 {
		input.ExpiresAt = core.TimePtr(time.Now().UTC().Add(c.ExpiresIn))
	}
	account, err := env.service.LinkAccount(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out(), "linked %s account %s\n", account.Provider, account.ID)
	return nil
}

type UnlinkCmd struct {
	User      string `help:"user id" required:""`
	AccountID string `arg:"" help:"linked account id"`
}

func (c *UnlinkCmd) Run(g *Globals) error {
	ctx, cancel := g.commandContext()
	defer cancel()

	env, err := openEnvironment(g)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.service.UnlinkAccount(ctx, c.User, c.AccountID); err != nil {
		return err
	}
	fmt.Fprintf(g.out(), "unlinked %s\n", c.AccountID)
	return nil
}

func writeOutcome(w io.Writer, outcome core.TokenOutcome, reveal bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "account\t%s\n", outcome.AccountID)
	if outcome.Provider != "" {
		fmt.Fprintf(tw, "provider\t%s\n", outcome.Provider)
	}
	fmt.Fprintf(tw, "state\t%s\n", outcome.State)
	if outcome.ExpiresAt != nil {
		fmt.Fprintf(tw, "expires_at\t%s\n", outcome.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if outcome.Valid() {
		token := redactToken(outcome.AccessToken)
		if reveal {
			token = outcome.AccessToken
		}
		fmt.Fprintf(tw, "access_token\t%s\n", token)
	} else {
		fmt.Fprintf(tw, "action\t%s\n", "relink required")
	}
	if outcome.Failure != nil {
		fmt.Fprintf(tw, "failure\t%s\n", outcome.Failure.Error())
	}
	if outcome.StoreErr != nil {
		fmt.Fprintf(tw, "store_error\t%s\n", outcome.StoreErr.Error())
	}
	return tw.Flush()
}

func writeAccounts(w io.Writer, accounts []core.LinkedAccount) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tPROVIDER ACCOUNT\tLINKED AT")
	for _, account := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			account.ID,
			account.Provider,
			account.ProviderAccountID,
			account.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	return tw.Flush()
}

// redactToken keeps the first four characters.
func redactToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

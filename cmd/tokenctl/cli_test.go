package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-credentials/core"
)

func TestCLI_ParsesTokenCommand(t *testing.T) {
	var parsed CLI
	parser, err := kong.New(&parsed, kong.Name("tokenctl"), kong.Exit(func(int) {}))
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	ctx, err := parser.Parse([]string{"token", "acct-1", "--reveal", "--db-driver", "postgres", "--db-dsn", "postgres://localhost/credentials"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ctx.Command() != "token <account-id>" {
		t.Fatalf("unexpected command %q", ctx.Command())
	}
	if parsed.Token.AccountID != "acct-1" || !parsed.Token.Reveal {
		t.Fatalf("unexpected token flags %+v", parsed.Token)
	}
	if parsed.Database.Driver != "postgres" || parsed.Database.DSN != "postgres://localhost/credentials" {
		t.Fatalf("unexpected database flags %+v", parsed.Database)
	}
}

func TestCLI_RejectsUnknownDriver(t *testing.T) {
	var parsed CLI
	parser, err := kong.New(&parsed, kong.Name("tokenctl"), kong.Exit(func(int) {}))
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	if _, err := parser.Parse([]string{"migrate", "--db-driver", "oracle"}); err == nil {
		t.Fatalf("expected unsupported driver to fail parsing")
	}
}

func TestDialectFor(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite3"} {
		if _, err := dialectFor(driver); err != nil {
			t.Fatalf("expected dialect for %s: %v", driver, err)
		}
	}
	if _, err := dialectFor("mysql"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestWriteOutcome_RedactsUnlessRevealed(t *testing.T) {
	outcome := core.TokenOutcome{
		AccountID:   "acct-1",
		Provider:    core.ProviderGoogle,
		State:       core.TokenStateRefreshed,
		AccessToken: "ya29.secret-token",
		ExpiresAt:   core.TimePtr(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}

	var redacted bytes.Buffer
	if err := writeOutcome(&redacted, outcome, false); err != nil {
		t.Fatalf("write outcome: %v", err)
	}
	if strings.Contains(redacted.String(), "secret-token") {
		t.Fatalf("expected token to be redacted, got %q", redacted.String())
	}
	if !strings.Contains(redacted.String(), "ya29****") {
		t.Fatalf("expected redacted prefix, got %q", redacted.String())
	}

	var revealed bytes.Buffer
	if err := writeOutcome(&revealed, outcome, true); err != nil {
		t.Fatalf("write outcome: %v", err)
	}
	if !strings.Contains(revealed.String(), "ya29.secret-token") {
		t.Fatalf("expected full token, got %q", revealed.String())
	}
	if !strings.Contains(revealed.String(), "2026-03-01T12:00:00Z") {
		t.Fatalf("expected expiry, got %q", revealed.String())
	}
}

func TestWriteOutcome_ReportsRelink(t *testing.T) {
	var out bytes.Buffer
	outcome := core.TokenOutcome{
		AccountID: "acct-1",
		Provider:  core.ProviderTikTok,
		State:     core.TokenStateRefreshFailed,
		Failure:   core.NewPreconditionError(core.ProviderTikTok, "no refresh token available"),
	}
	if err := writeOutcome(&out, outcome, true); err != nil {
		t.Fatalf("write outcome: %v", err)
	}
	if !strings.Contains(out.String(), "relink required") || !strings.Contains(out.String(), "no refresh token available") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRedactToken(t *testing.T) {
	if got := redactToken("abc"); got != "****" {
		t.Fatalf("expected short token to be fully masked, got %q", got)
	}
	if got := redactToken("abcdefgh"); got != "abcd****" {
		t.Fatalf("unexpected redaction %q", got)
	}
}

func TestCommands_MigrateLinkAndReadToken(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "credentials.db") + "?_foreign_keys=on"
	var out bytes.Buffer
	g := &Globals{
		Database: DatabaseConfig{Driver: "sqlite3", DSN: dsn, PingTimeout: time.Second},
		AppKey:   "tokenctl-test-key",
		Timeout:  10 * time.Second,
		stdout:   &out,
	}

	if err := (&MigrateCmd{}).Run(g); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	link := &LinkCmd{
		User:              "user-1",
		Provider:          "instagram",
		ProviderAccountID: "ig-1",
		AccessToken:       "IGQVJ.long-lived",
	}
	if err := link.Run(g); err != nil {
		t.Fatalf("link: %v", err)
	}

	out.Reset()
	if err := (&AccountsCmd{User: "user-1"}).Run(g); err != nil {
		t.Fatalf("accounts: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "instagram") {
		t.Fatalf("unexpected accounts output %q", out.String())
	}
	accountID := strings.Fields(lines[1])[0]

	out.Reset()
	if err := (&TokenCmd{AccountID: accountID, Reveal: true}).Run(g); err != nil {
		t.Fatalf("token: %v", err)
	}
	if !strings.Contains(out.String(), "fresh") || !strings.Contains(out.String(), "IGQVJ.long-lived") {
		t.Fatalf("unexpected token output %q", out.String())
	}

	out.Reset()
	if err := (&CanLinkCmd{User: "user-1", Provider: "instagram"}).Run(g); err != nil {
		t.Fatalf("can-link: %v", err)
	}
	if !strings.Contains(out.String(), core.ReasonProviderAlreadyConnected) {
		t.Fatalf("unexpected can-link output %q", out.String())
	}
}

func TestGlobalsLogger_WritesConsoleLines(t *testing.T) {
	var stderr bytes.Buffer
	g := Globals{Verbose: true, LogLevel: "info", stderr: &stderr}

	logger := g.logger()
	if logger == nil {
		t.Fatalf("expected logger when verbose")
	}
	logger.Debug("skipped", "account_id", "acct-1")
	logger.Info("refreshed", "account_id", "acct-1")

	out := stderr.String()
	for _, want := range []string{"level=info", "msg=refreshed", "account_id=acct-1", "logger=tokenctl"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "skipped") {
		t.Fatalf("expected debug line to be filtered: %q", out)
	}

	quiet := Globals{stderr: &stderr}
	if quiet.logger() != nil {
		t.Fatalf("expected no logger without verbose")
	}
}

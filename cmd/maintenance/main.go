// Command maintenance runs one-off operational tasks against the tracker
// database: schema migrations, data repair and token issuance.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/repository"
	"github.com/noah-isme/taxfiling-tracker/internal/service"
	"github.com/noah-isme/taxfiling-tracker/pkg/config"
	"github.com/noah-isme/taxfiling-tracker/pkg/database"
	"github.com/noah-isme/taxfiling-tracker/pkg/logger"
)

const missingDescriptionPlaceholder = "Descripción no especificada"

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string) error
}

var commands = []command{
	{name: "migrate", summary: "apply pending schema migrations", run: runMigrate},
	{name: "repair-descriptions", summary: "backfill empty status descriptions", run: runRepairDescriptions},
	{name: "issue-token", summary: "mint an access token for a user or admin", run: runIssueToken},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	name := os.Args[1]
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := cmd.run(ctx, cfg, logger.Component(logr, cmd.name), os.Args[2:]); err != nil {
			logr.Error("command failed", zap.String("command", name), zap.Error(err))
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: maintenance <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-22s %s\n", cmd.name, cmd.summary)
	}
}

func runMigrate(_ context.Context, cfg *config.Config, logr *zap.Logger, args []string) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck
	return database.Migrate(db, logr)
}

func runRepairDescriptions(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string) error {
	fs := pflag.NewFlagSet("repair-descriptions", pflag.ContinueOnError)
	placeholder := fs.String("placeholder", missingDescriptionPlaceholder, "description written to records that have none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*placeholder) == "" {
		return fmt.Errorf("placeholder must not be blank")
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	repaired, err := repository.NewRequestRepository(db).RepairMissingDescriptions(ctx, *placeholder)
	if err != nil {
		return fmt.Errorf("repair descriptions: %w", err)
	}
	logr.Info("descriptions repaired", zap.Int64("records", repaired))
	return nil
}

func runIssueToken(_ context.Context, cfg *config.Config, logr *zap.Logger, args []string) error {
	fs := pflag.NewFlagSet("issue-token", pflag.ContinueOnError)
	userID := fs.String("user", "", "subject user id")
	email := fs.String("email", "", "subject email")
	role := fs.String("role", string(models.RoleUser), "token role (user or admin)")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("--user is required")
	}
	r := models.UserRole(strings.ToLower(*role))
	if r != models.RoleUser && r != models.RoleAdmin {
		return fmt.Errorf("unsupported role %q", *role)
	}

	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})
	token, expires, err := auth.IssueToken(*userID, *email, r, *ttl)
	if err != nil {
		return err
	}
	logr.Info("token issued", zap.String("user_id", *userID), zap.String("role", string(r)), zap.Time("expires_at", expires))
	fmt.Println(token)
	return nil
}

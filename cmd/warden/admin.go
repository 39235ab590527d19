package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wardenhq/warden/internal/adapter/postgres"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/domain/control"
	"github.com/wardenhq/warden/internal/port/database"
	"github.com/wardenhq/warden/internal/service"
)

// runAdmin dispatches admin subcommands (migrate, set-mode, list-controls,
// seed-policies).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "set-mode":
		return runAdminSetMode(args[1:])
	case "list-controls":
		return runAdminListControls(args[1:])
	case "seed-policies":
		return runAdminSeedPolicies(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: warden admin <command> [options]

Commands:
  migrate          Apply (or roll back) database migrations
  set-mode         Set the operating mode for a scope
  list-controls    Show recent operating-mode changes
  seed-policies    Load policy envelopes from a YAML directory
  help             Show this help message

Examples:
  warden admin migrate
  warden admin migrate --down 1
  warden admin set-mode --mode PAUSED --by ops@example.com --reason "incident 42"
  warden admin set-mode --mode NORMAL --project proj-1 --by ops@example.com
  warden admin list-controls --limit 20
  warden admin seed-policies --dir ./policies
`)
}

func loadAdminDeps(ctx context.Context) (*config.Config, database.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	return cfg, postgres.NewStore(pool), pool.Close, nil
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	down := fs.Int("down", 0, "roll back N migrations instead of applying")
	version := fs.Bool("version", false, "print the current migration version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	switch {
	case *version:
		v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	case *down > 0:
		return postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *down)
	default:
		return postgres.RunMigrations(ctx, cfg.Postgres.DSN)
	}
}

func runAdminSetMode(args []string) error {
	fs := flag.NewFlagSet("set-mode", flag.ContinueOnError)
	mode := fs.String("mode", "", "operating mode: NORMAL, PAUSED, DRAINING, QUARANTINED (required)")
	project := fs.String("project", "", "project scope (empty = global)")
	reason := fs.String("reason", "", "why the mode changed")
	by := fs.String("by", "", "operator identity (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mode == "" {
		return fmt.Errorf("--mode is required")
	}
	if *by == "" {
		return fmt.Errorf("--by is required")
	}

	ctx := context.Background()
	_, store, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	controls := service.NewControlService(store, nil, nil, nil, 0)
	rec, err := controls.SetMode(ctx, *project, control.Mode(*mode), *reason, *by)
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}

	scope := rec.ProjectID
	if scope == "" {
		scope = "global"
	}
	fmt.Fprintf(os.Stderr, "Mode set: %s (scope=%s, id=%s)\n", rec.Mode, scope, rec.ID)
	return nil
}

func runAdminListControls(args []string) error {
	fs := flag.NewFlagSet("list-controls", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of records to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	_, store, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	controls := service.NewControlService(store, nil, nil, nil, 0)
	records, err := controls.History(ctx, *limit)
	if err != nil {
		return fmt.Errorf("list controls: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No mode changes recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CREATED\tSCOPE\tMODE\tSET_BY\tREASON")
	for i := range records {
		scope := records[i].ProjectID
		if scope == "" {
			scope = "global"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			records[i].CreatedAt.Format("2006-01-02 15:04:05"),
			scope, records[i].Mode, records[i].SetBy, records[i].Reason)
	}
	return w.Flush()
}

func runAdminSeedPolicies(args []string) error {
	fs := flag.NewFlagSet("seed-policies", flag.ContinueOnError)
	dir := fs.String("dir", "", "directory of envelope YAML files (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return fmt.Errorf("--dir is required")
	}

	ctx := context.Background()
	_, store, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := service.NewPolicyService(store).SeedFromDirectory(ctx, *dir)
	if err != nil {
		return fmt.Errorf("seed policies: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Seeded %d envelope(s) from %s\n", n, *dir)
	return nil
}

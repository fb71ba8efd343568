package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/gamebyte/switchboard/config"
	"github.com/gamebyte/switchboard/internal/migration"
)

// runMigrate dispatches the migrate subcommands.
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "up":
		runMigrateUp(subargs)
	case "down":
		runMigrateDown(subargs)
	case "status":
		runMigrateStatus(subargs)
	case "version":
		runMigrateVersion(subargs)
	case "goto":
		runMigrateGoto(subargs)
	case "force":
		runMigrateForce(subargs)
	case "reset":
		runMigrateReset(subargs)
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  switchboard migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration (--all rolls back everything)
  status    Show migration status
  version   Show current migration version
  goto      Migrate to a specific version
  force     Force set migration version (use with caution)
  reset     Rollback all migrations
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  switchboard migrate up
  switchboard migrate up --config /etc/switchboard/config.yaml
  switchboard migrate down
  switchboard migrate status
  switchboard migrate goto 1
  switchboard migrate force 0
  switchboard migrate reset`)
}

// migrateFlags registers the shared migrate flags on fs and returns a
// constructor that resolves the migrator after fs.Parse has run.
func migrateFlags(fs *flag.FlagSet) func() (*migration.Migrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	return func() (*migration.Migrator, error) {
		if *dbType != "" && *dbURL != "" {
			return migration.NewFromURL(*dbType, *dbURL)
		}

		loader := config.NewLoader()
		if *configPath != "" {
			loader = loader.WithConfigPath(*configPath)
		}
		cfg, err := loader.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if *dbType != "" {
			cfg.Store.Type = *dbType
		}
		return migration.NewFromConfig(cfg)
	}
}

func newMigrator(fs *flag.FlagSet, args []string) *migration.Migrator {
	build := migrateFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		os.Exit(1)
	}
	migrator, err := build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	return migrator
}

func migrateContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), migration.WaitTimeout)
}

func runMigrateUp(args []string) {
	fs := flag.NewFlagSet("migrate up", flag.ExitOnError)
	migrator := newMigrator(fs, args)
	defer migrator.Close()

	ctx, cancel := migrateContext()
	defer cancel()

	if err := migrator.Up(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	printCurrentVersion(ctx, migrator)
	fmt.Println("Migrations applied")
}

func runMigrateDown(args []string) {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	all := fs.Bool("all", false, "Rollback all migrations")
	migrator := newMigrator(fs, args)
	defer migrator.Close()

	ctx, cancel := migrateContext()
	defer cancel()

	var err error
	if *all {
		err = migrator.DownAll(ctx)
	} else {
		err = migrator.Down(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration rollback failed: %v\n", err)
		os.Exit(1)
	}
	printCurrentVersion(ctx, migrator)
	fmt.Println("Rollback completed")
}

func runMigrateStatus(args []string) {
	fs := flag.NewFlagSet("migrate status", flag.ExitOnError)
	migrator := newMigrator(fs, args)
	defer migrator.Close()

	ctx, cancel := migrateContext()
	defer cancel()

	statuses, err := migrator.Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get status: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Version  Applied  Name")
	for _, st := range statuses {
		applied := "no"
		if st.Applied {
			applied = "yes"
		}
		if st.Dirty {
			applied = "dirty"
		}
		fmt.Printf("%-7d  %-7s  %s\n", st.Version, applied, st.Name)
	}
}

func runMigrateVersion(args []string) {
	fs := flag.NewFlagSet("migrate version", flag.ExitOnError)
	migrator := newMigrator(fs, args)
	defer migrator.Close()

	ctx, cancel := migrateContext()
	defer cancel()

	printCurrentVersion(ctx, migrator)
}

func runMigrateGoto(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: switchboard migrate goto <version>\n")
		os.Exit(1)
	}
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	fs := flag.NewFlagSet("migrate goto", flag.ExitOnError)
	migrator := newMigrator(fs, args[1:])
	defer migrator.Close()

	ctx, cancel := migrateContext()
	defer cancel()

	if err := migrator.Goto(ctx, uint(version)); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	printCurrentVersion(ctx, migrator)
}

func runMigrateForce(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: switchboard migrate force <version>\n")
		os.Exit(1)
	}
	version, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	fs := flag.NewFlagSet("migrate force", flag.ExitOnError)
	migrator := newMigrator(fs, args[1:])
	defer migrator.Close()

	ctx, cancel := migrateContext()
	defer cancel()

	if err := migrator.Force(ctx, int(version)); err != nil {
		fmt.Fprintf(os.Stderr, "Force failed: %v\n", err)
		os.Exit(1)
	}
	printCurrentVersion(ctx, migrator)
}

func runMigrateReset(args []string) {
	fs := flag.NewFlagSet("migrate reset", flag.ExitOnError)
	migrator := newMigrator(fs, args)
	defer migrator.Close()

	ctx, cancel := migrateContext()
	defer cancel()

	if err := migrator.DownAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
		os.Exit(1)
	}
	printCurrentVersion(ctx, migrator)
	fmt.Println("Reset completed")
}

func printCurrentVersion(ctx context.Context, migrator *migration.Migrator) {
	version, dirty, err := migrator.Version(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get version: %v\n", err)
		return
	}
	if dirty {
		fmt.Printf("Current version: %d (dirty)\n", version)
		return
	}
	fmt.Printf("Current version: %d\n", version)
}

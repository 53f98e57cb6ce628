// Package main provides the standalone schema migration CLI for the
// datastore: apply, roll back, or inspect the embedded migration set
// against DATABASE_URL without starting the datastore process itself.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pulsedb/pulsedb/internal/config"
	"github.com/pulsedb/pulsedb/internal/storage"
	"github.com/pulsedb/pulsedb/migrations"
)

const name = "migrate"

func main() {
	showVersion := flag.Bool("version", false, "show version information")
	showHelp := flag.Bool("help", false, "show usage information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s\n", name)
		os.Exit(0)
	}

	if *showHelp || len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	command := os.Args[1]

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	conn, err := storage.NewConnection(cfg)
	if err != nil {
		fatalf("failed to connect to database: %v", err)
	}
	defer func() { _ = conn.Close() }()

	runner, err := migrations.NewRunner(conn.DB, logger)
	if err != nil {
		fatalf("failed to set up migration runner: %v", err)
	}
	defer func() { _ = runner.Close() }()

	if err := executeCommand(command, runner); err != nil {
		fatalf("migration command failed: %v", err)
	}
}

func executeCommand(command string, runner migrations.Runner) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		fmt.Print("WARNING: this will drop all tables. Are you sure? (y/N): ")

		var response string

		_, _ = fmt.Scanln(&response)

		if response != "y" && response != "Y" {
			fmt.Println("operation cancelled")

			return nil
		}

		return runner.Drop()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Printf(`%s - schema migration tool

USAGE:
    %s COMMAND

COMMANDS:
    up      apply all pending migrations
    down    roll back the most recent migration
    status  show applied/pending migration status
    version show the current schema version
    drop    drop all tables (requires confirmation)

ENVIRONMENT:
    DATABASE_URL  postgresql:// connection string (required)

OPTIONS:
    --help     show this help message
    --version  show version information
`, name, name)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

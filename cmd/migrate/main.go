package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"redditscheduler/internal/constants"
	"redditscheduler/internal/migrations"
	"redditscheduler/internal/security"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

func main() {
	dbPath := flag.String("db", "./posts.db", "Path to the database file")
	status := flag.Bool("status", false, "List migrations and whether they are applied, without changing anything")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(context.Background(), *dbPath, *status, os.Stdout); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, dbPath string, statusOnly bool, out io.Writer) error {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file not found: %s", dbPath)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if !statusOnly {
		if err := migrations.RunMigrations(db); err != nil {
			return err
		}
	}

	return printStatus(ctx, db, out)
}

func printStatus(ctx context.Context, db *sql.DB, out io.Writer) error {
	var tables int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		constants.DefaultMigrationsTableName).Scan(&tables); err != nil {
		return fmt.Errorf("failed to inspect database: %w", err)
	}

	applied := map[int]bool{}
	if tables > 0 {
		var err error
		if applied, err = migrations.AppliedVersions(ctx, db); err != nil {
			return err
		}
	}

	all := migrations.All()
	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })

	pending := 0
	for _, m := range all {
		state := "applied"
		if !applied[m.Version] {
			state = "pending"
			pending++
		}
		fmt.Fprintf(out, "%03d  %-8s %s\n", m.Version, state, m.Description)
	}
	if pending == 0 {
		fmt.Fprintln(out, "Database schema is up to date.")
	}
	return nil
}

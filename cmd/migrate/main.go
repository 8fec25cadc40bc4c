package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"baccarat/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	command := os.Args[1]
	migrationsPath := getEnv("MIGRATIONS_PATH", "./migrations")

	if command == "create" {
		if len(os.Args) < 3 {
			log.Fatal("usage: migrate create <migration_name>")
		}
		up, down, err := createMigration(migrationsPath, os.Args[2], time.Now().UTC())
		if err != nil {
			log.Fatalw("create migration failed", "error", err)
		}
		log.Infow("created migration files", "up", up, "down", down)
		return
	}

	db, err := sql.Open("pgx", database.ConnString())
	if err != nil {
		log.Fatalw("failed to open database", "error", err)
	}
	defer db.Close()

	switch command {
	case "up":
		log.Info("running migrations")
		if err := database.RunMigrations(db, migrationsPath); err != nil {
			log.Fatalw("migration failed", "error", err)
		}
		log.Info("migrations completed")

	case "down":
		log.Info("rolling back last migration")
		if err := database.RollbackMigration(db, migrationsPath); err != nil {
			log.Fatalw("rollback failed", "error", err)
		}
		log.Info("rollback completed")

	case "version":
		version, dirty, err := database.GetMigrationVersion(db, migrationsPath)
		if err != nil {
			log.Fatalw("failed to get version", "error", err)
		}
		if dirty {
			log.Warnw("schema is dirty and needs manual intervention", "version", version)
		} else {
			log.Infow("current version", "version", version)
		}

	case "prune":
		days := 30
		if len(os.Args) > 2 {
			if days, err = strconv.Atoi(os.Args[2]); err != nil || days <= 0 {
				log.Fatalf("invalid retention days %q", os.Args[2])
			}
		}
		svc, err := database.New(logger)
		if err != nil {
			log.Fatalw("failed to open database", "error", err)
		}
		defer svc.Close()

		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		n, err := svc.PruneRounds(context.Background(), cutoff)
		if err != nil {
			log.Fatalw("prune failed", "error", err)
		}
		log.Infow("pruned rounds", "deleted", n, "before", cutoff)

	default:
		log.Errorf("unknown command: %s", command)
		printUsage()
		os.Exit(1)
	}
}

// createMigration writes an empty up/down pair numbered after the highest
// existing version in dir.
func createMigration(dir, name string, now time.Time) (string, string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", "", fmt.Errorf("read migrations directory: %w", err)
	}

	next := 1
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		prefix, _, ok := strings.Cut(file.Name(), "_")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(prefix); err == nil && v >= next {
			next = v + 1
		}
	}

	upFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.up.sql", next, name))
	downFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.down.sql", next, name))

	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n", name, now.Format(time.RFC3339))
	if err := os.WriteFile(upFile, []byte(upContent), 0644); err != nil {
		return "", "", fmt.Errorf("write up migration: %w", err)
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0644); err != nil {
		return "", "", fmt.Errorf("write down migration: %w", err)
	}
	return upFile, downFile, nil
}

func printUsage() {
	fmt.Println("Baccarat database tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up              Run all pending migrations")
	fmt.Println("  migrate down            Roll back the last migration")
	fmt.Println("  migrate version         Show current migration version")
	fmt.Println("  migrate create <name>   Create a new migration pair")
	fmt.Println("  migrate prune [days]    Delete archived rounds older than days (default 30)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  BLUEPRINT_DB_HOST       Database host")
	fmt.Println("  BLUEPRINT_DB_PORT       Database port")
	fmt.Println("  BLUEPRINT_DB_DATABASE   Database name")
	fmt.Println("  BLUEPRINT_DB_USERNAME   Database user")
	fmt.Println("  BLUEPRINT_DB_PASSWORD   Database password")
	fmt.Println("  BLUEPRINT_DB_SCHEMA     Schema (default: public)")
	fmt.Println("  MIGRATIONS_PATH         Path to migrations (default: ./migrations)")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

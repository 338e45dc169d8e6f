package main

import (
	stderrors "errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"

	"github.com/victornm/chotrivia/internal/config"
	"github.com/victornm/chotrivia/internal/server"
	"github.com/victornm/chotrivia/internal/store"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	url, err := databaseURL()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	m, err := store.NewMigrate(url)
	if err != nil {
		log.Fatalf("Migration failed to initialize: %v", err)
	}
	defer m.Close()

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Up failed: %v", err)
		}
		fmt.Println("Migrated up successfully")
	case "down":
		if err := m.Down(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Down failed: %v", err)
		}
		fmt.Println("Migrated down successfully")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("Version failed: %v", err)
		}
		fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)
	case "force":
		if len(args) < 2 {
			log.Fatal("force requires version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Invalid version: %v", err)
		}
		if err := m.Force(v); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		fmt.Printf("Forced version to %d\n", v)
	default:
		printUsage()
		os.Exit(2)
	}
}

// databaseURL prefers DATABASE_URL and falls back to the postgres section of CONFIG_PATH.
func databaseURL() (string, error) {
	if err := config.LoadEnv(); err != nil {
		return "", err
	}

	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u, nil
	}

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		return "", fmt.Errorf("neither DATABASE_URL nor CONFIG_PATH is set")
	}

	c := server.DefaultConfig()
	if err := config.Load(p, &c); err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}

	return c.Postgres.URL(), nil
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("Commands: up, down, version, force <version>")
}

package main

import (
	"context"
	"flag"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/tutorlink/tutorlink-api/pkg/config"
	"github.com/tutorlink/tutorlink-api/pkg/database"
)

func main() {
	dir := flag.String("dir", "db/migrations", "directory with migration files")
	command := flag.String("command", "up", "goose command: up, down, status, version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("failed to set goose dialect: %v", err)
	}

	ctx := context.Background()
	switch *command {
	case "up":
		err = goose.UpContext(ctx, db.DB, *dir)
	case "down":
		err = goose.DownContext(ctx, db.DB, *dir)
	case "status":
		err = goose.StatusContext(ctx, db.DB, *dir)
	case "version":
		var version int64
		version, err = goose.GetDBVersionContext(ctx, db.DB)
		if err == nil {
			log.Printf("migration version: %d", version)
		}
	default:
		log.Printf("unknown command %q", *command)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("migration %s failed: %v", *command, err)
	}
}

package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/flicky/farm-market-api/internal/config"
	"github.com/flicky/farm-market-api/internal/migrations"
)

func main() {
	command := flag.String("cmd", "up", "goose command: up, down, status, version, redo, reset")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.DB.DSN())
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Run(context.Background(), db, *command, flag.Args()...); err != nil {
		log.Error("migrate", "cmd", *command, "error", err)
		os.Exit(1)
	}
	log.Info("migrate done", "cmd", *command)
}

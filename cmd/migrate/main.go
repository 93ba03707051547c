// Command migrate runs the embedded goose migrations against DB_URL.
//
//	migrate [-river] <up|down|status|version|redo|reset> [args]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"wallet_settlement/internal/config"
	"wallet_settlement/internal/logging"
	"wallet_settlement/internal/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

func main() {
	withRiver := flag.Bool("river", true, "also migrate the river job tables when running up")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <up|down|status|version|redo|reset> [args]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}
	logger := logging.SetupLogger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	command := flag.Arg(0)
	if err := migrations.Run(ctx, db, command, flag.Args()[1:]...); err != nil {
		logger.Error("migration failed", "command", command, "err", err)
		os.Exit(1)
	}

	if command == "up" && *withRiver {
		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			logger.Error("failed to create river migrator", "err", err)
			os.Exit(1)
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			logger.Error("river migrate up failed", "err", err)
			os.Exit(1)
		}
	}
	logger.Info("Migration finished", "command", command)
}

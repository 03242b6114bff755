// Command moneyserver runs the grid currency service.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/virtualgrid/moneyserver/internal/app"
	"github.com/virtualgrid/moneyserver/internal/app/storage/postgres"
	"github.com/virtualgrid/moneyserver/internal/app/storage/postgres/migrations"
	"github.com/virtualgrid/moneyserver/internal/config"
	"github.com/virtualgrid/moneyserver/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging).WithField("service", "moneyserver")

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = migrations.Apply(ctx, db)
	cancel()
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("database schema up to date")

	application := app.New(cfg, postgres.New(db), log)
	if err := application.Start(context.Background()); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.WithField("signal", sig.String()).Info("shutting down")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return application.Stop(ctx)
}

// Package main loads reference sports data into the database.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitchside/backend/config"
	"github.com/pitchside/backend/internal/sports"
	"github.com/pitchside/backend/pkg/database"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	file := flag.String("file", cfg.Seed.File, "reference data JSON file")
	flag.Parse()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal("open seed file", zap.String("file", *file), zap.Error(err))
	}
	defer f.Close()

	dataset, err := sports.DecodeDataset(f)
	if err != nil {
		logger.Fatal("decode seed file", zap.String("file", *file), zap.Error(err))
	}

	var counts sports.SeedCounts
	err = database.WithTx(ctx, pool, func(tx pgx.Tx) error {
		var err error
		counts, err = sports.NewRepository(tx).Seed(ctx, dataset)
		return err
	})
	if err != nil {
		logger.Fatal("seed", zap.Error(err))
	}
	fields := make([]zap.Field, 0, len(counts)+1)
	fields = append(fields, zap.String("file", *file))
	for kind, n := range counts {
		fields = append(fields, zap.Int(kind, n))
	}
	logger.Info("seed complete", fields...)
}

func newLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

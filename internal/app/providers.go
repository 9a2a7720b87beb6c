package app

import (
	"github.com/eslsoft/lingoledger/internal/adapter/catalog"
	"github.com/eslsoft/lingoledger/internal/infrastructure/config"
	"github.com/eslsoft/lingoledger/internal/infrastructure/scheduler"
	"github.com/eslsoft/lingoledger/internal/usecase"
)

func provideCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	return catalog.LoadFile(cfg.Catalog.Path)
}

func provideSweepOptions(cfg *config.Config) usecase.SweepOptions {
	return usecase.SweepOptions{
		BatchSize:   cfg.Sweep.BatchSize,
		Concurrency: cfg.Sweep.Concurrency,
	}
}

func provideSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Interval:    cfg.Sweep.Interval,
		MaxAttempts: cfg.Sweep.MaxAttempts,
	}
}

func provideSweeper(uc usecase.SweepUsecase) scheduler.Sweeper {
	return uc
}

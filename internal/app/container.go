package app

import (
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/infrastructure/config"
	"github.com/eslsoft/lingoledger/internal/infrastructure/database"
	"github.com/eslsoft/lingoledger/internal/infrastructure/scheduler"
	"github.com/eslsoft/lingoledger/internal/infrastructure/server"
	"github.com/eslsoft/lingoledger/internal/repository"
	"github.com/eslsoft/lingoledger/internal/usecase"
)

// Container aggregates the application dependencies produced by Wire.
type Container struct {
	Config    *config.Config
	Logger    *logrus.Logger
	DB        *database.DB
	Ledgers   repository.LedgerRepository
	Usecase   usecase.LedgerUsecase
	Sweeper   usecase.SweepUsecase
	Server    *server.Server
	Scheduler *scheduler.Scheduler
}

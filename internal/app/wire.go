//go:build wireinject
// +build wireinject

package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/adapter/catalog"
	"github.com/eslsoft/lingoledger/internal/adapter/repository"
	"github.com/eslsoft/lingoledger/internal/adapter/rest"
	"github.com/eslsoft/lingoledger/internal/infrastructure/config"
	"github.com/eslsoft/lingoledger/internal/infrastructure/database"
	"github.com/eslsoft/lingoledger/internal/infrastructure/scheduler"
	"github.com/eslsoft/lingoledger/internal/infrastructure/server"
	repo "github.com/eslsoft/lingoledger/internal/repository"
	"github.com/eslsoft/lingoledger/internal/usecase"
)

var configSet = wire.NewSet(
	config.Load,
)

var loggerSet = wire.NewSet(
	server.NewLogger,
	wire.Bind(new(logrus.FieldLogger), new(*logrus.Logger)),
)

var databaseSet = wire.NewSet(
	database.NewConnection,
)

var repositorySet = wire.NewSet(
	repository.NewLedgerRepository,
	provideCatalog,
	wire.Bind(new(repo.ExerciseCatalog), new(*catalog.Catalog)),
)

var usecaseSet = wire.NewSet(
	provideSweepOptions,
	usecase.NewLedgerUsecase,
	usecase.NewSweepUsecase,
)

var serverSet = wire.NewSet(
	rest.NewHandler,
	rest.NewRouter,
	wire.Bind(new(http.Handler), new(*gin.Engine)),
	server.NewServer,
	provideSchedulerConfig,
	provideSweeper,
	scheduler.New,
)

// Initialize builds the application container using Wire.
func Initialize() (*Container, func(), error) {
	wire.Build(
		configSet,
		loggerSet,
		databaseSet,
		repositorySet,
		usecaseSet,
		serverSet,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil, nil
}

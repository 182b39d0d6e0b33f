//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
)

var CoreInfraSet = wire.NewSet(
	NewLogging,
	NewLogger,
	NewMetricsRegistry,
	NewMetrics,
	NewHealthTracker,
)

var ResolutionSet = wire.NewSet(
	NewCatalog,
	NewStore,
	NewFailureRing,
	NewCommandExecutor,
	NewExecutorRegistry,
	NewSynthesizer,
	NewGenerator,
	NewEngine,
	NewDiscoverers,
	NewDiscoveryRunner,
	NewAPIHandler,
)

var AppSet = wire.NewSet(
	CoreInfraSet,
	ResolutionSet,
	NewApplication,
)

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/jackal/internal/config"
	"github.com/zeusync/jackal/internal/core/events/bus"
	"github.com/zeusync/jackal/internal/core/observability/log"
	"github.com/zeusync/jackal/internal/engine"
)

// EngineSet provides everything engine.New needs from a loaded config.
var EngineSet = wire.NewSet(ProvideLogger, ProvideEventBus, engine.New)

// ProvideLogger builds the process logger at the configured level.
func ProvideLogger(cfg *config.Config) log.Log {
	return log.New(log.ParseLevel(cfg.LogLevel))
}

func ProvideEventBus() bus.EventBus {
	return bus.New()
}

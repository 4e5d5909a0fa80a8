// Package engine selects the intelligence engine backend.
package engine

import (
	"fmt"

	"github.com/kiranshivaraju/matchintel/internal/config"
	"github.com/kiranshivaraju/matchintel/internal/engine/httpengine"
	"github.com/kiranshivaraju/matchintel/internal/engine/mock"
	"github.com/kiranshivaraju/matchintel/pkg/models"
)

// NewEngine constructs the engine named by cfg.Provider.
// Called once at server startup.
func NewEngine(cfg config.EngineConfig) (models.IntelligenceEngine, error) {
	switch cfg.Provider {
	case "http":
		return httpengine.New(cfg), nil
	case "mock":
		return mock.NewSimulatedEngine(cfg.Mock.StepDelay), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q: must be one of http, mock", cfg.Provider)
	}
}

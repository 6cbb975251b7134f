package usecase

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
)

// HealthUseCase aggregates catalog, object store, staging and journal health
type HealthUseCase struct {
	healthRepo repository.HealthRepository
	logger     *zap.Logger
	startTime  time.Time
	version    string
}

// NewHealthUseCase creates a new health use case
func NewHealthUseCase(healthRepo repository.HealthRepository, version string, logger *zap.Logger) *HealthUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthUseCase{
		healthRepo: healthRepo,
		logger:     logger,
		startTime:  time.Now(),
		version:    version,
	}
}

// GetHealth returns the overall health status. Any check that is down makes
// the service down; a partial check makes it partial.
func (h *HealthUseCase) GetHealth(ctx context.Context) (*entities.HealthCheck, error) {
	health, err := h.healthRepo.CheckHealth(ctx)
	if err != nil {
		return nil, err
	}

	health.Version = h.version
	health.Uptime = time.Since(h.startTime)
	health.Timestamp = time.Now()

	names := make([]string, 0, len(health.Checks))
	for name := range health.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overallStatus := entities.HealthStatusUp
	for _, name := range names {
		check := health.Checks[name]
		switch check.Status {
		case entities.HealthStatusDown:
			overallStatus = entities.HealthStatusDown
		case entities.HealthStatusPartial:
			if overallStatus != entities.HealthStatusDown {
				overallStatus = entities.HealthStatusPartial
			}
		default:
			continue
		}
		h.logger.Warn("health check degraded",
			zap.String("check", name),
			zap.String("status", string(check.Status)),
			zap.String("message", check.Message),
		)
	}
	health.Status = overallStatus

	return health, nil
}

// GetReadiness checks if the service is ready
func (h *HealthUseCase) GetReadiness(ctx context.Context) (bool, string) {
	return h.healthRepo.IsReady(ctx)
}

// GetLiveness checks if the service is alive
func (h *HealthUseCase) GetLiveness(ctx context.Context) bool {
	return true
}

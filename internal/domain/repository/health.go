package repository

import (
	"context"

	"github.com/zots0127/fileshare/internal/domain/entities"
)

// HealthRepository defines the interface for health check operations
type HealthRepository interface {
	// CheckHealth performs a comprehensive health check
	CheckHealth(ctx context.Context) (*entities.HealthCheck, error)

	// CheckCatalog verifies the metadata catalog is reachable
	CheckCatalog(ctx context.Context) entities.CheckResult

	// CheckObjectStore verifies a connection to the object store can be made
	CheckObjectStore(ctx context.Context) entities.CheckResult

	// CheckStagingDisk checks space available for staged uploads
	CheckStagingDisk(ctx context.Context) entities.CheckResult

	// CheckJournal reports intents left pending by partial failures
	CheckJournal(ctx context.Context) entities.CheckResult

	// IsReady checks if the service is ready to handle requests
	IsReady(ctx context.Context) (bool, string)
}

package repository

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"syscall"
	"time"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
	"github.com/zots0127/fileshare/pkg/metrics"
)

// healthProbeName is looked up in the store namespace to prove connectivity
const healthProbeName = ".fileshare-health"

// HealthRepositoryImpl implements HealthRepository
type HealthRepositoryImpl struct {
	catalog    repository.Catalog
	store      repository.ObjectStore
	journal    repository.IntentJournal
	stagingDir string
	timeout    time.Duration
}

// NewHealthRepository creates a new health repository
func NewHealthRepository(catalog repository.Catalog, store repository.ObjectStore, journal repository.IntentJournal, stagingDir string) repository.HealthRepository {
	return &HealthRepositoryImpl{
		catalog:    catalog,
		store:      store,
		journal:    journal,
		stagingDir: stagingDir,
		timeout:    5 * time.Second,
	}
}

// CheckHealth performs a comprehensive health check
func (h *HealthRepositoryImpl) CheckHealth(ctx context.Context) (*entities.HealthCheck, error) {
	checks := map[string]entities.CheckResult{
		"catalog":      h.CheckCatalog(ctx),
		"object_store": h.CheckObjectStore(ctx),
		"staging_disk": h.CheckStagingDisk(ctx),
		"journal":      h.CheckJournal(ctx),
	}

	info := h.systemInfo(ctx)

	// Determine overall status
	overallStatus := entities.HealthStatusUp
	for _, check := range checks {
		if check.Status == entities.HealthStatusDown {
			overallStatus = entities.HealthStatusDown
			break
		} else if check.Status == entities.HealthStatusPartial {
			overallStatus = entities.HealthStatusPartial
		}
	}

	return &entities.HealthCheck{
		Status:     overallStatus,
		Checks:     checks,
		SystemInfo: info,
	}, nil
}

// CheckCatalog verifies the catalog database is reachable
func (h *HealthRepositoryImpl) CheckCatalog(ctx context.Context) entities.CheckResult {
	if h.catalog == nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Catalog is not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.catalog.Ping(ctx); err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("Catalog ping failed: %v", err),
		}
	}

	return entities.CheckResult{
		Status:  entities.HealthStatusUp,
		Message: "Catalog is healthy",
	}
}

// CheckObjectStore lists the store namespace through a fresh connection
func (h *HealthRepositoryImpl) CheckObjectStore(ctx context.Context) entities.CheckResult {
	if h.store == nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Object store is not configured",
		}
	}

	start := time.Now()
	if _, err := h.store.Exists(ctx, healthProbeName); err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("Object store not reachable: %v", err),
			Details: map[string]interface{}{"backend": h.store.Backend()},
		}
	}

	return entities.CheckResult{
		Status:  entities.HealthStatusUp,
		Message: "Object store is healthy",
		Details: map[string]interface{}{
			"backend":    h.store.Backend(),
			"latency_ms": time.Since(start).Milliseconds(),
		},
	}
}

// CheckStagingDisk checks the staging directory is writable and has space
func (h *HealthRepositoryImpl) CheckStagingDisk(ctx context.Context) entities.CheckResult {
	info, err := os.Stat(h.stagingDir)
	if err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("Staging directory not accessible: %v", err),
		}
	}
	if !info.IsDir() {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: "Staging path is not a directory",
		}
	}

	// Try to create a test file
	probe, err := os.CreateTemp(h.stagingDir, ".health_check-*")
	if err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("Cannot write to staging directory: %v", err),
		}
	}
	probe.Close()
	os.Remove(probe.Name())

	total, available, usage, err := diskUsage(h.stagingDir)
	if err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusPartial,
			Message: fmt.Sprintf("Failed to check disk space: %v", err),
		}
	}

	details := map[string]interface{}{
		"path":            h.stagingDir,
		"total_bytes":     total,
		"available_bytes": available,
		"usage_percent":   usage,
	}

	// Determine status based on disk usage
	status := entities.HealthStatusUp
	message := "Staging disk is healthy"
	if usage > 90 {
		status = entities.HealthStatusDown
		message = "Critical: staging disk space is critically low"
	} else if usage > 80 {
		status = entities.HealthStatusPartial
		message = "Warning: staging disk space is running low"
	}

	return entities.CheckResult{
		Status:  status,
		Message: message,
		Details: details,
	}
}

// CheckJournal reports intents left pending by partial failures
func (h *HealthRepositoryImpl) CheckJournal(ctx context.Context) entities.CheckResult {
	if h.journal == nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusUp,
			Message: "Intent journal disabled",
		}
	}

	pending, err := h.journal.Pending(ctx)
	if err != nil {
		return entities.CheckResult{
			Status:  entities.HealthStatusDown,
			Message: fmt.Sprintf("Intent journal not readable: %v", err),
		}
	}
	metrics.SetPendingIntents(len(pending))

	if len(pending) > 0 {
		return entities.CheckResult{
			Status:  entities.HealthStatusPartial,
			Message: fmt.Sprintf("%d intents await reconciliation", len(pending)),
			Details: map[string]interface{}{"pending": len(pending)},
		}
	}

	return entities.CheckResult{
		Status:  entities.HealthStatusUp,
		Message: "No pending intents",
	}
}

// IsReady checks if the service is ready to handle requests
func (h *HealthRepositoryImpl) IsReady(ctx context.Context) (bool, string) {
	if h.catalog == nil {
		return false, "Catalog not configured"
	}
	if err := h.catalog.Ping(ctx); err != nil {
		return false, fmt.Sprintf("Catalog not ready: %v", err)
	}

	if _, err := os.Stat(h.stagingDir); err != nil {
		return false, fmt.Sprintf("Staging directory not ready: %v", err)
	}

	return true, "Service is ready"
}

func (h *HealthRepositoryImpl) systemInfo(ctx context.Context) entities.SystemInfo {
	info := entities.SystemInfo{GoRoutines: runtime.NumGoroutine()}
	if h.store != nil {
		info.StoreBackend = h.store.Backend()
	}
	if total, available, usage, err := diskUsage(h.stagingDir); err == nil {
		info.StagingDiskTotal = total
		info.StagingDiskAvailable = available
		info.StagingDiskUsage = usage
	}
	if h.journal != nil {
		if pending, err := h.journal.Pending(ctx); err == nil {
			info.PendingIntents = len(pending)
		}
	}
	return info
}

func diskUsage(path string) (total, available int64, usage float64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, 0, err
	}

	total = int64(stat.Blocks * uint64(stat.Bsize))
	available = int64(stat.Bavail * uint64(stat.Bsize))
	if total > 0 {
		usage = float64(total-available) / float64(total) * 100
	}
	return total, available, usage, nil
}

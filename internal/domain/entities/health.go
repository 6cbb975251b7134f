package entities

import "time"

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusUp      HealthStatus = "up"
	HealthStatusDown    HealthStatus = "down"
	HealthStatusPartial HealthStatus = "partial"
)

// HealthCheck represents a health check result
type HealthCheck struct {
	Status     HealthStatus           `json:"status"`
	Version    string                 `json:"version"`
	Timestamp  time.Time              `json:"timestamp"`
	Uptime     time.Duration          `json:"uptime"`
	Checks     map[string]CheckResult `json:"checks"`
	SystemInfo SystemInfo             `json:"system_info"`
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Status  HealthStatus           `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemInfo contains process and staging disk information
type SystemInfo struct {
	StoreBackend         string  `json:"store_backend"`
	StagingDiskTotal     int64   `json:"staging_disk_total"`
	StagingDiskAvailable int64   `json:"staging_disk_available"`
	StagingDiskUsage     float64 `json:"staging_disk_usage_percent"`
	PendingIntents       int     `json:"pending_intents"`
	GoRoutines           int     `json:"go_routines"`
}

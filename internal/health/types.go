package health

import "time"

// HealthStatus represents the health state of an inference endpoint
type HealthStatus string

const (
	StatusHealthy     HealthStatus = "healthy"
	StatusDegraded    HealthStatus = "degraded"    // recent failures, below the threshold
	StatusUnavailable HealthStatus = "unavailable" // failure threshold reached
	StatusCooldown    HealthStatus = "cooldown"    // rate limited, calls paused until CooldownUntil
	StatusUnknown     HealthStatus = "unknown"
)

// EndpointHealth tracks one served model on the inference endpoint
type EndpointHealth struct {
	ModelName     string
	Status        HealthStatus
	LastChecked   time.Time
	LastSuccessAt time.Time
	FailureCount  int // consecutive failures since the last success
	LastError     string
	LastHTTPCode  int
	CooldownUntil time.Time
}

// Probe performs a lightweight liveness check for a model.
// Returns latency in milliseconds and any error encountered.
type Probe interface {
	Check(modelName string) (latencyMs int, err error)
}

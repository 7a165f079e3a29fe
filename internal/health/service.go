package health

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

const defaultFailureThreshold = 3

// Service tracks the health of every model the decision loop calls
type Service struct {
	mu               sync.RWMutex
	endpoints        map[string]*EndpointHealth
	probe            Probe
	failureThreshold int
	now              func() time.Time
}

// NewService creates a health tracker. probe may be nil when active checks are not needed.
func NewService(probe Probe, failureThreshold int) *Service {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}

	return &Service{
		endpoints:        make(map[string]*EndpointHealth),
		probe:            probe,
		failureThreshold: failureThreshold,
		now:              time.Now,
	}
}

// Register adds a model to the tracker in the unknown state
func (s *Service) Register(modelName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.endpoints[modelName]; !exists {
		s.endpoints[modelName] = &EndpointHealth{ModelName: modelName, Status: StatusUnknown}
		log.Printf("[HEALTH] Registered model %s", modelName)
	}
}

func (s *Service) entry(modelName string) *EndpointHealth {
	h, exists := s.endpoints[modelName]
	if !exists {
		h = &EndpointHealth{ModelName: modelName, Status: StatusUnknown}
		s.endpoints[modelName] = h
	}
	return h
}

// MarkHealthy records a successful call
func (s *Service) MarkHealthy(modelName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.entry(modelName)
	wasDown := h.Status == StatusUnavailable || h.Status == StatusCooldown || h.Status == StatusDegraded
	now := s.now()

	h.Status = StatusHealthy
	h.FailureCount = 0
	h.LastError = ""
	h.LastHTTPCode = 0
	h.LastSuccessAt = now
	h.LastChecked = now
	h.CooldownUntil = time.Time{}

	if wasDown {
		log.Printf("[HEALTH] Model %s recovered - now healthy", modelName)
	}
}

// MarkFailure records a failed call. Quota errors put the model into cooldown;
// other failures degrade it and, at the threshold, mark it unavailable.
func (s *Service) MarkFailure(modelName string, errMsg string, httpCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.entry(modelName)
	now := s.now()

	h.FailureCount++
	h.LastError = errMsg
	h.LastHTTPCode = httpCode
	h.LastChecked = now

	if IsQuotaError(httpCode, errMsg) {
		h.Status = StatusCooldown
		h.CooldownUntil = now.Add(ParseCooldownDuration(httpCode, errMsg))
		log.Printf("[HEALTH] Model %s in COOLDOWN until %s (reason: %s)",
			modelName, h.CooldownUntil.Format(time.RFC3339), truncateStr(errMsg, 100))
		return
	}

	if h.FailureCount >= s.failureThreshold {
		if h.Status != StatusUnavailable {
			log.Printf("[HEALTH] Model %s marked UNAVAILABLE after %d failures: %s",
				modelName, h.FailureCount, truncateStr(errMsg, 200))
		}
		h.Status = StatusUnavailable
		return
	}

	h.Status = StatusDegraded
	log.Printf("[HEALTH] Model %s failure %d/%d: %s",
		modelName, h.FailureCount, s.failureThreshold, truncateStr(errMsg, 200))
}

// InCooldown reports whether calls to the model should be skipped until the returned time
func (s *Service) InCooldown(modelName string) (bool, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.endpoints[modelName]
	if !exists || h.Status != StatusCooldown {
		return false, time.Time{}
	}
	if s.now().Before(h.CooldownUntil) {
		return true, h.CooldownUntil
	}
	return false, time.Time{}
}

// Get returns a copy of the model's health entry
func (s *Service) Get(modelName string) (EndpointHealth, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.endpoints[modelName]
	if !exists {
		return EndpointHealth{}, false
	}
	return *h, true
}

// Status returns the model's current status, treating an expired cooldown as unknown
func (s *Service) Status(modelName string) HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.endpoints[modelName]
	if !exists {
		return StatusUnknown
	}
	if h.Status == StatusCooldown && !s.now().Before(h.CooldownUntil) {
		return StatusUnknown
	}
	return h.Status
}

// CheckNow runs the probe against a model and records the result
func (s *Service) CheckNow(modelName string) error {
	if s.probe == nil {
		return fmt.Errorf("no health probe configured")
	}

	if _, err := s.probe.Check(modelName); err != nil {
		s.MarkFailure(modelName, err.Error(), 0)
		return err
	}
	s.MarkHealthy(modelName)
	return nil
}

// GetAll returns every tracked model, sorted by name
func (s *Service) GetAll() []EndpointHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]EndpointHealth, 0, len(s.endpoints))
	for _, h := range s.endpoints {
		result = append(result, *h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ModelName < result[j].ModelName })
	return result
}

// GetStatus returns a status summary suitable for a health endpoint
func (s *Service) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{
		string(StatusHealthy):     0,
		string(StatusDegraded):    0,
		string(StatusUnavailable): 0,
		string(StatusCooldown):    0,
		string(StatusUnknown):     0,
	}
	models := make(map[string]string, len(s.endpoints))

	for name, h := range s.endpoints {
		status := h.Status
		if status == StatusCooldown && !s.now().Before(h.CooldownUntil) {
			status = StatusUnknown
		}
		counts[string(status)]++
		models[name] = string(status)
	}

	return map[string]interface{}{
		"total":  len(s.endpoints),
		"counts": counts,
		"models": models,
	}
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

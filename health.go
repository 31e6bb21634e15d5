package flowkernel

import (
	"fmt"
	"time"
)

// HealthStatus is the health of a module or of the whole kernel.
type HealthStatus int

const (
	// HealthStatusUnknown: the module has not reported ready yet.
	HealthStatusUnknown HealthStatus = iota
	HealthStatusHealthy
	// HealthStatusDegraded: the kernel runs but at least one module crashed.
	HealthStatusDegraded
	HealthStatusUnhealthy
)

func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s HealthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name; unknown names yield HealthStatusUnknown.
func (s *HealthStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "healthy":
		*s = HealthStatusHealthy
	case "degraded":
		*s = HealthStatusDegraded
	case "unhealthy":
		*s = HealthStatusUnhealthy
	default:
		*s = HealthStatusUnknown
	}
	return nil
}

// IsHealthy reports whether s is HealthStatusHealthy.
func (s HealthStatus) IsHealthy() bool {
	return s == HealthStatusHealthy
}

// HealthReport is the health of one module.
type HealthReport struct {
	Module    string       `json:"module"`
	Handle    Handle       `json:"handle"`
	State     string       `json:"state"`
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	CheckedAt time.Time    `json:"checkedAt"`
}

// AggregatedHealth is the health of the kernel and every module of its root
// container.
type AggregatedHealth struct {
	Status    HealthStatus   `json:"status"`
	Started   bool           `json:"started"`
	Reports   []HealthReport `json:"reports"`
	CheckedAt time.Time      `json:"checkedAt"`
}

// moduleHealth derives the health of m from its lifecycle state.
func moduleHealth(m *Module, now time.Time) HealthReport {
	state := m.State()
	r := HealthReport{
		Module:    m.Name(),
		Handle:    m.Handle(),
		State:     state.String(),
		CheckedAt: now,
	}
	switch state {
	case StateReady, StateRunning:
		r.Status = HealthStatusHealthy
	case StateCrashed:
		r.Status = HealthStatusUnhealthy
		if err := m.Err(); err != nil {
			r.Message = err.Error()
		}
	case StateStopped, StateRemoved:
		r.Status = HealthStatusUnhealthy
		r.Message = fmt.Sprintf("module is %s", state)
	default:
		r.Status = HealthStatusUnknown
	}
	return r
}

// Health reports the kernel health. A stopped kernel is unhealthy; a started
// one is degraded while any module is unhealthy and healthy otherwise. Modules
// that are not ready yet do not count against the kernel.
func (k *Kernel) Health() AggregatedHealth {
	now := time.Now()
	h := AggregatedHealth{
		Status:    HealthStatusHealthy,
		Started:   k.IsStarted(),
		Reports:   []HealthReport{},
		CheckedAt: now,
	}
	for _, m := range k.root.Modules() {
		r := moduleHealth(m, now)
		if r.Status == HealthStatusUnhealthy {
			h.Status = HealthStatusDegraded
		}
		h.Reports = append(h.Reports, r)
	}
	if !h.Started {
		h.Status = HealthStatusUnhealthy
	}
	return h
}

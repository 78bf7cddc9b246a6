package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/watzon/topiccache/internal/discovery"
	"github.com/watzon/topiccache/internal/realtime"
)

type HealthHandlers struct {
	listener *discovery.Listener
	broker   *realtime.Broker
	version  string
}

func NewHealthHandlers(listener *discovery.Listener, broker *realtime.Broker, version string) *HealthHandlers {
	return &HealthHandlers{
		listener: listener,
		broker:   broker,
		version:  version,
	}
}

type HealthStatus string

const (
	HealthStatusHealthy HealthStatus = "healthy"
)

type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
	Index      discovery.Stats            `json:"index"`
	Components map[string]ComponentHealth `json:"components"`
}

var startTime = time.Now()

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	components := map[string]ComponentHealth{
		"realtime": h.checkBroker(),
	}

	JSON(w, http.StatusOK, HealthResponse{
		Status:     HealthStatusHealthy,
		Version:    h.version,
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Index:      h.listener.Stats(),
		Components: components,
	})
}

func (h *HealthHandlers) checkBroker() ComponentHealth {
	if h.broker == nil {
		return ComponentHealth{
			Status:  HealthStatusHealthy,
			Message: "disabled",
		}
	}

	if h.broker.ClientCount() == 0 {
		return ComponentHealth{
			Status:  HealthStatusHealthy,
			Message: "no active connections",
		}
	}

	return ComponentHealth{
		Status: HealthStatusHealthy,
	}
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

func (h *HealthHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := map[string]any{
		"runtime": RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     m.Alloc,
			MemSys:       m.Sys,
			NumGC:        m.NumGC,
		},
		"uptime": time.Since(startTime).Round(time.Second).String(),
		"index":  h.listener.Stats(),
	}

	if h.broker != nil {
		resp["realtime"] = map[string]any{
			"connections": h.broker.ClientCount(),
		}
	}

	JSON(w, http.StatusOK, resp)
}

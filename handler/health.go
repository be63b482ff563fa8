package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/vantage-run/optigate/datahaven"
	"github.com/vantage-run/optigate/memory"
	"github.com/vantage-run/optigate/provider"
)

type healthResponse struct {
	Status             string   `json:"status"`
	MemoryEntries      int      `json:"memory_entries"`
	DataHavenAvailable bool     `json:"datahaven_available"`
	ProvidersAvailable []string `json:"providers_available"`
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	memoryStore memory.Store
	registry    *provider.Registry
	datahaven   *datahaven.Client
}

func NewHealthHandler(memoryStore memory.Store, registry *provider.Registry, dh *datahaven.Client) *HealthHandler {
	return &HealthHandler{memoryStore: memoryStore, registry: registry, datahaven: dh}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	statuses := h.registry.HealthCheckAll(ctx)
	var available []string
	for name, status := range statuses {
		if status.Healthy {
			available = append(available, name)
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:             "ok",
		MemoryEntries:      h.memoryStore.Count(ctx),
		DataHavenAvailable: h.datahaven.IsAvailable(ctx),
		ProvidersAvailable: available,
	})
}

package gateway

import (
	"net/http"
	"sort"
	"time"

	"github.com/llmwire/llmwire/internal/api/openai"
	"github.com/llmwire/llmwire/internal/domain"
	"github.com/llmwire/llmwire/internal/storage/sqlite"
)

// handleModels lists the model names this gateway will accept: every
// configured alias, attributed to the provider whose table defines it.
func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	created := time.Now().Unix()

	var models []openai.Model
	for provider, table := range h.registry.Aliases() {
		for alias := range table {
			models = append(models, openai.Model{
				ID:      alias,
				Object:  "model",
				Created: created,
				OwnedBy: provider,
			})
		}
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].OwnedBy != models[j].OwnedBy {
			return models[i].OwnedBy < models[j].OwnedBy
		}
		return models[i].ID < models[j].ID
	})

	writeJSON(w, http.StatusOK, openai.ModelList{Object: "list", Data: models})
}

// aliasListing is one provider's alias table plus routing defaults.
type aliasListing struct {
	DefaultProvider string                       `json:"default_provider"`
	Providers       map[string]map[string]string `json:"providers"`
}

func (h *Handler) handleAliases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, aliasListing{
		DefaultProvider: h.registry.Default(),
		Providers:       h.registry.Aliases(),
	})
}

type usageReport struct {
	Totals []sqlite.ProviderTotals `json:"totals"`
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	report := usageReport{Totals: []sqlite.ProviderTotals{}}
	if h.store != nil {
		totals, err := h.store.Totals(r.Context())
		if err != nil {
			writeError(w, domain.WireFormatOpenAI, domain.NewAPIError(domain.ErrorTypeServer, "usage query failed"))
			return
		}
		if totals != nil {
			report.Totals = totals
		}
	}
	writeJSON(w, http.StatusOK, report)
}

type healthStatus struct {
	Status    string   `json:"status"`
	Providers []string `json:"providers"`
	InFlight  int64    `json:"in_flight"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Status:    "ok",
		Providers: h.registry.Names(),
	}
	if h.tracker != nil {
		status.InFlight = h.tracker.InFlight()
	}
	writeJSON(w, http.StatusOK, status)
}

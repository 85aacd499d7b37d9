package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/gateway/budget"
)

// SpendLimitsWriter is the slice of budget.PostgresLimitsSource the admin
// endpoint needs to configure a tenant's BudgetChecker limits.
type SpendLimitsWriter interface {
	SetSpendLimits(ctx context.Context, tenant string, limits budget.SpendLimits, tier domain.PricingTier) error
}

type setSpendLimitsRequest struct {
	Tier        string `json:"tier"`
	MaxPerHour  string `json:"max_per_hour"`
	MaxPerMonth string `json:"max_per_month"`
}

// handleSetSpendLimits configures the spend ceiling the BudgetChecker gate
// enforces for a tenant. Admin-scoped only; a tenant with no limits row
// skips the gate entirely (see budget.Checker.Check).
func (s *Server) handleSetSpendLimits(w http.ResponseWriter, r *http.Request) {
	if s.limits == nil {
		writeError(w, http.StatusServiceUnavailable, "spend limits are not configurable on this deployment")
		return
	}

	tenant := mux.Vars(r)["tenant"]
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "tenant is required")
		return
	}

	var req setSpendLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Tier == "" {
		writeError(w, http.StatusBadRequest, "tier is required")
		return
	}

	limits := budget.SpendLimits{}
	if req.MaxPerHour != "" {
		d, err := decimal.NewFromString(req.MaxPerHour)
		if err != nil {
			writeError(w, http.StatusBadRequest, "max_per_hour is not a valid decimal")
			return
		}
		limits.MaxPerHour = d
	}
	if req.MaxPerMonth != "" {
		d, err := decimal.NewFromString(req.MaxPerMonth)
		if err != nil {
			writeError(w, http.StatusBadRequest, "max_per_month is not a valid decimal")
			return
		}
		limits.MaxPerMonth = d
	}

	if err := s.limits.SetSpendLimits(r.Context(), tenant, limits, domain.PricingTier(req.Tier)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wopr-network/wopr-platform/internal/adapter"
	"github.com/wopr-network/wopr-platform/internal/domain"
)

type capabilityRequest struct {
	Input       json.RawMessage    `json:"input"`
	Adapter     string             `json:"adapter,omitempty"`
	PricingTier domain.PricingTier `json:"pricing_tier,omitempty"`
	SessionID   string             `json:"session_id,omitempty"`
	BYOK        bool               `json:"byok,omitempty"`
}

// handleCapability executes one AdapterSocket capability call. The
// capability itself comes from the route ({capability} in /v1/{capability}),
// not the request body — one static method per capability, per §6.
func (s *Server) handleCapability(w http.ResponseWriter, r *http.Request) {
	capability := domain.Capability(mux.Vars(r)["capability"])

	var body capabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	principal, _ := r.Context().Value(principalKey).(Principal)

	var input any
	if len(body.Input) > 0 {
		if err := json.Unmarshal(body.Input, &input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid input payload")
			return
		}
	}

	req := adapter.ExecuteRequest{
		Tenant:      principal.Tenant,
		Capability:  capability,
		Input:       input,
		Adapter:     body.Adapter,
		PricingTier: body.PricingTier,
		SessionID:   body.SessionID,
		BYOK:        body.BYOK,
	}

	result, err := s.socket.Execute(r.Context(), req)
	if err != nil {
		var budgetErr *adapter.BudgetDeniedError
		if errors.As(err, &budgetErr) {
			writeError(w, budgetErr.HTTPStatus, budgetErr.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

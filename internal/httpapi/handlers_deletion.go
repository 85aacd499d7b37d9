package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// handleDeleteTenant runs the full tenant purge pipeline. Admin-scoped
// only: this is irreversible for everything except the admin audit log,
// which is anonymized rather than deleted.
func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "tenant is required")
		return
	}

	summary := s.deletions.Execute(r.Context(), tenant)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

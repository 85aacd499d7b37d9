package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/deletion"
)

func TestHandleDeleteTenant_RunsPipelineAndReturnsSummary(t *testing.T) {
	store := deletion.NewMemoryStore()
	store.Seed("bot_instances", "acme", 3)
	objects := deletion.NewMemoryObjectStore()

	executor := deletion.New(store, nil, objects, nil)
	s := &Server{deletions: executor}

	r := mux.NewRouter()
	r.HandleFunc("/admin/tenants/{tenant}", s.handleDeleteTenant).Methods("DELETE")

	req := httptest.NewRequest("DELETE", "/admin/tenants/acme", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)

	var summary deletion.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	require.Equal(t, int64(3), summary.DeletedCounts["bot_instances"])
}

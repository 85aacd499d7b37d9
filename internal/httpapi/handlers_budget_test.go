package httpapi

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/gateway/budget"
)

type fakeSpendLimitsWriter struct {
	tenant string
	limits budget.SpendLimits
	tier   domain.PricingTier
}

func (f *fakeSpendLimitsWriter) SetSpendLimits(ctx context.Context, tenant string, limits budget.SpendLimits, tier domain.PricingTier) error {
	f.tenant = tenant
	f.limits = limits
	f.tier = tier
	return nil
}

func TestHandleSetSpendLimits_StoresRequestedLimits(t *testing.T) {
	writer := &fakeSpendLimitsWriter{}
	s := &Server{limits: writer}

	r := mux.NewRouter()
	r.HandleFunc("/admin/tenants/{tenant}/spend-limits", s.handleSetSpendLimits).Methods("PUT")

	body := `{"tier":"standard","max_per_hour":"10.50","max_per_month":"300"}`
	req := httptest.NewRequest("PUT", "/admin/tenants/acme/spend-limits", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, 204, w.Code)
	require.Equal(t, "acme", writer.tenant)
	require.Equal(t, domain.PricingTier("standard"), writer.tier)
	require.True(t, writer.limits.MaxPerHour.Equal(decimal.RequireFromString("10.50")))
}

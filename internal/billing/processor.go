// Package billing defines the PaymentProcessor boundary (one of the
// external-collaborator interfaces named in the design notes) and its
// concrete Stripe adapter. UsageAggregator reports aggregated usage
// through it; DeletionExecutor uses it for external customer deletion.
package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"

	"github.com/wopr-network/wopr-platform/internal/domain"
)

// PaymentProcessor is the external payment-processor boundary. Its choice
// of concrete implementation is explicitly out of scope; this package
// ships a Stripe-backed adapter and a no-op fallback used when billing
// integration is disabled.
type PaymentProcessor interface {
	// ReportUsage submits one BillingPeriodSummary's aggregated usage and
	// returns an external reference id recorded on the ExternalUsageReport.
	ReportUsage(ctx context.Context, summary domain.BillingPeriodSummary) (externalRef string, err error)
	// DeleteCustomer removes the tenant's external customer record. Used
	// by DeletionExecutor step 1; failure there is recorded and does not
	// abort the pipeline.
	DeleteCustomer(ctx context.Context, tenant string) error
}

// StripeProcessor reports usage via Stripe usage records and deletes
// customers via the Customers API.
type StripeProcessor struct {
	client *client.API
	logger *slog.Logger
}

// NewStripeProcessor constructs a processor bound to the given API key.
// Selected by UsageAggregator/DeletionExecutor wiring when
// STRIPE_SECRET_KEY is configured.
func NewStripeProcessor(secretKey string, logger *slog.Logger) *StripeProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProcessor{client: api, logger: logger}
}

func (p *StripeProcessor) ReportUsage(ctx context.Context, summary domain.BillingPeriodSummary) (string, error) {
	charge, _ := summary.TotalCharge.Float64()
	quantity := int64(charge * 1e8) // report in credits (1e-8 USD units)

	params := &stripe.UsageRecordParams{
		SubscriptionItem: stripe.String(summary.Tenant),
		Quantity:         stripe.Int64(quantity),
		Action:           stripe.String(string(stripe.UsageRecordActionIncrement)),
	}
	params.Context = ctx

	record, err := p.client.UsageRecords.New(params)
	if err != nil {
		return "", fmt.Errorf("billing: reporting usage to stripe: %w", err)
	}
	return record.ID, nil
}

func (p *StripeProcessor) DeleteCustomer(ctx context.Context, tenant string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if _, err := p.client.Customers.Del(tenant, params); err != nil {
		return fmt.Errorf("billing: deleting stripe customer: %w", err)
	}
	return nil
}

// NoopProcessor is selected when STRIPE_SECRET_KEY is unset: billing
// integration is disabled per section 6, but UsageAggregator and
// DeletionExecutor still need a PaymentProcessor to call.
type NoopProcessor struct{}

func (NoopProcessor) ReportUsage(ctx context.Context, summary domain.BillingPeriodSummary) (string, error) {
	return "", nil
}

func (NoopProcessor) DeleteCustomer(ctx context.Context, tenant string) error {
	return nil
}

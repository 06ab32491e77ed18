package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	stripeProviderName = "stripe"

	// metadataOrderID links a Stripe intent back to the order it pays for.
	metadataOrderID = "order_id"

	defaultCurrency = "jpy"
)

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api *client.API
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider wires a Stripe client with the given secret key.
func NewStripeProvider(apiKey string) (*StripeProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("stripe provider: api key is required")
	}
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProvider{api: api}, nil
}

func (p *StripeProvider) Name() string { return stripeProviderName }

func (p *StripeProvider) Authorize(ctx context.Context, req AuthorizeRequest) (Intent, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return Intent{}, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return Intent{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	params.AddMetadata(metadataOrderID, req.OrderID)

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, mapStripeError("authorize", err)
	}
	return intentFromStripe(pi), nil
}

func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (Refund, error) {
	if strings.TrimSpace(req.IntentID) == "" {
		return Refund{}, fmt.Errorf("%w: intent id is required", ErrInvalidRequest)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
	}
	params.Context = ctx
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		params.AddMetadata("reason", reason)
	}

	refund, err := p.api.Refunds.New(params)
	if err != nil {
		return Refund{}, mapStripeError("refund", err)
	}

	result := Refund{
		ID:     refund.ID,
		Amount: refund.Amount,
		Status: string(refund.Status),
	}
	if refund.PaymentIntent != nil {
		result.IntentID = refund.PaymentIntent.ID
	}
	return result, nil
}

func (p *StripeProvider) Lookup(ctx context.Context, intentID string) (Intent, error) {
	if strings.TrimSpace(intentID) == "" {
		return Intent{}, fmt.Errorf("%w: intent id is required", ErrInvalidRequest)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return Intent{}, mapStripeError("lookup", err)
	}
	return intentFromStripe(pi), nil
}

func intentFromStripe(pi *stripe.PaymentIntent) Intent {
	return Intent{
		ID:           pi.ID,
		OrderID:      pi.Metadata[metadataOrderID],
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       normaliseIntentStatus(pi.Status),
		ClientSecret: pi.ClientSecret,
	}
}

func normaliseIntentStatus(status stripe.PaymentIntentStatus) string {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return IntentStatusFailed
	default:
		return IntentStatusPending
	}
}

func mapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %s: %v", ErrIntentNotFound, op, err)
	}
	return fmt.Errorf("payments: stripe %s: %w", op, err)
}

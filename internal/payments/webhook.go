package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/orderdeck/api/internal/services"
)

var (
	// ErrWebhookSignature indicates the payload failed signature verification.
	ErrWebhookSignature = errors.New("payments: webhook signature invalid")
	// ErrWebhookIgnored indicates an event type this system does not act on.
	ErrWebhookIgnored = errors.New("payments: webhook event ignored")
	// ErrWebhookPayload indicates a recognised event that cannot be linked to an order.
	ErrWebhookPayload = errors.New("payments: webhook payload invalid")
)

// Stripe event types translated into payment signals.
const (
	eventPaymentSucceeded = "payment_intent.succeeded"
	eventPaymentFailed    = "payment_intent.payment_failed"
	eventChargeRefunded   = "charge.refunded"
)

// WebhookTranslator verifies Stripe webhook signatures and translates gateway
// events into payment signal commands for the order service.
type WebhookTranslator struct {
	secret    string
	construct func(payload []byte, header, secret string) (stripe.Event, error)
}

// NewWebhookTranslator builds a translator bound to the endpoint's signing secret.
func NewWebhookTranslator(secret string) (*WebhookTranslator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("webhook translator: signing secret is required")
	}
	return &WebhookTranslator{
		secret:    secret,
		construct: webhook.ConstructEvent,
	}, nil
}

// Translate verifies the signature header and maps the event to a payment
// signal. Unhandled event types return ErrWebhookIgnored so the handler can
// acknowledge them without acting.
func (t *WebhookTranslator) Translate(payload []byte, signature string) (services.ApplyPaymentSignalCommand, error) {
	event, err := t.construct(payload, signature, t.secret)
	if err != nil {
		return services.ApplyPaymentSignalCommand{}, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	switch string(event.Type) {
	case eventPaymentSucceeded:
		return t.intentSignal(event, services.PaymentSignalConfirmed)
	case eventPaymentFailed:
		return t.intentSignal(event, services.PaymentSignalFailed)
	case eventChargeRefunded:
		return t.chargeSignal(event)
	default:
		return services.ApplyPaymentSignalCommand{}, fmt.Errorf("%w: %s", ErrWebhookIgnored, event.Type)
	}
}

func (t *WebhookTranslator) intentSignal(event stripe.Event, kind services.PaymentSignalKind) (services.ApplyPaymentSignalCommand, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return services.ApplyPaymentSignalCommand{}, fmt.Errorf("%w: decode payment intent: %v", ErrWebhookPayload, err)
	}

	orderID := strings.TrimSpace(intent.Metadata[metadataOrderID])
	if orderID == "" {
		return services.ApplyPaymentSignalCommand{}, fmt.Errorf("%w: intent %s carries no order id", ErrWebhookPayload, intent.ID)
	}

	return services.ApplyPaymentSignalCommand{
		OrderID:   orderID,
		Kind:      kind,
		Reference: intent.ID,
	}, nil
}

func (t *WebhookTranslator) chargeSignal(event stripe.Event) (services.ApplyPaymentSignalCommand, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return services.ApplyPaymentSignalCommand{}, fmt.Errorf("%w: decode charge: %v", ErrWebhookPayload, err)
	}

	orderID := strings.TrimSpace(charge.Metadata[metadataOrderID])
	if orderID == "" {
		return services.ApplyPaymentSignalCommand{}, fmt.Errorf("%w: charge %s carries no order id", ErrWebhookPayload, charge.ID)
	}

	reference := charge.ID
	if charge.PaymentIntent != nil && charge.PaymentIntent.ID != "" {
		reference = charge.PaymentIntent.ID
	}

	return services.ApplyPaymentSignalCommand{
		OrderID:   orderID,
		Kind:      services.PaymentSignalRefunded,
		Reference: reference,
	}, nil
}

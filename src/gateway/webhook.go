package gateway

import (
	"encoding/json"
	"fmt"

	"havenledger-server/src/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = fmt.Errorf("%w: invalid webhook signature", models.ErrInvalidInput)

// ParseEvent verifies a webhook payload against the endpoint secret and reduces it
// to a GatewayEvent.
func ParseEvent(payload []byte, signature, secret string) (models.GatewayEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return models.GatewayEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return FromStripeEvent(event)
}

type eventObject struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
	PaymentIntent  string `json:"payment_intent"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`

	Metadata map[string]string `json:"metadata"`
}

func FromStripeEvent(event stripe.Event) (models.GatewayEvent, error) {
	out := models.GatewayEvent{
		EventID:   event.ID,
		Type:      string(event.Type),
		AccountID: event.Account,
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	var obj eventObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return out, fmt.Errorf("%w: decode event object: %v", models.ErrInvalidInput, err)
	}
	out.ObjectID = obj.ID
	out.Tracked = obj.Metadata[string(MetaSource)] == SourceValue

	switch out.Type {
	case models.EventPaymentSucceeded:
		out.Status = models.PaymentStatusSucceeded
	case models.EventPaymentFailed:
		out.Status = models.PaymentStatusFailed
	case models.EventPaymentCanceled:
		out.Status = models.PaymentStatusCanceled
	case models.EventCheckoutCompleted:
		out.PaymentID = obj.PaymentIntent
		// async methods complete the session before the money moves
		if obj.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid) {
			out.Status = models.PaymentStatusSucceeded
		} else {
			out.Status = models.PaymentStatusCreated
		}
	case models.EventCheckoutExpired:
		out.Status = models.PaymentStatusCanceled
	case models.EventAccountUpdated:
		out.AccountID = obj.ID
		out.ChargesEnabled = obj.ChargesEnabled
		out.PayoutsEnabled = obj.PayoutsEnabled
	}
	return out, nil
}

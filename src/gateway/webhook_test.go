package gateway

import (
	"encoding/json"
	"errors"
	"testing"

	"havenledger-server/src/models"

	"github.com/stripe/stripe-go/v76"
)

func TestFromStripeEvent(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		obj   string
		check func(t *testing.T, ev models.GatewayEvent)
	}{
		{
			name: "payment succeeded",
			typ:  models.EventPaymentSucceeded,
			obj:  `{"id":"pi_1","status":"succeeded"}`,
			check: func(t *testing.T, ev models.GatewayEvent) {
				if ev.ObjectID != "pi_1" || ev.Status != models.PaymentStatusSucceeded {
					t.Errorf("got %+v", ev)
				}
			},
		},
		{
			name: "payment failed",
			typ:  models.EventPaymentFailed,
			obj:  `{"id":"pi_2"}`,
			check: func(t *testing.T, ev models.GatewayEvent) {
				if ev.Status != models.PaymentStatusFailed {
					t.Errorf("status = %s", ev.Status)
				}
			},
		},
		{
			name: "paid checkout",
			typ:  models.EventCheckoutCompleted,
			obj:  `{"id":"cs_1","payment_status":"paid","payment_intent":"pi_3"}`,
			check: func(t *testing.T, ev models.GatewayEvent) {
				if ev.Status != models.PaymentStatusSucceeded || ev.PaymentID != "pi_3" || ev.ObjectID != "cs_1" {
					t.Errorf("got %+v", ev)
				}
			},
		},
		{
			name: "unpaid checkout stays created",
			typ:  models.EventCheckoutCompleted,
			obj:  `{"id":"cs_2","payment_status":"unpaid","payment_intent":"pi_4"}`,
			check: func(t *testing.T, ev models.GatewayEvent) {
				if ev.Status != models.PaymentStatusCreated {
					t.Errorf("status = %s", ev.Status)
				}
			},
		},
		{
			name: "payment created here is tracked",
			typ:  models.EventPaymentSucceeded,
			obj:  `{"id":"pi_5","metadata":{"org_id":"1","source":"havenledger"}}`,
			check: func(t *testing.T, ev models.GatewayEvent) {
				if !ev.Tracked {
					t.Errorf("event should be tracked: %+v", ev)
				}
			},
		},
		{
			name: "foreign payment is not tracked",
			typ:  models.EventPaymentSucceeded,
			obj:  `{"id":"pi_6","metadata":{"order":"77"}}`,
			check: func(t *testing.T, ev models.GatewayEvent) {
				if ev.Tracked {
					t.Errorf("event should not be tracked: %+v", ev)
				}
			},
		},
		{
			name: "account updated",
			typ:  models.EventAccountUpdated,
			obj:  `{"id":"acct_9","charges_enabled":true,"payouts_enabled":false}`,
			check: func(t *testing.T, ev models.GatewayEvent) {
				if ev.AccountID != "acct_9" || !ev.ChargesEnabled || ev.PayoutsEnabled {
					t.Errorf("got %+v", ev)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := FromStripeEvent(stripe.Event{
				ID:   "evt_1",
				Type: stripe.EventType(tt.typ),
				Data: &stripe.EventData{Raw: json.RawMessage(tt.obj)},
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.EventID != "evt_1" || ev.Type != tt.typ {
				t.Errorf("id/type = %s/%s", ev.EventID, ev.Type)
			}
			tt.check(t, ev)
		})
	}
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	_, err := ParseEvent([]byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef", "whsec_test")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Error("signature errors should map to invalid input")
	}
}

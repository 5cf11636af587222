package models

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed || s == PaymentStatusCanceled
}

type PaymentIntentRecord struct {
	ID                    int64         `json:"id"`
	OrgID                 int64         `json:"org_id"`
	PayerID               int64         `json:"payer_id"`
	AmountMinorUnits      int64         `json:"amount_minor_units"`
	ChargeTotalMinorUnits int64         `json:"charge_total_minor_units"`
	Currency              string        `json:"currency"`
	PlatformFeeMinorUnits int64         `json:"platform_fee_minor_units"`
	FeeMode               FeeMode       `json:"fee_mode"`
	ConnectedAccountID    string        `json:"connected_account_id"`
	InvoiceIDs            []int64       `json:"invoice_ids"`
	IdempotencyKey        string        `json:"idempotency_key"`
	ExternalID            *string       `json:"external_id"`
	CheckoutSessionID     *string       `json:"checkout_session_id"`
	CheckoutURL           *string       `json:"checkout_url,omitempty"`
	Status                PaymentStatus `json:"status"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

// GatewayEvent is a provider notification reduced to the fields this service acts on.
// ObjectID is the payment or checkout session id; PaymentID is set when a checkout
// session event also names the underlying payment.
type GatewayEvent struct {
	EventID        string        `json:"event_id"`
	Type           string        `json:"type"`
	ObjectID       string        `json:"object_id"`
	PaymentID      string        `json:"payment_id,omitempty"`
	Status         PaymentStatus `json:"status"`
	AccountID      string        `json:"account_id"`
	ChargesEnabled bool          `json:"charges_enabled"`
	PayoutsEnabled bool          `json:"payouts_enabled"`

	// Tracked is set when the object was created by this service, so its
	// payment record must exist before the event can be applied.
	Tracked bool `json:"tracked"`
}

const (
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventPaymentCanceled   = "payment_intent.canceled"
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventAccountUpdated    = "account.updated"
)

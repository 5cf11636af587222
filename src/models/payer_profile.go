package models

import "time"

type PayerProfile struct {
	ID                 int64     `json:"id"`
	OrgID              int64     `json:"org_id"`
	PayerID            int64     `json:"payer_id"`
	ExternalCustomerID *string   `json:"external_customer_id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	CreatedAt          time.Time `json:"created_at"`
}

// PaymentMethod is a saved payment instrument as reported by the gateway.
type PaymentMethod struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int64  `json:"exp_month,omitempty"`
	ExpYear  int64  `json:"exp_year,omitempty"`
}

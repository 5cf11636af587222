package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"havenledger-server/src/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const providerStripe = "stripe"

// StripeAPI implements API on stripe-go. The SDK's own network retries are off;
// Client owns the retry policy so every attempt reuses the same idempotency key.
type StripeAPI struct {
	sc *client.API
}

func NewStripeAPI(secretKey string, timeout time.Duration) *StripeAPI {
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	})
	return &StripeAPI{sc: client.New(secretKey, backends)}
}

func (s *StripeAPI) CreateAccount(ctx context.Context, req AccountRequest) (*Account, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(req.Country),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	applyMetadata(&params.Params, req.Metadata)

	acct, err := s.sc.Accounts.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return toAccount(acct), nil
}

func (s *StripeAPI) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := s.sc.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return toAccount(acct), nil
}

func (s *StripeAPI) CreateAccountLink(ctx context.Context, req AccountLinkRequest) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(req.AccountID),
		RefreshURL: stripe.String(req.RefreshURL),
		ReturnURL:  stripe.String(req.ReturnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx
	link, err := s.sc.AccountLinks.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return link.URL, nil
}

func (s *StripeAPI) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx
	link, err := s.sc.LoginLinks.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return link.URL, nil
}

func (s *StripeAPI) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.Phone != "" {
		params.Phone = stripe.String(req.Phone)
	}
	params.Context = ctx
	params.SetStripeAccount(req.ConnectedAccountID)
	params.SetIdempotencyKey(req.IdempotencyKey)
	applyMetadata(&params.Params, req.Metadata)

	cus, err := s.sc.Customers.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return cus.ID, nil
}

func (s *StripeAPI) CreateSetupIntent(ctx context.Context, req SetupIntentRequest) (*SetupIntent, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(req.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card", "us_bank_account"}),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	params.Context = ctx
	params.SetStripeAccount(req.ConnectedAccountID)
	applyMetadata(&params.Params, req.Metadata)

	si, err := s.sc.SetupIntents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &SetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

// CreateCharge confirms a PaymentIntent off-session. Saved payment methods live
// on the connected account, so a charge against a customer is created there
// with an application fee; a charge without one is routed with transfer_data.
// Both leave amount - fee with the connected account.
func (s *StripeAPI) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(req.AmountMinorUnits),
		Currency:             stripe.String(req.Currency),
		ApplicationFeeAmount: stripe.Int64(req.ApplicationFeeMinorUnits),
		PaymentMethod:        stripe.String(req.PaymentMethodID),
		Confirm:              stripe.Bool(true),
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
		params.OffSession = stripe.Bool(true)
		params.SetStripeAccount(req.DestinationAccountID)
	} else {
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.DestinationAccountID),
		}
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	applyMetadata(&params.Params, req.Metadata)

	pi, err := s.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &Charge{ID: pi.ID, Status: paymentStatus(pi.Status)}, nil
}

func (s *StripeAPI) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ClientReferenceID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(req.AmountMinorUnits),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(req.ApplicationFeeMinorUnits),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(req.DestinationAccountID),
			},
			Metadata: req.Metadata.Map(),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	applyMetadata(&params.Params, req.Metadata)

	sess, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	out := &CheckoutSession{ID: sess.ID, URL: sess.URL}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	return out, nil
}

func (s *StripeAPI) ListPaymentMethods(ctx context.Context, connectedAccountID, customerID string) ([]models.PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	params.SetStripeAccount(connectedAccountID)

	var methods []models.PaymentMethod
	iter := s.sc.PaymentMethods.List(params)
	for iter.Next() {
		pm := iter.PaymentMethod()
		method := models.PaymentMethod{ID: pm.ID, Type: string(pm.Type)}
		if pm.Card != nil {
			method.Brand = string(pm.Card.Brand)
			method.Last4 = pm.Card.Last4
			method.ExpMonth = pm.Card.ExpMonth
			method.ExpYear = pm.Card.ExpYear
		}
		if pm.USBankAccount != nil {
			method.Brand = pm.USBankAccount.BankName
			method.Last4 = pm.USBankAccount.Last4
		}
		methods = append(methods, method)
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return methods, nil
}

func (s *StripeAPI) DetachPaymentMethod(ctx context.Context, connectedAccountID, paymentMethodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	params.SetStripeAccount(connectedAccountID)
	if _, err := s.sc.PaymentMethods.Detach(paymentMethodID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

func applyMetadata(p *stripe.Params, md Metadata) {
	for k, v := range md.Map() {
		p.AddMetadata(k, v)
	}
}

func toAccount(acct *stripe.Account) *Account {
	return &Account{
		ID:               acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
}

func paymentStatus(s stripe.PaymentIntentStatus) models.PaymentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentStatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusCreated
	}
}

// mapStripeError converts SDK errors into GatewayError. 4xx responses other than
// 409 lock contention and 429 are rejections; everything else is retryable.
func mapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		ge := &models.GatewayError{
			Provider:   providerStripe,
			StatusCode: se.HTTPStatusCode,
			Code:       string(se.Code),
			Message:    se.Msg,
			Err:        err,
		}
		ge.Unavailable = retryableStatus(se.HTTPStatusCode, ge.Code)
		return ge
	}
	return &models.GatewayError{Provider: providerStripe, Message: err.Error(), Unavailable: true, Err: err}
}

func retryableStatus(status int, code string) bool {
	switch {
	case status == 0, status == http.StatusTooManyRequests, status >= 500:
		return true
	case status == http.StatusConflict && code == string(stripe.ErrorCodeLockTimeout):
		return true
	}
	return false
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"havenledger-server/src/idempotency"
	"havenledger-server/src/models"
	"havenledger-server/src/money"
	"havenledger-server/src/util"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("havenledger/gateway")

type SettingsStore interface {
	GetOrgPaymentConfig(ctx context.Context, orgID int64) (*models.OrgPaymentConfig, error)
	SaveConnectedAccount(ctx context.Context, orgID int64, accountID string, policy models.FeePolicy) (*models.OrgPaymentConfig, error)
	UpdateAccountStatus(ctx context.Context, accountID string, chargesEnabled, payoutsEnabled, detailsSubmitted bool) error
}

type PayerStore interface {
	GetPayerProfile(ctx context.Context, orgID, payerID int64) (*models.PayerProfile, error)
	SetExternalCustomerID(ctx context.Context, orgID, profileID int64, customerID string) error
}

type IntentStore interface {
	CreatePaymentIntent(ctx context.Context, rec *models.PaymentIntentRecord) (*models.PaymentIntentRecord, error)
	GetPaymentIntentByIdempotencyKey(ctx context.Context, orgID int64, key string) (*models.PaymentIntentRecord, error)
}

type Store interface {
	SettingsStore
	PayerStore
	IntentStore
	idempotency.Store
}

type Options struct {
	Country              string
	Currency             string
	CheckoutSuccessURL   string
	CheckoutCancelURL    string
	OnboardingRefreshURL string
	OnboardingReturnURL  string
	FeePolicy            models.FeePolicy
	Timeout              time.Duration
	Retry                util.RetryPolicy
}

// Client runs payment operations for organizations against the provider API
// and records their outcome. Every charge-creating call carries an idempotency
// key and is retried with that same key.
type Client struct {
	api    API
	store  Store
	keys   *idempotency.Manager
	opts   Options
	logger *zap.Logger
}

func NewClient(api API, store Store, opts Options, logger *zap.Logger) *Client {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.Country == "" {
		opts.Country = "US"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.FeePolicy.Percent.IsZero() && opts.FeePolicy.FixedMinorUnits == 0 {
		opts.FeePolicy = models.FeePolicy{
			Percent:         models.DefaultPlatformFeePercent,
			FixedMinorUnits: models.DefaultPlatformFeeFixedMinorUnits,
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:    api,
		store:  store,
		keys:   idempotency.NewManager(store),
		opts:   opts,
		logger: logger,
	}
}

// call wraps one provider operation with a span, a per-attempt timeout, and
// the retry policy.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "gateway."+op)
	defer span.End()

	attempts := 0
	err := util.Retry(ctx, c.opts.Retry, func(ctx context.Context) error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
		return fn(callCtx)
	})
	span.SetAttributes(attribute.Int("gateway.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
	}
	return err
}

func (c *Client) connectedConfig(ctx context.Context, orgID int64) (*models.OrgPaymentConfig, error) {
	cfg, err := c.store.GetOrgPaymentConfig(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load payment config: %w", err)
	}
	if !cfg.Connected() {
		return nil, models.ErrNotConnected
	}
	return cfg, nil
}

// CreateConnectedAccount provisions the organization's payout account. An
// organization gets at most one.
func (c *Client) CreateConnectedAccount(ctx context.Context, orgID int64, email string) (*models.OrgPaymentConfig, error) {
	cfg, err := c.store.GetOrgPaymentConfig(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load payment config: %w", err)
	}
	if cfg.Connected() {
		return nil, models.ErrAlreadyExists
	}

	var md Metadata
	if err := md.Set(MetaOrgID, strconv.FormatInt(orgID, 10)); err != nil {
		return nil, err
	}

	var acct *Account
	err = c.call(ctx, "create_account", func(ctx context.Context) error {
		var err error
		acct, err = c.api.CreateAccount(ctx, AccountRequest{
			Country:        c.opts.Country,
			Email:          email,
			Metadata:       md,
			IdempotencyKey: "acct_" + idempotency.Fingerprint("account", strconv.FormatInt(orgID, 10)),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create connected account: %w", err)
	}

	saved, err := c.store.SaveConnectedAccount(ctx, orgID, acct.ID, c.opts.FeePolicy)
	if err != nil {
		return nil, fmt.Errorf("save connected account: %w", err)
	}
	c.logger.Info("created connected account", zap.Int64("org_id", orgID), zap.String("account_id", acct.ID))
	return saved, nil
}

func (c *Client) CreateOnboardingLink(ctx context.Context, orgID int64) (string, error) {
	cfg, err := c.connectedConfig(ctx, orgID)
	if err != nil {
		return "", err
	}
	var url string
	err = c.call(ctx, "create_account_link", func(ctx context.Context) error {
		var err error
		url, err = c.api.CreateAccountLink(ctx, AccountLinkRequest{
			AccountID:  *cfg.ConnectedAccountID,
			RefreshURL: c.opts.OnboardingRefreshURL,
			ReturnURL:  c.opts.OnboardingReturnURL,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create onboarding link: %w", err)
	}
	return url, nil
}

func (c *Client) CreateDashboardLink(ctx context.Context, orgID int64) (string, error) {
	cfg, err := c.connectedConfig(ctx, orgID)
	if err != nil {
		return "", err
	}
	var url string
	err = c.call(ctx, "create_login_link", func(ctx context.Context) error {
		var err error
		url, err = c.api.CreateLoginLink(ctx, *cfg.ConnectedAccountID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create dashboard link: %w", err)
	}
	return url, nil
}

// SyncAccountStatus refreshes the charges and payouts flags from the provider.
func (c *Client) SyncAccountStatus(ctx context.Context, orgID int64) (*models.OrgPaymentConfig, error) {
	cfg, err := c.connectedConfig(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var acct *Account
	err = c.call(ctx, "get_account", func(ctx context.Context) error {
		var err error
		acct, err = c.api.GetAccount(ctx, *cfg.ConnectedAccountID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get connected account: %w", err)
	}
	if err := c.store.UpdateAccountStatus(ctx, acct.ID, acct.ChargesEnabled, acct.PayoutsEnabled, acct.DetailsSubmitted); err != nil {
		return nil, fmt.Errorf("update account status: %w", err)
	}
	cfg.ChargesEnabled = acct.ChargesEnabled
	cfg.PayoutsEnabled = acct.PayoutsEnabled
	return cfg, nil
}

// CreateCustomer registers the payer with the provider under the organization's
// connected account. A payer gets at most one customer id.
func (c *Client) CreateCustomer(ctx context.Context, orgID, payerID int64) (string, error) {
	cfg, err := c.connectedConfig(ctx, orgID)
	if err != nil {
		return "", err
	}
	profile, err := c.store.GetPayerProfile(ctx, orgID, payerID)
	if err != nil {
		return "", err
	}
	if profile.ExternalCustomerID != nil {
		return "", models.ErrAlreadyExists
	}

	var md Metadata
	if err := md.Set(MetaOrgID, strconv.FormatInt(orgID, 10)); err != nil {
		return "", err
	}
	if err := md.Set(MetaPayerID, strconv.FormatInt(payerID, 10)); err != nil {
		return "", err
	}

	var customerID string
	err = c.call(ctx, "create_customer", func(ctx context.Context) error {
		var err error
		customerID, err = c.api.CreateCustomer(ctx, CustomerRequest{
			ConnectedAccountID: *cfg.ConnectedAccountID,
			Name:               profile.Name,
			Email:              profile.Email,
			Phone:              profile.Phone,
			Metadata:           md,
			IdempotencyKey:     "cus_" + idempotency.Fingerprint("customer", strconv.FormatInt(orgID, 10), strconv.FormatInt(payerID, 10)),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	if err := c.store.SetExternalCustomerID(ctx, orgID, profile.ID, customerID); err != nil {
		return "", fmt.Errorf("save customer id: %w", err)
	}
	c.logger.Info("created gateway customer", zap.Int64("org_id", orgID), zap.Int64("payer_id", payerID))
	return customerID, nil
}

func (c *Client) payerCustomer(ctx context.Context, orgID, payerID int64) (*models.OrgPaymentConfig, string, error) {
	cfg, err := c.connectedConfig(ctx, orgID)
	if err != nil {
		return nil, "", err
	}
	profile, err := c.store.GetPayerProfile(ctx, orgID, payerID)
	if err != nil {
		return nil, "", err
	}
	if profile.ExternalCustomerID == nil {
		return cfg, "", nil
	}
	return cfg, *profile.ExternalCustomerID, nil
}

// CreateSetupIntent starts saving a payment method for later off-session use
// and returns the client secret.
func (c *Client) CreateSetupIntent(ctx context.Context, orgID, payerID int64) (string, error) {
	cfg, customerID, err := c.payerCustomer(ctx, orgID, payerID)
	if err != nil {
		return "", err
	}
	if customerID == "" {
		return "", fmt.Errorf("payer %d has no gateway customer: %w", payerID, models.ErrNotFound)
	}

	var md Metadata
	if err := md.Set(MetaOrgID, strconv.FormatInt(orgID, 10)); err != nil {
		return "", err
	}

	var si *SetupIntent
	err = c.call(ctx, "create_setup_intent", func(ctx context.Context) error {
		var err error
		si, err = c.api.CreateSetupIntent(ctx, SetupIntentRequest{
			ConnectedAccountID: *cfg.ConnectedAccountID,
			CustomerID:         customerID,
			Metadata:           md,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create setup intent: %w", err)
	}
	return si.ClientSecret, nil
}

func (c *Client) ListPaymentMethods(ctx context.Context, orgID, payerID int64) ([]models.PaymentMethod, error) {
	cfg, customerID, err := c.payerCustomer(ctx, orgID, payerID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return []models.PaymentMethod{}, nil
	}
	var methods []models.PaymentMethod
	err = c.call(ctx, "list_payment_methods", func(ctx context.Context) error {
		var err error
		methods, err = c.api.ListPaymentMethods(ctx, *cfg.ConnectedAccountID, customerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	if methods == nil {
		methods = []models.PaymentMethod{}
	}
	return methods, nil
}

// DetachPaymentMethod removes a saved method. The method must belong to the payer.
func (c *Client) DetachPaymentMethod(ctx context.Context, orgID, payerID int64, paymentMethodID string) error {
	methods, err := c.ListPaymentMethods(ctx, orgID, payerID)
	if err != nil {
		return err
	}
	owned := false
	for _, m := range methods {
		if m.ID == paymentMethodID {
			owned = true
			break
		}
	}
	if !owned {
		return fmt.Errorf("payment method %s: %w", paymentMethodID, models.ErrNotFound)
	}

	cfg, err := c.connectedConfig(ctx, orgID)
	if err != nil {
		return err
	}
	err = c.call(ctx, "detach_payment_method", func(ctx context.Context) error {
		return c.api.DetachPaymentMethod(ctx, *cfg.ConnectedAccountID, paymentMethodID)
	})
	if err != nil {
		return fmt.Errorf("detach payment method: %w", err)
	}
	return nil
}

// DestinationCharge is a fully priced charge ready to send to the provider.
// AmountMinorUnits is the invoice amount; ChargeTotalMinorUnits is what the
// payer pays. The connected account keeps AmountMinorUnits - PlatformFeeMinorUnits.
type DestinationCharge struct {
	OrgID                 int64
	PayerID               int64
	InvoiceIDs            []int64
	AmountMinorUnits      int64
	ChargeTotalMinorUnits int64
	PlatformFeeMinorUnits int64
	FeeMode               models.FeeMode
	ConnectedAccountID    string
	CustomerID            string
	PaymentMethodID       string
	Metadata              Metadata
	IdempotencyKey        string
}

func (d DestinationCharge) applicationFee() int64 {
	return d.ChargeTotalMinorUnits - money.NetToConnected(d.AmountMinorUnits, d.PlatformFeeMinorUnits)
}

func (d DestinationCharge) fingerprint(kind string) string {
	invoices := make([]string, len(d.InvoiceIDs))
	for i, id := range d.InvoiceIDs {
		invoices[i] = strconv.FormatInt(id, 10)
	}
	return idempotency.Fingerprint(
		kind,
		strconv.FormatInt(d.OrgID, 10),
		strconv.FormatInt(d.PayerID, 10),
		strings.Join(invoices, ","),
		strconv.FormatInt(d.AmountMinorUnits, 10),
		strconv.FormatInt(d.ChargeTotalMinorUnits, 10),
		strconv.FormatInt(d.PlatformFeeMinorUnits, 10),
		d.ConnectedAccountID,
		d.CustomerID,
		d.PaymentMethodID,
	)
}

func (d DestinationCharge) validate() error {
	switch {
	case d.ConnectedAccountID == "":
		return models.ErrNotConnected
	case d.AmountMinorUnits <= 0:
		return fmt.Errorf("%w: amount must be positive", models.ErrInvalidInput)
	case d.PlatformFeeMinorUnits < 0 || d.PlatformFeeMinorUnits > d.AmountMinorUnits:
		return fmt.Errorf("%w: platform fee %d out of range for amount %d", models.ErrInvalidInput, d.PlatformFeeMinorUnits, d.AmountMinorUnits)
	case d.ChargeTotalMinorUnits < d.AmountMinorUnits:
		return fmt.Errorf("%w: charge total below amount", models.ErrInvalidInput)
	case len(d.InvoiceIDs) == 0:
		return fmt.Errorf("%w: at least one invoice is required", models.ErrInvalidInput)
	case d.IdempotencyKey == "":
		return fmt.Errorf("%w: idempotency key is required", models.ErrInvalidInput)
	}
	return d.Metadata.Validate()
}

// replay returns the stored record for key, if any.
func (c *Client) replay(ctx context.Context, orgID int64, key string) (*models.PaymentIntentRecord, error) {
	rec, err := c.store.GetPaymentIntentByIdempotencyKey(ctx, orgID, key)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// CreateDestinationCharge charges a saved payment method and routes the net to
// the connected account. Replaying the same key returns the original record.
// Exhausted retries surface ErrGatewayUnavailable: the outcome is unknown and
// the caller must retry with the same key.
func (c *Client) CreateDestinationCharge(ctx context.Context, d DestinationCharge) (*models.PaymentIntentRecord, error) {
	if d.ChargeTotalMinorUnits == 0 {
		d.ChargeTotalMinorUnits = d.AmountMinorUnits
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	if err := c.keys.Claim(ctx, d.IdempotencyKey, d.fingerprint("charge")); err != nil {
		return nil, err
	}
	if rec, err := c.replay(ctx, d.OrgID, d.IdempotencyKey); err != nil || rec != nil {
		return rec, err
	}

	var charge *Charge
	err := c.call(ctx, "create_charge", func(ctx context.Context) error {
		var err error
		charge, err = c.api.CreateCharge(ctx, ChargeRequest{
			AmountMinorUnits:         d.ChargeTotalMinorUnits,
			ApplicationFeeMinorUnits: d.applicationFee(),
			Currency:                 c.opts.Currency,
			DestinationAccountID:     d.ConnectedAccountID,
			CustomerID:               d.CustomerID,
			PaymentMethodID:          d.PaymentMethodID,
			Metadata:                 d.Metadata,
			IdempotencyKey:           d.IdempotencyKey,
		})
		return err
	})
	if err != nil {
		c.logger.Warn("charge failed",
			zap.Int64("org_id", d.OrgID),
			zap.String("idempotency_key", d.IdempotencyKey),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create charge: %w", err)
	}

	rec, err := c.store.CreatePaymentIntent(ctx, &models.PaymentIntentRecord{
		OrgID:                 d.OrgID,
		PayerID:               d.PayerID,
		AmountMinorUnits:      d.AmountMinorUnits,
		ChargeTotalMinorUnits: d.ChargeTotalMinorUnits,
		Currency:              c.opts.Currency,
		PlatformFeeMinorUnits: d.PlatformFeeMinorUnits,
		FeeMode:               d.FeeMode,
		ConnectedAccountID:    d.ConnectedAccountID,
		InvoiceIDs:            d.InvoiceIDs,
		IdempotencyKey:        d.IdempotencyKey,
		ExternalID:            &charge.ID,
		Status:                charge.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("save payment intent: %w", err)
	}
	c.logger.Info("created charge",
		zap.Int64("org_id", d.OrgID),
		zap.String("idempotency_key", d.IdempotencyKey),
		zap.String("status", string(charge.Status)),
	)
	return rec, nil
}

// PaymentRequest describes a payer paying a set of invoices. An empty FeeMode
// uses the organization's setting.
type PaymentRequest struct {
	OrgID            int64
	PayerID          int64
	InvoiceIDs       []int64
	AmountMinorUnits int64
	FeeMode          models.FeeMode
	PaymentMethodID  string
	AttemptNonce     string
	Description      string
}

func (c *Client) price(ctx context.Context, req PaymentRequest) (DestinationCharge, *models.OrgPaymentConfig, error) {
	if len(req.InvoiceIDs) == 0 {
		return DestinationCharge{}, nil, fmt.Errorf("%w: at least one invoice is required", models.ErrInvalidInput)
	}
	if req.AmountMinorUnits <= 0 {
		return DestinationCharge{}, nil, fmt.Errorf("%w: amount must be positive", models.ErrInvalidInput)
	}
	cfg, err := c.connectedConfig(ctx, req.OrgID)
	if err != nil {
		return DestinationCharge{}, nil, err
	}
	mode := req.FeeMode
	if mode == "" {
		mode = cfg.FeeMode
	}
	if !mode.Valid() {
		return DestinationCharge{}, nil, fmt.Errorf("%w: fee mode %q", models.ErrInvalidInput, mode)
	}
	md, err := PaymentMetadata(req.OrgID, req.PayerID, req.InvoiceIDs, req.AttemptNonce)
	if err != nil {
		return DestinationCharge{}, nil, err
	}
	return DestinationCharge{
		OrgID:                 req.OrgID,
		PayerID:               req.PayerID,
		InvoiceIDs:            req.InvoiceIDs,
		AmountMinorUnits:      req.AmountMinorUnits,
		ChargeTotalMinorUnits: money.ChargeTotal(req.AmountMinorUnits, mode),
		PlatformFeeMinorUnits: money.PlatformFee(req.AmountMinorUnits, cfg.PlatformFeePercent, cfg.PlatformFeeFixedMinorUnits),
		FeeMode:               mode,
		ConnectedAccountID:    *cfg.ConnectedAccountID,
		PaymentMethodID:       req.PaymentMethodID,
		Metadata:              md,
		IdempotencyKey:        idempotency.DeriveKey(req.OrgID, req.PayerID, req.InvoiceIDs, req.AmountMinorUnits, req.AttemptNonce),
	}, cfg, nil
}

// ChargeSavedMethod prices the payment from the organization's settings and
// charges the payer's saved payment method.
func (c *Client) ChargeSavedMethod(ctx context.Context, req PaymentRequest) (*models.PaymentIntentRecord, error) {
	if req.PaymentMethodID == "" {
		return nil, fmt.Errorf("%w: payment method is required", models.ErrInvalidInput)
	}
	d, _, err := c.price(ctx, req)
	if err != nil {
		return nil, err
	}
	_, customerID, err := c.payerCustomer(ctx, req.OrgID, req.PayerID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, fmt.Errorf("payer %d has no gateway customer: %w", req.PayerID, models.ErrNotFound)
	}
	d.CustomerID = customerID
	return c.CreateDestinationCharge(ctx, d)
}

// CreateCheckoutSession opens a hosted payment page for the invoices. The payer
// is charged the fee-mode total; the platform fee is taken from the original amount.
func (c *Client) CreateCheckoutSession(ctx context.Context, req PaymentRequest) (*models.PaymentIntentRecord, error) {
	d, _, err := c.price(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	if err := c.keys.Claim(ctx, d.IdempotencyKey, d.fingerprint("checkout")); err != nil {
		return nil, err
	}
	if rec, err := c.replay(ctx, d.OrgID, d.IdempotencyKey); err != nil || rec != nil {
		return rec, err
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Invoice payment (%d invoices)", len(d.InvoiceIDs))
	}

	var sess *CheckoutSession
	err = c.call(ctx, "create_checkout_session", func(ctx context.Context) error {
		var err error
		sess, err = c.api.CreateCheckoutSession(ctx, CheckoutRequest{
			AmountMinorUnits:         d.ChargeTotalMinorUnits,
			ApplicationFeeMinorUnits: d.applicationFee(),
			Currency:                 c.opts.Currency,
			Description:              description,
			DestinationAccountID:     d.ConnectedAccountID,
			SuccessURL:               c.opts.CheckoutSuccessURL,
			CancelURL:                c.opts.CheckoutCancelURL,
			ClientReferenceID:        strconv.FormatInt(d.PayerID, 10),
			Metadata:                 d.Metadata,
			IdempotencyKey:           d.IdempotencyKey,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	rec := &models.PaymentIntentRecord{
		OrgID:                 d.OrgID,
		PayerID:               d.PayerID,
		AmountMinorUnits:      d.AmountMinorUnits,
		ChargeTotalMinorUnits: d.ChargeTotalMinorUnits,
		Currency:              c.opts.Currency,
		PlatformFeeMinorUnits: d.PlatformFeeMinorUnits,
		FeeMode:               d.FeeMode,
		ConnectedAccountID:    d.ConnectedAccountID,
		InvoiceIDs:            d.InvoiceIDs,
		IdempotencyKey:        d.IdempotencyKey,
		CheckoutSessionID:     &sess.ID,
		CheckoutURL:           &sess.URL,
		Status:                models.PaymentStatusCreated,
	}
	if sess.PaymentIntentID != "" {
		rec.ExternalID = &sess.PaymentIntentID
	}
	saved, err := c.store.CreatePaymentIntent(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("save payment intent: %w", err)
	}
	c.logger.Info("created checkout session",
		zap.Int64("org_id", d.OrgID),
		zap.Int64("payer_id", d.PayerID),
		zap.String("idempotency_key", d.IdempotencyKey),
	)
	return saved, nil
}

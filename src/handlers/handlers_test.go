package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cache "havenledger-server/src/db"
	"havenledger-server/src/gateway"
	"havenledger-server/src/middleware"
	"havenledger-server/src/models"
	"havenledger-server/src/money"
	"havenledger-server/src/services"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v76/webhook"
)

// serve routes a single request through chi so URL params resolve, with the
// caller authenticated as org 7.
func serve(method, pattern, target string, body string, h http.HandlerFunc, headers ...string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	req = req.WithContext(middleware.WithIdentity(req.Context(), middleware.Identity{OrgID: 7, UserID: 1}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: amount", models.ErrInvalidInput), http.StatusBadRequest},
		{models.ErrPayerNotFound, http.StatusNotFound},
		{models.ErrNotConnected, http.StatusConflict},
		{models.ErrAlreadyAssigned, http.StatusConflict},
		{models.ErrIdempotencyMismatch, http.StatusConflict},
		{models.ErrComplianceViolation, http.StatusUnprocessableEntity},
		{&models.GatewayError{Provider: "stripe", StatusCode: 503, Unavailable: true}, http.StatusServiceUnavailable},
		{fmt.Errorf("apply evt_1: %w", models.ErrEventTargetMissing), http.StatusServiceUnavailable},
		{&models.GatewayError{Provider: "stripe", StatusCode: 402, Code: "card_declined"}, http.StatusPaymentRequired},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteError_Bodies(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, fmt.Errorf("create charge: %w", &models.GatewayError{
		Provider: "stripe", StatusCode: 402, Code: "card_declined", Message: "Your card was declined.",
	}), "Failed to create charge")
	if got := strings.TrimSpace(rr.Body.String()); got != "Your card was declined." {
		t.Errorf("402 body = %q", got)
	}

	rr = httptest.NewRecorder()
	writeError(rr, errors.New("pq: connection reset"), "Failed to list payments")
	if strings.Contains(rr.Body.String(), "connection reset") {
		t.Errorf("500 body leaked internal error: %q", rr.Body.String())
	}
}

type MockBankLinker struct {
	CreateLinkTokenFunc     func(ctx context.Context, orgID int64) (string, error)
	ExchangePublicTokenFunc func(ctx context.Context, orgID int64, publicToken string) (*models.BankConnection, error)
	RemoveConnectionFunc    func(ctx context.Context, orgID, connectionID int64) error
	FetchAccountsFunc       func(ctx context.Context, orgID, connectionID int64) ([]models.BankAccount, error)
}

func (m *MockBankLinker) CreateLinkToken(ctx context.Context, orgID int64) (string, error) {
	return m.CreateLinkTokenFunc(ctx, orgID)
}

func (m *MockBankLinker) ExchangePublicToken(ctx context.Context, orgID int64, publicToken string) (*models.BankConnection, error) {
	return m.ExchangePublicTokenFunc(ctx, orgID, publicToken)
}

func (m *MockBankLinker) RemoveConnection(ctx context.Context, orgID, connectionID int64) error {
	return m.RemoveConnectionFunc(ctx, orgID, connectionID)
}

func (m *MockBankLinker) FetchAccounts(ctx context.Context, orgID, connectionID int64) ([]models.BankAccount, error) {
	return m.FetchAccountsFunc(ctx, orgID, connectionID)
}

func TestExchangePublicToken_Handler(t *testing.T) {
	bank := &MockBankLinker{
		ExchangePublicTokenFunc: func(_ context.Context, orgID int64, publicToken string) (*models.BankConnection, error) {
			if publicToken == "used" {
				return nil, models.ErrTokenAlreadyUsed
			}
			return &models.BankConnection{ID: 4, OrgID: orgID, InstitutionName: "First Platypus Bank"}, nil
		},
	}

	rr := serve(http.MethodPost, "/plaid/exchange", "/plaid/exchange", `{"public_token":"public-sandbox-1"}`, ExchangePublicToken(bank))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var conn models.BankConnection
	if err := json.NewDecoder(rr.Body).Decode(&conn); err != nil {
		t.Fatal(err)
	}
	if conn.OrgID != 7 || conn.ID != 4 {
		t.Errorf("connection = %+v", conn)
	}

	rr = serve(http.MethodPost, "/plaid/exchange", "/plaid/exchange", `{"public_token":"used"}`, ExchangePublicToken(bank))
	if rr.Code != http.StatusConflict {
		t.Errorf("reused token status = %d, want 409", rr.Code)
	}

	rr = serve(http.MethodPost, "/plaid/exchange", "/plaid/exchange", `{`, ExchangePublicToken(bank))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rr.Code)
	}
}

type MockSyncer struct {
	SyncTransactionsFunc func(ctx context.Context, orgID, connectionID int64) (*services.SyncResult, error)
	SyncAllFunc          func(ctx context.Context, orgID int64) ([]*services.SyncResult, error)
}

func (m *MockSyncer) SyncTransactions(ctx context.Context, orgID, connectionID int64) (*services.SyncResult, error) {
	return m.SyncTransactionsFunc(ctx, orgID, connectionID)
}

func (m *MockSyncer) SyncAll(ctx context.Context, orgID int64) ([]*services.SyncResult, error) {
	return m.SyncAllFunc(ctx, orgID)
}

func TestSyncConnection(t *testing.T) {
	upstream := &models.GatewayError{Provider: "plaid", StatusCode: 500, Unavailable: true}
	tests := []struct {
		name       string
		target     string
		result     *services.SyncResult
		err        error
		wantStatus int
	}{
		{"ok", "/connections/3/sync", &services.SyncResult{ConnectionID: 3, Added: 2}, nil, http.StatusOK},
		{"partial", "/connections/3/sync", &services.SyncResult{ConnectionID: 3, Added: 1, Partial: true}, upstream, http.StatusBadGateway},
		{"not found", "/connections/3/sync", nil, models.ErrNotFound, http.StatusNotFound},
		{"upstream before any page", "/connections/3/sync", &services.SyncResult{ConnectionID: 3}, upstream, http.StatusServiceUnavailable},
		{"bad id", "/connections/abc/sync", nil, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &MockSyncer{
				SyncTransactionsFunc: func(_ context.Context, orgID, connectionID int64) (*services.SyncResult, error) {
					if orgID != 7 || connectionID != 3 {
						t.Errorf("synced org %d connection %d", orgID, connectionID)
					}
					return tt.result, tt.err
				},
			}
			rr := serve(http.MethodPost, "/connections/{connection_id}/sync", tt.target, "", SyncConnection(syncer))
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

type MockVerifier struct {
	err error
}

func (m MockVerifier) Verify(context.Context, []byte, string) error { return m.err }

type MockBankEvents struct {
	hooks []services.BankWebhook
	err   error
}

func (m *MockBankEvents) HandleBankWebhook(_ context.Context, hook services.BankWebhook) (bool, error) {
	m.hooks = append(m.hooks, hook)
	return m.err == nil, m.err
}

func TestPlaidWebhook(t *testing.T) {
	body := `{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item_1"}`

	t.Run("verified", func(t *testing.T) {
		events := &MockBankEvents{}
		rr := serve(http.MethodPost, "/webhook", "/webhook", body, PlaidWebhook(MockVerifier{}, events))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		if len(events.hooks) != 1 || events.hooks[0].ItemID != "item_1" {
			t.Errorf("hooks = %+v", events.hooks)
		}
	})

	t.Run("unverified", func(t *testing.T) {
		events := &MockBankEvents{}
		rr := serve(http.MethodPost, "/webhook", "/webhook", body, PlaidWebhook(MockVerifier{err: errors.New("bad signature")}, events))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
		if len(events.hooks) != 0 {
			t.Errorf("unverified webhook was handled")
		}
	})

	t.Run("sync failure still acknowledged", func(t *testing.T) {
		events := &MockBankEvents{err: models.ErrGatewayUnavailable}
		rr := serve(http.MethodPost, "/webhook", "/webhook", body, PlaidWebhook(MockVerifier{}, events))
		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
	})
}

type MockAssigner struct {
	AutoAssignFunc       func(ctx context.Context, orgID, transactionID, houseID int64) (*services.AssignResult, error)
	IgnoreFunc           func(ctx context.Context, orgID, transactionID int64) error
	ListTransactionsFunc func(ctx context.Context, filter models.TransactionFilter) ([]models.BankTransaction, error)
}

func (m *MockAssigner) AutoAssign(ctx context.Context, orgID, transactionID, houseID int64) (*services.AssignResult, error) {
	return m.AutoAssignFunc(ctx, orgID, transactionID, houseID)
}

func (m *MockAssigner) Ignore(ctx context.Context, orgID, transactionID int64) error {
	return m.IgnoreFunc(ctx, orgID, transactionID)
}

func (m *MockAssigner) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.BankTransaction, error) {
	return m.ListTransactionsFunc(ctx, filter)
}

func TestListBankTransactions_Filter(t *testing.T) {
	var got models.TransactionFilter
	assigner := &MockAssigner{
		ListTransactionsFunc: func(_ context.Context, filter models.TransactionFilter) ([]models.BankTransaction, error) {
			got = filter
			return nil, nil
		},
	}

	rr := serve(http.MethodGet, "/txns", "/txns?status=unassigned&connection_id=3&needs_review=true&limit=20&offset=40", "", ListBankTransactions(assigner))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rr.Body.String())
	}
	if got.OrgID != 7 || got.Status != models.TransactionStatusUnassigned || got.ConnectionID != 3 ||
		got.NeedsReview == nil || !*got.NeedsReview || got.Limit != 20 || got.Offset != 40 {
		t.Errorf("filter = %+v", got)
	}

	for _, q := range []string{"status=pending", "limit=-1", "needs_review=maybe", "connection_id=x"} {
		rr := serve(http.MethodGet, "/txns", "/txns?"+q, "", ListBankTransactions(assigner))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rr.Code)
		}
	}
}

func TestAssignTransaction_Handler(t *testing.T) {
	assigner := &MockAssigner{
		AutoAssignFunc: func(_ context.Context, orgID, transactionID, houseID int64) (*services.AssignResult, error) {
			if transactionID == 9 {
				return nil, models.ErrAlreadyAssigned
			}
			return &services.AssignResult{
				TransactionID: transactionID,
				Expense:       &models.ExpenseRecord{ID: 1, OrgID: orgID, HouseID: houseID, AmountMinorUnits: 4599},
				CategoryName:  "Repairs",
			}, nil
		},
	}

	rr := serve(http.MethodPost, "/txns/{transaction_id}/assign", "/txns/5/assign", `{"house_id":12}`, AssignTransaction(assigner))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	var res services.AssignResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Expense.HouseID != 12 || res.CategoryName != "Repairs" {
		t.Errorf("result = %+v", res)
	}

	rr = serve(http.MethodPost, "/txns/{transaction_id}/assign", "/txns/9/assign", `{"house_id":12}`, AssignTransaction(assigner))
	if rr.Code != http.StatusConflict {
		t.Errorf("second assign status = %d, want 409", rr.Code)
	}
}

type MockFeeSettings struct {
	cfg *models.FeeConfig
}

func (m *MockFeeSettings) GetFeeConfig(context.Context, int64) (*models.FeeConfig, error) {
	return m.cfg, nil
}

func (m *MockFeeSettings) SetFeeMode(_ context.Context, _ int64, mode models.FeeMode) (*models.FeeConfig, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: fee mode %q", models.ErrInvalidInput, mode)
	}
	m.cfg.FeeMode = mode
	return m.cfg, nil
}

func (m *MockFeeSettings) Quote(_ context.Context, orgID, amount int64) (money.Quote, error) {
	if amount <= 0 {
		return money.Quote{}, models.ErrInvalidInput
	}
	return money.QuoteFor(amount, models.DefaultOrgPaymentConfig(orgID)), nil
}

func TestFeeConfigHandlers(t *testing.T) {
	settings := &MockFeeSettings{cfg: &models.FeeConfig{FeeMode: models.FeeModeAbsorb}}

	rr := serve(http.MethodPut, "/fee-config", "/fee-config", `{"fee_mode":"pass_through"}`, UpdateFeeMode(settings))
	if rr.Code != http.StatusOK || settings.cfg.FeeMode != models.FeeModePassThrough {
		t.Errorf("update status = %d, mode %s", rr.Code, settings.cfg.FeeMode)
	}

	rr = serve(http.MethodPut, "/fee-config", "/fee-config", `{"fee_mode":"split"}`, UpdateFeeMode(settings))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid mode status = %d, want 400", rr.Code)
	}

	rr = serve(http.MethodGet, "/quote", "/quote?amount=10000", "", QuotePayment(settings))
	var q money.Quote
	if err := json.NewDecoder(rr.Body).Decode(&q); err != nil {
		t.Fatal(err)
	}
	if q.PlatformFeeMinorUnits != 280 || q.NetMinorUnits != 9720 {
		t.Errorf("quote = %+v", q)
	}

	rr = serve(http.MethodGet, "/quote", "/quote?amount=abc", "", QuotePayment(settings))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad amount status = %d", rr.Code)
	}
}

type MockPayments struct {
	requests []gateway.PaymentRequest
	err      error
}

func (m *MockPayments) ChargeSavedMethod(_ context.Context, req gateway.PaymentRequest) (*models.PaymentIntentRecord, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &models.PaymentIntentRecord{ID: 1, OrgID: req.OrgID, Status: models.PaymentStatusSucceeded}, nil
}

func (m *MockPayments) CreateCheckoutSession(_ context.Context, req gateway.PaymentRequest) (*models.PaymentIntentRecord, error) {
	m.requests = append(m.requests, req)
	url := "https://checkout.example.com/c/1"
	return &models.PaymentIntentRecord{ID: 2, OrgID: req.OrgID, CheckoutURL: &url, Status: models.PaymentStatusCreated}, nil
}

func TestChargeSavedMethod_AttemptNonce(t *testing.T) {
	body := `{"payer_id":5,"invoice_ids":[11,12],"amount_minor_units":10000,"payment_method_id":"pm_1","attempt_nonce":"body-nonce"}`
	tests := []struct {
		name    string
		headers []string
		body    string
		want    string
	}{
		{"header wins", []string{IdempotencyKeyHeader, "header-nonce"}, body, "header-nonce"},
		{"body nonce", nil, body, "body-nonce"},
		{"none", nil, `{"payer_id":5,"invoice_ids":[11],"amount_minor_units":100,"payment_method_id":"pm_1"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &MockPayments{}
			rr := serve(http.MethodPost, "/charges", "/charges", tt.body, ChargeSavedMethod(payments), tt.headers...)
			if rr.Code != http.StatusCreated {
				t.Fatalf("status = %d", rr.Code)
			}
			req := payments.requests[0]
			if req.AttemptNonce != tt.want || req.OrgID != 7 || req.PayerID != 5 {
				t.Errorf("request = %+v", req)
			}
		})
	}
}

func TestChargeSavedMethod_Declined(t *testing.T) {
	payments := &MockPayments{err: fmt.Errorf("create charge: %w", &models.GatewayError{
		Provider: "stripe", StatusCode: 402, Code: "card_declined", Message: "Your card has insufficient funds.",
	})}
	rr := serve(http.MethodPost, "/charges", "/charges",
		`{"payer_id":5,"invoice_ids":[11],"amount_minor_units":100,"payment_method_id":"pm_1"}`, ChargeSavedMethod(payments))
	if rr.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "insufficient funds") {
		t.Errorf("body = %q", rr.Body.String())
	}
}

type MockEventApplier struct {
	seen map[string]bool
	err  error
}

func (m *MockEventApplier) ApplyGatewayEvent(_ context.Context, event models.GatewayEvent) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[event.EventID] {
		return false, nil
	}
	m.seen[event.EventID] = true
	return true, nil
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	events := &MockEventApplier{seen: map[string]bool{}}
	rr := serve(http.MethodPost, "/webhook", "/webhook", `{"id":"evt_1"}`, StripeWebhook("whsec_test", events), "Stripe-Signature", "t=1,v1=bad")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if len(events.seen) != 0 {
		t.Errorf("unverified event applied")
	}
}

func TestStripeWebhook_EarlyEventIsRedelivered(t *testing.T) {
	const secret = "whsec_test"
	payload := []byte(`{"id":"evt_9","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_9","metadata":{"source":"havenledger"}}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "applied", want: http.StatusOK},
		{name: "payment record not written yet", err: fmt.Errorf("apply evt_9: %w", models.ErrEventTargetMissing), want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &MockEventApplier{seen: map[string]bool{}, err: tt.err}
			rr := serve(http.MethodPost, "/webhook", "/webhook", string(payload), StripeWebhook(secret, events), "Stripe-Signature", signed.Header)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

type MockPayerGateway struct {
	customers int
}

func (m *MockPayerGateway) CreateCustomer(context.Context, int64, int64) (string, error) {
	m.customers++
	return "cus_1", nil
}

func (m *MockPayerGateway) CreateSetupIntent(context.Context, int64, int64) (string, error) {
	return "seti_secret", nil
}

func (m *MockPayerGateway) ListPaymentMethods(context.Context, int64, int64) ([]models.PaymentMethod, error) {
	return nil, nil
}

func (m *MockPayerGateway) DetachPaymentMethod(_ context.Context, _, _ int64, methodID string) error {
	if methodID != "pm_1" {
		return models.ErrNotFound
	}
	return nil
}

type MockProfiles struct {
	saved []*models.PayerProfile
}

func (m *MockProfiles) UpsertPayerProfile(_ context.Context, p *models.PayerProfile) (*models.PayerProfile, error) {
	m.saved = append(m.saved, p)
	return p, nil
}

func TestCreateCustomer_Handler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantSaved  int
	}{
		{"no body", "", http.StatusCreated, 0},
		{"with profile", `{"name":"Ada","email":"ada@example.com","phone":"+15555550100"}`, http.StatusCreated, 1},
		{"bad email", `{"email":"not-an-email"}`, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, profiles := &MockPayerGateway{}, &MockProfiles{}
			rr := serve(http.MethodPost, "/payers/{payer_id}/customer", "/payers/5/customer", tt.body, CreateCustomer(gw, profiles))
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if len(profiles.saved) != tt.wantSaved {
				t.Errorf("profiles saved = %d, want %d", len(profiles.saved), tt.wantSaved)
			}
			if len(profiles.saved) == 1 && (profiles.saved[0].OrgID != 7 || profiles.saved[0].PayerID != 5) {
				t.Errorf("profile = %+v", profiles.saved[0])
			}
		})
	}
}

func TestDetachPaymentMethod_Handler(t *testing.T) {
	gw := &MockPayerGateway{}
	rr := serve(http.MethodDelete, "/payers/{payer_id}/payment-methods/{payment_method_id}", "/payers/5/payment-methods/pm_1", "", DetachPaymentMethod(gw))
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
	rr = serve(http.MethodDelete, "/payers/{payer_id}/payment-methods/{payment_method_id}", "/payers/5/payment-methods/pm_other", "", DetachPaymentMethod(gw))
	if rr.Code != http.StatusNotFound {
		t.Errorf("foreign method status = %d, want 404", rr.Code)
	}
}

type recordingCache struct {
	cleared []cache.CacheGroup
}

func (c *recordingCache) ClearGroup(group cache.CacheGroup) {
	c.cleared = append(c.cleared, group)
}

func TestClearCache(t *testing.T) {
	c := &recordingCache{}
	rr := serve(http.MethodDelete, "/cache/{group}", "/cache/org_config", "", ClearCache(c))
	if rr.Code != http.StatusNoContent || len(c.cleared) != 1 || c.cleared[0] != cache.OrgConfigGroup {
		t.Errorf("status = %d, cleared %v", rr.Code, c.cleared)
	}
	rr = serve(http.MethodDelete, "/cache/{group}", "/cache/everything", "", ClearCache(c))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown group status = %d", rr.Code)
	}
}

func TestSyncOrganization(t *testing.T) {
	syncer := &MockSyncer{
		SyncAllFunc: func(_ context.Context, orgID int64) ([]*services.SyncResult, error) {
			results := []*services.SyncResult{{ConnectionID: 1, Added: 3}, {ConnectionID: 2, Error: "item login required"}}
			return results, errors.New("connection 2: item login required")
		},
	}
	rr := serve(http.MethodPost, "/orgs/{org_id}/sync", "/orgs/9/sync", "", SyncOrganization(syncer))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	var results []services.SyncResult
	if err := json.NewDecoder(rr.Body).Decode(&results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Added != 3 {
		t.Errorf("results = %+v", results)
	}
}

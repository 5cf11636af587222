package api

import (
	"net/http"

	"havenledger-server/src/handlers"
	"havenledger-server/src/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Store interface {
	handlers.ConnectionLister
	handlers.PaymentLister
	handlers.PayerProfiles
	handlers.ExpenseStore
}

type Gateway interface {
	handlers.ConnectedAccounts
	handlers.PaymentCreator
	handlers.PayerGateway
}

type Events interface {
	handlers.BankWebhookHandler
	handlers.GatewayEventApplier
}

type Syncer interface {
	handlers.TransactionSyncer
	handlers.OrgSyncer
}

// Deps is everything the HTTP surface calls into.
type Deps struct {
	Store    Store
	Cache    handlers.CacheClearer
	Bank     handlers.BankLinker
	Gateway  Gateway
	Sync     Syncer
	Assign   handlers.TransactionAssigner
	Settings handlers.FeeSettings
	Events   Events
	Verifier handlers.WebhookVerifier

	JWTSecret           string
	StripeWebhookSecret string
	AllowedOrigins      []string
	ReadOnly            bool
	TelemetryService    string
	Logger              *zap.Logger
}

func NewRouter(d Deps) *chi.Mux {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()
	if d.TelemetryService != "" {
		r.Use(middleware.Telemetry(d.TelemetryService))
	}
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.CORSMiddleware(d.AllowedOrigins))
	r.Use(middleware.ReadOnlyMiddleware(d.ReadOnly))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/plaid/webhook", handlers.PlaidWebhook(d.Verifier, d.Events))
		r.Post("/stripe/webhook", handlers.StripeWebhook(d.StripeWebhookSecret, d.Events))

		// Protected routes
		r.With(middleware.JWTAuthMiddleware(d.JWTSecret)).Group(func(r chi.Router) {
			// Bank connections
			r.Post("/plaid/create-link-token", handlers.CreateLinkToken(d.Bank))
			r.Post("/plaid/exchange-public-token", handlers.ExchangePublicToken(d.Bank))
			r.Get("/plaid/connections", handlers.ListConnections(d.Store))
			r.Get("/plaid/connections/{connection_id}/accounts", handlers.GetConnectionAccounts(d.Bank))
			r.Post("/plaid/connections/{connection_id}/sync", handlers.SyncConnection(d.Sync))
			r.Delete("/plaid/connections/{connection_id}", handlers.RemoveConnection(d.Bank))

			// Bank transactions
			r.Get("/bank-transactions", handlers.ListBankTransactions(d.Assign))
			r.Post("/bank-transactions/{transaction_id}/assign", handlers.AssignTransaction(d.Assign))
			r.Post("/bank-transactions/{transaction_id}/ignore", handlers.IgnoreTransaction(d.Assign))

			// Expenses
			r.Get("/expenses", handlers.ListExpenses(d.Store))
			r.Get("/expense-categories", handlers.ListExpenseCategories(d.Store))
			r.Post("/expense-categories", handlers.CreateExpenseCategory(d.Store))

			// Payments
			r.Get("/payments", handlers.ListPayments(d.Store))
			r.Get("/payments/fee-config", handlers.GetFeeConfig(d.Settings))
			r.Put("/payments/fee-config", handlers.UpdateFeeMode(d.Settings))
			r.Get("/payments/quote", handlers.QuotePayment(d.Settings))
			r.Post("/payments/connected-account", handlers.CreateConnectedAccount(d.Gateway))
			r.Post("/payments/connected-account/refresh", handlers.RefreshAccountStatus(d.Gateway))
			r.Post("/payments/onboarding-link", handlers.CreateOnboardingLink(d.Gateway))
			r.Post("/payments/dashboard-link", handlers.CreateDashboardLink(d.Gateway))
			r.Post("/payments/checkout", handlers.CreateCheckoutSession(d.Gateway))
			r.Post("/payments/charges", handlers.ChargeSavedMethod(d.Gateway))

			// Payers
			r.Post("/payers/{payer_id}/customer", handlers.CreateCustomer(d.Gateway, d.Store))
			r.Post("/payers/{payer_id}/setup-intent", handlers.CreateSetupIntent(d.Gateway))
			r.Get("/payers/{payer_id}/payment-methods", handlers.ListPaymentMethods(d.Gateway))
			r.Delete("/payers/{payer_id}/payment-methods/{payment_method_id}", handlers.DetachPaymentMethod(d.Gateway))
		})

		// Super Admin Routes
		r.With(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.SuperAdminMiddleware).Group(func(r chi.Router) {
			r.Post("/admin/orgs/{org_id}/sync", handlers.SyncOrganization(d.Sync))
			r.Post("/admin/cache/clear/{group}", handlers.ClearCache(d.Cache))
		})
	})

	return r
}

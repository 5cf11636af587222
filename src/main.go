package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"havenledger-server/src/api"
	"havenledger-server/src/banklink"
	"havenledger-server/src/classifier"
	"havenledger-server/src/config"
	"havenledger-server/src/crypto"
	"havenledger-server/src/db"
	dbsql "havenledger-server/src/db/sql"
	"havenledger-server/src/gateway"
	"havenledger-server/src/logger"
	"havenledger-server/src/models"
	"havenledger-server/src/money"
	"havenledger-server/src/plaid"
	"havenledger-server/src/services"
	"havenledger-server/src/telemetry"
	"havenledger-server/src/util"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "havenledger",
		Short:   "HavenLedger payments and bank feed server",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(feeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired services shared by the commands that talk to the database
// and the providers.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	pool     *pgxpool.Pool
	cache    *db.Cache
	store    *dbsql.Store
	bank     *banklink.Client
	gateway  *gateway.Client
	verifier *util.WebhookVerifier
	sync     *services.SyncService
	assign   *services.AssignService
	settings *services.SettingsService
	events   *services.EventService
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("DB connection failed: %w", err)
	}

	c, err := db.NewCache()
	if err != nil {
		pool.Close()
		return nil, err
	}
	store := dbsql.NewStore(pool, c)

	enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		pool.Close()
		return nil, err
	}

	plaidClient, err := plaid.NewPlaidClient(cfg.Plaid.ClientID, cfg.Plaid.Secret, cfg.Plaid.Env, cfg.Gateway.Timeout)
	if err != nil {
		pool.Close()
		return nil, err
	}
	plaidAPI := banklink.NewPlaidAPI(plaidClient)

	retry := util.RetryPolicy{
		MaxRetries: cfg.Gateway.MaxRetries,
		Backoff:    cfg.Gateway.RetryBackoff,
		MaxBackoff: util.DefaultRetryPolicy.MaxBackoff,
	}
	bank := banklink.NewClient(plaidAPI, store, enc, banklink.Options{
		ClientName: cfg.Plaid.ClientName,
		WebhookURL: cfg.Plaid.WebhookURL,
		PageSize:   cfg.Plaid.PageSize,
		Timeout:    cfg.Gateway.Timeout,
		Retry:      retry,
	}, log.Named("banklink"))

	gw := gateway.NewClient(gateway.NewStripeAPI(cfg.Stripe.SecretKey, cfg.Gateway.Timeout), store, gateway.Options{
		Country:              cfg.Stripe.Country,
		Currency:             cfg.Stripe.Currency,
		CheckoutSuccessURL:   cfg.Stripe.CheckoutSuccessURL,
		CheckoutCancelURL:    cfg.Stripe.CheckoutCancelURL,
		OnboardingRefreshURL: cfg.Stripe.OnboardingRefreshURL,
		OnboardingReturnURL:  cfg.Stripe.OnboardingReturnURL,
		FeePolicy: models.FeePolicy{
			Percent:         cfg.Stripe.PlatformFeePercent,
			FixedMinorUnits: cfg.Stripe.PlatformFeeFixed,
		},
		Timeout: cfg.Gateway.Timeout,
		Retry:   retry,
	}, log.Named("gateway"))

	var cl services.Classifier = classifier.Default()
	if cfg.Sync.ClassifierRulesPath != "" {
		loaded, err := classifier.LoadFile(cfg.Sync.ClassifierRulesPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("load classifier rules: %w", err)
		}
		cl = loaded
	}

	syncSvc := services.NewSyncService(bank, store, log.Named("sync"), cfg.Sync.Concurrency)
	return &app{
		cfg:      cfg,
		logger:   log,
		pool:     pool,
		cache:    c,
		store:    store,
		bank:     bank,
		gateway:  gw,
		verifier: util.NewWebhookVerifier(plaidAPI),
		sync:     syncSvc,
		assign:   services.NewAssignService(store, cl, log.Named("assign")),
		settings: services.NewSettingsService(store),
		events:   services.NewEventService(store, syncSvc, log.Named("events")),
	}, nil
}

func (a *app) Close() {
	a.cache.Close()
	a.pool.Close()
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			serviceName := ""
			if cfg.Telemetry.Enabled {
				shutdown, err := telemetry.Init(ctx, telemetry.Config{
					ServiceName:  cfg.Telemetry.ServiceName,
					Environment:  cfg.Environment,
					OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
					MetricsPort:  cfg.Telemetry.MetricsPort,
				}, log)
				if err != nil {
					return fmt.Errorf("init telemetry: %w", err)
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(shutdownCtx); err != nil {
						log.Warn("telemetry shutdown", zap.Error(err))
					}
				}()
				serviceName = cfg.Telemetry.ServiceName
			}

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate {
				if err := db.Migrate(ctx, a.pool); err != nil {
					return err
				}
			}

			router := api.NewRouter(api.Deps{
				Store:               a.store,
				Cache:               a.cache,
				Bank:                a.bank,
				Gateway:             a.gateway,
				Sync:                a.sync,
				Assign:              a.assign,
				Settings:            a.settings,
				Events:              a.events,
				Verifier:            a.verifier,
				JWTSecret:           cfg.JWTSecret,
				StripeWebhookSecret: cfg.Stripe.WebhookSecret,
				AllowedOrigins:      cfg.AllowedOrigins,
				ReadOnly:            cfg.ReadOnly,
				TelemetryService:    serviceName,
				Logger:              log,
			})

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Info("API server running", zap.String("port", cfg.Port), zap.Bool("read_only", cfg.ReadOnly))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the database schema before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			pool, err := db.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("DB connection failed: %w", err)
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Info("schema applied")
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	var orgID, connectionID int64
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull new bank transactions for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID <= 0 {
				return fmt.Errorf("--org is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			var results []*services.SyncResult
			if connectionID > 0 {
				var r *services.SyncResult
				r, err = a.sync.SyncTransactions(ctx, orgID, connectionID)
				if r != nil {
					results = append(results, r)
				}
			} else {
				results, err = a.sync.SyncAll(ctx, orgID)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(results); encErr != nil {
				return encErr
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&orgID, "org", 0, "organization id")
	cmd.Flags().Int64Var(&connectionID, "connection", 0, "sync only this connection")
	return cmd
}

func feeCmd() *cobra.Command {
	var amount int64
	var mode string
	cmd := &cobra.Command{
		Use:   "fee",
		Short: "Print the charge breakdown for an amount in minor units",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			feeMode := models.FeeMode(mode)
			if !feeMode.Valid() {
				return fmt.Errorf("invalid fee mode %q", mode)
			}
			if amount <= 0 {
				return fmt.Errorf("--amount must be positive")
			}
			quote := money.QuoteFor(amount, &models.OrgPaymentConfig{
				FeeMode:                    feeMode,
				PlatformFeePercent:         cfg.Stripe.PlatformFeePercent,
				PlatformFeeFixedMinorUnits: cfg.Stripe.PlatformFeeFixed,
			})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(quote)
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "invoice amount in minor units")
	cmd.Flags().StringVar(&mode, "mode", string(models.FeeModeAbsorb), "fee mode: absorb or pass_through")
	return cmd
}

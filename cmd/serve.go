package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/username/ledgerdesk/backend/src/config"
	"github.com/username/ledgerdesk/backend/src/database"
	"github.com/username/ledgerdesk/backend/src/handlers"
	"github.com/username/ledgerdesk/backend/src/ledger"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/models"
	"github.com/username/ledgerdesk/backend/src/processors"
	"github.com/username/ledgerdesk/backend/src/services"
	"github.com/username/ledgerdesk/backend/src/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API. Configuration is read from the environment or a .env file.

Required environment variables:
  LEDGER_API_BASE_URL - base URL of the ledger API
  ISSUER_HOME_STATE   - GST state of the issuing entity (e.g. MH or 27)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("port", "", "Port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	cfg := config.Cfg

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	logger.L.Info("Ledgerdesk backend server starting...", "version", version)

	homeState := utils.NormalizeStateCode(cfg.IssuerHomeState)
	if homeState == "" {
		return fmt.Errorf("ISSUER_HOME_STATE %q is not a known GST state", cfg.IssuerHomeState)
	}
	policy, err := processors.ParseMissingPlaceOfSupplyPolicy(cfg.PlaceOfSupplyFallback)
	if err != nil {
		return err
	}
	defaultTerms, err := models.ParsePaymentTerms(cfg.DefaultPaymentTerms)
	if err != nil {
		return fmt.Errorf("DEFAULT_PAYMENT_TERMS: %w", err)
	}
	if len(cfg.LedgerServiceTokenSecret) == 0 && cfg.LedgerOAuthTokenURL == "" {
		logger.L.Warn("No ledger credentials configured; requests to the ledger API are unauthenticated.")
	}

	logger.L.Info("Initializing database...", "path", cfg.DatabasePath)
	database.InitDB(cfg.DatabasePath)
	defer database.DB.Close()
	if err := database.RunMigrations(database.DB); err != nil {
		return err
	}

	ledgerClient := ledger.NewClient(cfg.LedgerAPIBaseURL, ledger.NewHTTPClient(ledger.ConfigFromApp(cfg)))
	resolver := services.NewCustomerSnapshotResolver(ledgerClient, services.SnapshotDefaults{
		Currency:     cfg.DefaultCurrency,
		PaymentTerms: defaultTerms,
	})
	classifier := processors.NewTaxRegimeClassifier(policy)
	store := services.NewSessionStore(cfg.SessionTTL, cfg.SessionCleanupInterval)
	journal := database.NewJournal(database.DB)

	txService := services.NewTransactionService(store, resolver, classifier, ledgerClient, homeState, cfg.DefaultCurrency)
	paymentService := services.NewPaymentService(store, resolver, ledgerClient, journal, cfg.DefaultDepositAccount)

	router := handlers.NewRouter(
		handlers.NewTransactionHandler(txService),
		handlers.NewPaymentHandler(paymentService),
		handlers.NewHealthHandler(database.DB, store),
		handlers.RouterOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			CSRFEnabled:    cfg.CSRFEnabled,
		},
	)

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LedgerAPITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.L.Info("Server starting", "address", serverAddr, "homeState", homeState, "missingPlaceOfSupply", policy.String())
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.L.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.L.Info("Server stopped")
	return nil
}

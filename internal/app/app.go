// Package app wires the reconciliation services from configuration. It is
// shared by the HTTP server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/checkout-reconciler/internal/adapters/kashier"
	"github.com/kevin07696/checkout-reconciler/internal/adapters/notify"
	"github.com/kevin07696/checkout-reconciler/internal/adapters/postgres"
	"github.com/kevin07696/checkout-reconciler/internal/config"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/kevin07696/checkout-reconciler/internal/services/callback"
	"github.com/kevin07696/checkout-reconciler/internal/services/expiry"
	"github.com/kevin07696/checkout-reconciler/internal/services/notification"
	"github.com/kevin07696/checkout-reconciler/internal/services/promo"
	"github.com/kevin07696/checkout-reconciler/internal/services/refund"
	"github.com/kevin07696/checkout-reconciler/internal/services/settlement"
	"github.com/kevin07696/checkout-reconciler/internal/services/signature"
	"github.com/kevin07696/checkout-reconciler/internal/services/transition"
	pkghttp "github.com/kevin07696/checkout-reconciler/pkg/http"
	"github.com/kevin07696/checkout-reconciler/pkg/resilience"
	"github.com/kevin07696/checkout-reconciler/pkg/security"
	"github.com/kevin07696/checkout-reconciler/pkg/shutdown"
	"go.uber.org/zap"
)

// App holds the initialized services
type App struct {
	DB               *postgres.DBExecutor
	Tracker          *shutdown.InFlightTracker
	Timeouts         *resilience.TimeoutConfig
	Verifier         *signature.Verifier
	Gateway          *kashier.Gateway
	PaymentCallbacks *callback.Service
	RefundCallbacks  *refund.CallbackService
	Refunds          *refund.Orchestrator
	Sweeper          *expiry.Sweeper
	CustomOrders     *expiry.CustomOrderExpirer
	Settlements      *settlement.Scanner
	SettlementRuns   *settlement.Generator
	Sinks            []string

	closers []func() error
}

// Build initializes every service. Background notification delivery is
// tracked by Tracker, which must be shut down before the pool is closed.
func Build(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, keys GatewayKeys, logger *zap.Logger) (*App, error) {
	timeouts := resilience.DefaultTimeoutConfig()
	timeouts.ExternalAPI = cfg.Gateway.Timeout

	a := &App{
		DB:       postgres.NewDBExecutor(pool),
		Tracker:  shutdown.NewInFlightTracker("notifications", logger),
		Timeouts: timeouts,
		Verifier: signature.NewVerifier(keys.SecretKey),
	}
	if !a.Verifier.Configured() {
		logger.Warn("Callback secret not configured, every gateway callback will be rejected")
	}

	svcLogger := security.NewZapLogger(logger)

	notifier, err := a.buildNotifier(ctx, cfg.Notify, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	dispatcher := notification.NewDispatcher(notifier, a.Tracker, timeouts, svcLogger.Named("notification"))

	orders := postgres.NewOrderRepository()
	applier := transition.NewOrderApplier(a.DB, orders, svcLogger.Named("transition"))
	compensator := promo.NewCompensator(a.DB, postgres.NewPromoRepository(), svcLogger.Named("promo"),
		promo.WithTimeouts(timeouts))

	httpClient := pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), cfg.Gateway.Timeout)
	a.Gateway = kashier.NewGateway(kashier.Config{
		APIURL:     cfg.Gateway.APIURL,
		MerchantID: cfg.Gateway.MerchantID,
		APIKey:     keys.APIKey,
		Currency:   cfg.Gateway.Currency,
		Breaker:    kashier.DefaultBreakerConfig(),
	}, httpClient, logger.Named("kashier"))

	a.PaymentCallbacks = callback.NewService(a.Verifier, applier, compensator, dispatcher, svcLogger.Named("payment_callback"))
	a.RefundCallbacks = refund.NewCallbackService(a.Verifier, applier, dispatcher, svcLogger.Named("refund_callback"))
	a.Refunds = refund.NewOrchestrator(applier, a.Gateway, dispatcher, timeouts, svcLogger.Named("refund"))
	a.Sweeper = expiry.NewSweeper(a.DB, orders, applier, compensator, dispatcher,
		cfg.Reconcile.AbandonThreshold, cfg.Reconcile.SweepBatchSize, svcLogger.Named("sweeper"))
	a.CustomOrders = expiry.NewCustomOrderExpirer(a.DB, postgres.NewCustomOrderRepository(), dispatcher,
		cfg.Reconcile.CustomOrderTTL, cfg.Reconcile.SweepBatchSize, svcLogger.Named("custom_orders"))
	settlements := postgres.NewSettlementRepository()
	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	a.Settlements = settlement.NewScanner(a.DB, settlements, mailer, timeouts,
		cfg.Reconcile.SettlementGrace, cfg.Reconcile.SweepBatchSize, svcLogger.Named("settlement"))

	loc, err := time.LoadLocation(cfg.Reconcile.SettlementTimezone)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load settlement timezone: %w", err)
	}
	a.SettlementRuns = settlement.NewGenerator(a.DB, settlements, mailer, timeouts, loc, svcLogger.Named("settlement_creation"))

	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP relay not configured, settlement emails will fail")
	}
	return a, nil
}

// buildNotifier fans out to every configured sink
func (a *App) buildNotifier(ctx context.Context, cfg config.NotifyConfig, logger *zap.Logger) (ports.Notifier, error) {
	var sinks []notify.Sink
	for _, name := range cfg.Sinks {
		switch name {
		case "inbox":
			sinks = append(sinks, notify.Sink{
				Name:     name,
				Notifier: notify.NewStoreNotifier(a.DB, postgres.NewNotificationRepository()),
			})
		case "kafka":
			publisher := notify.NewKafkaPublisher(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
			a.closers = append(a.closers, publisher.Close)
			sinks = append(sinks, notify.Sink{Name: name, Notifier: publisher})
		case "sns":
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
			if err != nil {
				return nil, fmt.Errorf("load AWS config for SNS: %w", err)
			}
			sinks = append(sinks, notify.Sink{
				Name:     name,
				Notifier: notify.NewSNSPublisher(sns.NewFromConfig(awsCfg), cfg.SNSTopicARN),
			})
		default:
			return nil, fmt.Errorf("unknown notification sink %q", name)
		}
		a.Sinks = append(a.Sinks, name)
	}
	if len(sinks) == 0 {
		return nil, errors.New("no notification sinks configured")
	}

	logger.Info("Notification sinks configured", zap.Strings("sinks", a.Sinks))
	return notify.NewFanout(sinks...), nil
}

// Close releases publisher connections. Call after Tracker has drained.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "irec-issuer/internal/api/http"
	"irec-issuer/internal/audit"
	"irec-issuer/internal/auth"
	certificateapp "irec-issuer/internal/certificate/application"
	certificate "irec-issuer/internal/certificate/domain"
	certificatememory "irec-issuer/internal/certificate/infrastructure/memory"
	certificaterepo "irec-issuer/internal/certificate/infrastructure/postgres"
	certificatehttp "irec-issuer/internal/certificate/interfaces/http"
	certapp "irec-issuer/internal/certification/application"
	certevents "irec-issuer/internal/certification/application/events"
	certification "irec-issuer/internal/certification/domain"
	certificationmemory "irec-issuer/internal/certification/infrastructure/memory"
	certificationrepo "irec-issuer/internal/certification/infrastructure/postgres"
	certinterfaces "irec-issuer/internal/certification/interfaces"
	certhttp "irec-issuer/internal/certification/interfaces/http"
	"irec-issuer/internal/config"
	"irec-issuer/internal/eventing"
	"irec-issuer/internal/eventing/eventbus"
	eventingmemory "irec-issuer/internal/eventing/infrastructure/memory"
	eventingrepo "irec-issuer/internal/eventing/infrastructure/postgres"
	"irec-issuer/internal/issuer"
	"irec-issuer/internal/migrations"
	"irec-issuer/internal/notify"
	"irec-issuer/internal/observability/metrics"
)

const shutdownTimeout = 10 * time.Second

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the outbox worker",
	Long: `Serve the certification request and certificate API and run the outbox
worker that dispatches events to the certificate issuer.

Without database_url every store is kept in memory, which is only suitable
for local development.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Apply database migrations before serving")
}

type outboxStore interface {
	eventing.OutboxWriter
	eventing.OutboxStore
	eventing.OutboxInspector
}

type dlqStore interface {
	eventing.DLQStore
	eventing.DeadLetterQueue
}

// stores groups the persistence backends selected by configuration.
type stores struct {
	db           *sql.DB
	requests     certification.Repository
	certificates certificate.Repository
	outbox       outboxStore
	processed    eventing.ProcessedStore
	dlq          dlqStore
	audit        audit.Logger
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("database_url not set, using in-memory stores")
		outbox := eventingmemory.NewOutboxStore(cfg.Worker.MaxAttempts)
		return &stores{
			requests:     certificationmemory.NewRepository(),
			certificates: certificatememory.NewRepository(),
			outbox:       outbox,
			processed:    eventingmemory.NewProcessedStore(),
			dlq:          eventingmemory.NewDLQStore(outbox),
			audit:        &audit.MemoryLogger{},
		}, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if migrateOnStart {
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &stores{
		db:           db,
		requests:     certificationrepo.NewRequestRepository(db),
		certificates: certificaterepo.NewCertificateRepository(db),
		outbox:       eventingrepo.NewOutboxStore(db, eventingrepo.WithMaxAttempts(cfg.Worker.MaxAttempts)),
		processed:    eventingrepo.NewProcessedStore(db),
		dlq:          eventingrepo.NewDLQStore(db),
		audit:        audit.NewRepository(db),
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("open stores", zap.Error(err))
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}
	metrics.Init(st.db, logger)

	bus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(certevents.All()...)
	publisher := eventing.NewPublisher(st.outbox, logger)
	dispatcher := eventing.NewDispatcher(bus, st.outbox, registry, st.dlq)

	var issuerAPI certinterfaces.IssuerAPI = issuer.Unconfigured{}
	if cfg.Issuer.BaseURL == "" {
		logger.Warn("issuer.base_url not set, approved requests are dead-lettered until it is configured and they are requeued")
	} else {
		client, err := issuer.NewClient(cfg.Issuer.BaseURL, cfg.Issuer.Token, cfg.Issuer.Timeout)
		if err != nil {
			return err
		}
		issuerAPI = client
	}
	consumer, err := certinterfaces.NewIssuerConsumer(st.requests, st.certificates, issuerAPI, publisher, logger)
	if err != nil {
		return err
	}
	eventing.Subscribe(bus, eventbus.EventTypeOf[certevents.CertificationRequestApproved](),
		certinterfaces.IssuerConsumerName, consumer.HandleApproved, st.processed)

	if cfg.Notify.WebhookURL != "" {
		if err := subscribeNotifier(bus, st.processed, cfg.Notify, logger); err != nil {
			return err
		}
	}

	certService, err := certapp.NewService(st.requests, publisher)
	if err != nil {
		return err
	}
	certHandler, err := certhttp.NewHandler(certService, st.audit, logger)
	if err != nil {
		return err
	}
	certificateService, err := certificateapp.NewService(st.certificates)
	if err != nil {
		return err
	}
	certificateHandler, err := certificatehttp.NewHandler(certificateService, logger)
	if err != nil {
		return err
	}

	adminHandler, err := apihttp.NewAdminHandler(st.outbox, st.dlq, st.audit, logger)
	if err != nil {
		return err
	}

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	router := apihttp.NewRouter(apihttp.RouterConfig{
		Auth:   authMiddleware,
		Logger: logger,
		DB:     st.db,
		Routes: []apihttp.Routes{certHandler, certificateHandler, adminHandler},
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	worker := eventing.NewWorker(dispatcher, cfg.Worker.Interval, cfg.Worker.BatchSize, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("serve stopped", zap.Error(err))
		return err
	}
	return nil
}

func subscribeNotifier(bus eventbus.EventBus, processed eventing.ProcessedStore, cfg config.NotifyConfig, logger *zap.Logger) error {
	hook, err := notify.NewWebhook(cfg.WebhookURL, cfg.Timeout)
	if err != nil {
		return err
	}
	tpl, err := notify.NewTemplate(cfg.Template)
	if err != nil {
		return err
	}
	notifier, err := notify.NewIssuanceNotifier(hook, tpl, logger)
	if err != nil {
		return err
	}
	eventing.Subscribe(bus, eventbus.EventTypeOf[certevents.CertificateIssued](),
		notify.ConsumerName, notifier.HandleIssued, processed)
	eventing.Subscribe(bus, eventbus.EventTypeOf[certevents.CertificateIssuanceFailed](),
		notify.ConsumerName, notifier.HandleFailed, processed)
	return nil
}

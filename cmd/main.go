package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/api"
	"github.com/ukydev/fleet-driver/internal/auth"
	"github.com/ukydev/fleet-driver/internal/bridge"
	"github.com/ukydev/fleet-driver/internal/broker"
	"github.com/ukydev/fleet-driver/internal/config"
	"github.com/ukydev/fleet-driver/internal/db"
	"github.com/ukydev/fleet-driver/internal/driverapp"
	"github.com/ukydev/fleet-driver/internal/handlers"
	"github.com/ukydev/fleet-driver/internal/ingest"
	"github.com/ukydev/fleet-driver/internal/logger"
	"github.com/ukydev/fleet-driver/internal/middleware"
	"github.com/ukydev/fleet-driver/internal/models"
	"github.com/ukydev/fleet-driver/internal/notifications"
	"github.com/ukydev/fleet-driver/internal/push"
	"github.com/ukydev/fleet-driver/internal/storage"
	"github.com/ukydev/fleet-driver/internal/trips"
)

const shutdownTimeout = 10 * time.Second

// agent is one driver installation: the foreground app, the background
// worker and the local HTTP surface, sharing a broker connection.
type agent struct {
	clientID string
	conn     broker.Conn
	durable  db.TokenStore
	provider *push.MQTTProvider
	app      *driverapp.App
	worker   *ingest.Worker
	router   http.Handler
	logger   log.FieldLogger

	closers []func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	l := logger.New(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.WithError(err).Fatal("Driver agent stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger log.FieldLogger) error {
	a, err := newAgent(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	wait := a.start(ctx)
	defer wait()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
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

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newAgent(ctx context.Context, cfg *config.Config, logger log.FieldLogger) (*agent, error) {
	a := &agent{clientID: cfg.MQTTClientID, logger: logger}
	if a.clientID == "" {
		a.clientID = "fleet-driver-" + uuid.NewString()
	}

	durable, closeStore := openTokenStore(ctx, cfg, logger)
	a.durable = durable
	a.closers = append(a.closers, closeStore)

	conn, closeConn, err := openBroker(cfg, a.clientID, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.conn = conn
	a.closers = append(a.closers, closeConn)

	resolver := auth.NewResolver(db.NewMemoryTokenStore(), durable, nil, logger)
	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, resolver, logger)
	resolver.SetLookup(client)

	a.provider = push.NewMQTTProvider(conn, durable, push.Permission(cfg.PushPermission), logger)

	var notifier interface {
		push.Notifier
		push.Opener
	} = push.LogNotifier{Logger: logger}
	var sender bridge.Sender
	var receiver bridge.Receiver
	if cfg.MQTTBrokerURL == "" {
		mailbox := bridge.NewMailbox(0)
		sender, receiver = mailbox, mailbox
	} else {
		mb := bridge.NewMQTTBridge(conn, a.clientID, logger)
		if err := mb.Watch(); err != nil {
			a.Close()
			return nil, err
		}
		sender, receiver = mb, mb
		notifier = push.NewMQTTNotifier(conn, a.clientID)
	}

	a.worker = ingest.NewWorker(ingest.WorkerConfig{
		Receiver: receiver,
		Provider: a.provider,
		Tokens:   durable,
		Notifier: notifier,
		Opener:   notifier,
		NewBackend: func(baseURL string) ingest.Backend {
			return api.NewClient(baseURL, cfg.HTTPTimeout, nil, logger)
		},
		Logger: logger,
	})
	err = push.SubscribeClicks(conn, a.clientID, func(ev push.ClickEvent) {
		a.worker.HandleClick(ingest.Click{Action: ev.Action, Tag: ev.Tag})
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("Notification clicks unavailable")
	}

	store := notifications.NewStore(client, cfg.NotificationPageSize, logger)
	foreground := ingest.NewForeground(
		ingest.Capabilities{Notifications: client, Credential: resolver},
		resolver,
		store,
		driverapp.NotifierAlerter{Notifier: notifier, Logger: logger},
		logger,
	)
	uploader := storage.NewHTTPUploader(cfg.StorageURL, cfg.StorageBucket, cfg.StorageKey, cfg.HTTPTimeout, logger)
	controller := trips.NewController(client, uploader, store, resolver, cfg.TripPageSize, logger)

	a.app = driverapp.New(driverapp.Config{
		APIBaseURL:     cfg.APIBaseURL,
		ProviderConfig: models.ProviderConfig(cfg.Provider),
	}, driverapp.Deps{
		Session:    resolver,
		Backend:    client,
		Provider:   a.provider,
		Bridge:     sender,
		Foreground: foreground,
		Store:      store,
		Trips:      controller,
		Logger:     logger,
	})

	authMiddleware := middleware.NewAuthMiddleware(resolver, logger)
	a.router = handlers.NewRouter(handlers.RouterDeps{
		Auth:          authMiddleware,
		RateLimit:     middleware.NewRateLimitMiddleware(),
		AuthHandler:   handlers.NewAuthHandler(a.app),
		Notifications: handlers.NewNotificationHandler(store, a.app, controller),
		Trips:         handlers.NewTripHandler(controller),
		Logger:        logger,
	})
	return a, nil
}

// start runs the background worker and the foreground, and boots the
// driver if a credential is already stored. The returned function waits for
// both to stop after ctx is done.
func (a *agent) start(ctx context.Context) func() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.worker.Run(ctx); err != nil {
			a.logger.WithError(err).Error("Background worker stopped")
		}
	}()
	go func() {
		defer wg.Done()
		a.app.Run(ctx)
	}()

	if err := a.app.Boot(ctx); err != nil {
		if errors.Is(err, api.ErrAuthRequired) {
			a.logger.Info("No stored session, waiting for login")
		} else {
			a.logger.WithError(err).Warn("Boot failed")
		}
	}
	return wg.Wait
}

func (a *agent) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openTokenStore opens the configured durable store behind a memory
// fallback. A store that cannot be reached at startup is replaced by the
// fallback alone.
func openTokenStore(ctx context.Context, cfg *config.Config, logger log.FieldLogger) (db.TokenStore, func()) {
	fallback := db.NewMemoryTokenStore()
	noop := func() {}

	switch cfg.TokenStore {
	case config.TokenStoreMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			logger.WithError(err).Warn("MongoDB unavailable, keeping tokens in memory")
			return fallback, noop
		}
		store := db.NewMongoTokenStore(client.Database(cfg.MongoDB))
		if err := store.Init(ctx); err != nil {
			logger.WithError(err).Warn("Failed to initialise token collection")
		}
		logger.Info("Connected to MongoDB token store")
		return &db.Fallback{Primary: store, Secondary: fallback, Logger: logger}, func() {
			_ = client.Disconnect(context.Background())
		}
	case config.TokenStoreRedis:
		client, err := db.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, keeping tokens in memory")
			return fallback, noop
		}
		logger.Info("Connected to Redis token store")
		return &db.Fallback{Primary: db.NewRedisTokenStore(client), Secondary: fallback, Logger: logger}, func() {
			_ = client.Close()
		}
	default:
		return fallback, noop
	}
}

// openBroker connects to the MQTT broker, or returns an in-process broker
// when none is configured.
func openBroker(cfg *config.Config, clientID string, logger log.FieldLogger) (broker.Conn, func(), error) {
	if cfg.MQTTBrokerURL == "" {
		logger.Info("No MQTT broker configured, delivering pushes in-process")
		mem := broker.NewMemory()
		return mem, mem.Close, nil
	}
	client, err := broker.Connect(cfg.MQTTBrokerURL, clientID, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { client.Disconnect(250) }, nil
}

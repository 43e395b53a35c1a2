package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/affordindia/affordindia-sub004/config"
	"github.com/affordindia/affordindia-sub004/internal/auth"
	"github.com/affordindia/affordindia-sub004/internal/db"
	"github.com/affordindia/affordindia-sub004/internal/events"
	"github.com/affordindia/affordindia-sub004/internal/handlers"
	"github.com/affordindia/affordindia-sub004/internal/metrics"
	"github.com/affordindia/affordindia-sub004/internal/middleware"
	"github.com/affordindia/affordindia-sub004/internal/mongostore"
	"github.com/affordindia/affordindia-sub004/logging"
)

const eventBuffer = 256

func main() {
	logger := logging.GetSugaredLogger()
	defer logger.Sync()

	cfg, err := config.GetConfig()
	if err != nil {
		logger.Fatalw("failed to load config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("failed to open order store", "driver", cfg.StoreDriver, "error", err)
	}
	defer database.Close()

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()
	dispatcher := events.NewDispatcher(publisher, eventBuffer, logger)

	m := metrics.NewServerMetrics("orders")

	h := &handlers.Handler{
		Database: database,
		Events:   dispatcher,
		Metrics:  m,
		Issuer:   auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Admin:    auth.Admin{Email: cfg.AdminEmail, Password: cfg.AdminPassword},
		Logger:   logger,
	}

	var router http.Handler = initRouter(h, m, middleware.NewClientLimiter(cfg.LoginRate))
	if cfg.TrustProxy {
		router = chimw.RealIP(router)
	}

	srv := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Start(dispatchCtx)
		return nil
	})
	g.Go(func() error {
		logger.Infow("starting server", "address", cfg.RunAddress, "store", cfg.StoreDriver, "kafka", len(cfg.KafkaBrokers) > 0)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// events queued by in-flight requests are flushed after the server stops
		defer stopDispatch()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	if err = g.Wait(); err != nil {
		logger.Errorw("server stopped", "error", err)
	}
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (db.Database, error) {
	if cfg.StoreDriver == config.DriverMongo {
		return mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	}
	return db.NewManager(ctx, cfg.DatabaseURI, logger)
}

func initRouter(h *handlers.Handler, m *metrics.ServerMetrics, logins *middleware.ClientLimiter) *chi.Mux {
	admin := func(fn http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware.Conveyor(
				fn,
				h.Logger,
				middleware.WriteWithCompression,
				middleware.ReadWithCompression,
				middleware.ValidateAuth(h.Issuer),
				middleware.Instrument(m),
			).ServeHTTP(w, r)
		}
	}

	r := chi.NewRouter()
	r.Post(`/api/admin/login`,
		func(w http.ResponseWriter, r *http.Request) {
			middleware.Conveyor(
				http.HandlerFunc(h.Login),
				h.Logger,
				middleware.ValidateCredentials,
				middleware.WriteWithCompression,
				middleware.ReadWithCompression,
				middleware.RateLimit(logins),
				middleware.Instrument(m),
			).ServeHTTP(w, r)
		},
	)
	r.Get(`/api/orders`, admin(h.ListOrders))
	r.Get(`/api/orders/{id}`, admin(h.GetOrder))
	r.Patch(`/api/orders/{id}`, admin(h.UpdateStatus))
	r.Patch(`/api/orders/{id}/payment`, admin(h.UpdatePayment))
	r.Put(`/api/orders/{id}/shipment`, admin(h.AttachShipment))
	r.Delete(`/api/orders/{id}`, admin(h.DeleteOrder))
	r.Get(`/health`,
		func(w http.ResponseWriter, r *http.Request) {
			middleware.Conveyor(
				http.HandlerFunc(h.Health),
				h.Logger,
				middleware.WriteWithCompression,
				middleware.Instrument(m),
			).ServeHTTP(w, r)
		},
	)
	r.Method(http.MethodGet, `/metrics`, m.Handler())
	return r
}

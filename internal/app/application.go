// Package app wires the money service components together and manages their
// lifecycle.
package app

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/virtualgrid/moneyserver/internal/app/httpapi"
	"github.com/virtualgrid/moneyserver/internal/app/metrics"
	"github.com/virtualgrid/moneyserver/internal/app/services/ledger"
	"github.com/virtualgrid/moneyserver/internal/app/services/notify"
	"github.com/virtualgrid/moneyserver/internal/app/services/sessions"
	"github.com/virtualgrid/moneyserver/internal/app/storage"
	"github.com/virtualgrid/moneyserver/internal/app/system"
	"github.com/virtualgrid/moneyserver/internal/config"
	"github.com/virtualgrid/moneyserver/internal/middleware"
	"github.com/virtualgrid/moneyserver/pkg/logger"
)

// Application owns every running component of the money service.
type Application struct {
	cfg     config.Config
	log     *logger.Logger
	manager *system.Manager

	Ledger   *ledger.Service
	Sessions *sessions.Registry
	Metrics  *metrics.Registry
	server   *http.Server
}

// New assembles the service on top of the given store.
func New(cfg config.Config, store storage.Store, log *logger.Logger) *Application {
	reg := sessions.NewRegistry()
	m := metrics.NewRegistry(reg.Count)
	notifier := notify.NewClient(log.WithField("component", "notify"))
	svc := ledger.NewService(store, reg, notifier, m, cfg.Ledger,
		log.WithField("component", "ledger"))

	a := &Application{
		cfg:      cfg,
		log:      log,
		manager:  system.NewManager(log),
		Ledger:   svc,
		Sessions: reg,
		Metrics:  m,
	}

	router := mux.NewRouter()
	handler := httpapi.NewHandler(svc, log.WithField("component", "httpapi"))
	handler.Register(router, m.InstrumentHandler)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	var root http.Handler = router
	if cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		root = rl.Middleware(root)
	}
	root = middleware.RequestLogging(log.WithField("component", "http"))(root)

	a.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.manager.Register(ledger.NewSweeper(store, m, cfg.Ledger.DeadTime,
		cfg.Ledger.SweepInterval, log.WithField("component", "sweeper")))
	a.manager.Register(&httpServer{server: a.server, log: log})
	return a
}

// Start brings up every registered service.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.StartAll(ctx)
}

// Stop shuts everything down in reverse start order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.StopAll(ctx)
}

// Handler exposes the root HTTP handler, for tests.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

type httpServer struct {
	server *http.Server
	log    *logger.Logger
}

func (s *httpServer) Name() string { return "http-server" }

func (s *httpServer) Start(ctx context.Context) error {
	go func() {
		s.log.WithField("addr", s.server.Addr).Info("http server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Fatal("http server failed")
		}
	}()
	return nil
}

func (s *httpServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/auth"
	"signalcopier/src/connectors"
	"signalcopier/src/executors"
	"signalcopier/src/handler"
	"signalcopier/src/repository"
	"signalcopier/src/security"
	syncsvc "signalcopier/src/sync"
)

// Dependencies carries everything the router needs. main() builds it once.
type Dependencies struct {
	Engine     *executors.Engine
	Sync       *syncsvc.Service
	Firms      *repository.PropFirmRepository
	Trades     *repository.TradeRepository
	Symbols    *repository.SymbolRepository
	Strategies *repository.StrategyRepository
	Users      *repository.UserRepository
	Registry   *connectors.Registry
	Cipher     *security.Cipher
}

// NewRouter wires every endpoint. The webhook ingestion path is public since
// alert sources cannot carry credentials; everything else sits behind the
// bearer-token middleware.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Post("/webhook", handler.WebhookHandler(deps.Engine, deps.Firms))

	propFirms := handler.NewPropFirmHandler(deps.Firms, deps.Cipher, deps.Registry)
	symbols := handler.NewSymbolsHandler(deps.Symbols, deps.Firms)
	trades := handler.NewTradesHandler(deps.Trades, deps.Firms, deps.Engine)
	strategies := handler.NewStrategiesHandler(deps.Strategies)
	users := handler.NewUsersHandler(deps.Users)
	syncH := handler.NewSyncHandler(deps.Sync, deps.Firms)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(deps.Users))

		r.Put("/webhook", handler.UpdateTradesHandler(deps.Engine))

		r.Post("/prop_firms", propFirms.Create)
		r.Get("/prop_firms", propFirms.List)
		r.Get("/prop_firms/{id}", propFirms.Get)
		r.Put("/prop_firms/{id}", propFirms.Update)
		r.Delete("/prop_firms/{id}", propFirms.Delete)

		r.Get("/prop_firms/{id}/symbols", symbols.List)
		r.Put("/prop_firms/{id}/symbols", symbols.Replace)
		r.Delete("/prop_firms/{id}/symbols/{ticker}", symbols.Delete)
		r.Get("/prop_firms/{id}/trades", trades.ListForPropFirm)

		r.Get("/trades", trades.List)
		r.Post("/trades/close", trades.Close)
		r.Post("/trades/replay", trades.Replay)

		r.Get("/trading_strategies", strategies.List)
		r.Post("/trading_strategies", strategies.Create)
		r.Get("/trading_strategies/{id}", strategies.Get)
		r.Put("/trading_strategies/{id}", strategies.Update)
		r.Delete("/trading_strategies/{id}", strategies.Delete)

		r.Post("/users", users.Create)

		r.Post("/sync", syncH.SyncAll)
		r.Post("/sync/{id}", syncH.SyncOne)
	})

	return r
}

func StartServer(port string, deps Dependencies) {
	r := NewRouter(deps)

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

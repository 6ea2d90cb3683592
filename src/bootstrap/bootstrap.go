// Package bootstrap assembles the production object graph shared by the API
// server and the syncer daemon.
package bootstrap

import (
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/connectors"
	"signalcopier/src/executors"
	"signalcopier/src/repository"
	"signalcopier/src/security"
	"signalcopier/src/server"
	syncsvc "signalcopier/src/sync"
	"signalcopier/src/throttle"
)

// Build wires repositories, connectors, the engine and the reconciliation
// service on top of database.MainDB. The returned cleanup stops the order
// gate; call it on shutdown.
func Build() (server.Dependencies, func(), error) {
	cipher, err := security.NewCipher(security.GetConfig().TerminalCRKey)
	if err != nil {
		return server.Dependencies{}, nil, err
	}

	firms := repository.NewPropFirmRepository()
	signals := repository.NewSignalRepository()
	trades := repository.NewTradeRepository()
	symbols := repository.NewSymbolRepository()
	strategies := repository.NewStrategyRepository()
	users := repository.NewUserRepository()

	registry := connectors.NewRegistry()
	gate := throttle.NewGate(throttle.GetConfig().Cooldown)

	engine := executors.NewEngine(
		logger.WithField("component", "engine"),
		firms, signals, trades, symbols,
		registry, gate, cipher,
	)
	syncService := syncsvc.NewService(
		logger.WithField("component", "sync"),
		firms, signals, trades, symbols, strategies,
		registry, cipher,
	)

	deps := server.Dependencies{
		Engine:     engine,
		Sync:       syncService,
		Firms:      firms,
		Trades:     trades,
		Symbols:    symbols,
		Strategies: strategies,
		Users:      users,
		Registry:   registry,
		Cipher:     cipher,
	}
	return deps, gate.Shutdown, nil
}

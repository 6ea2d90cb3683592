package sync

// Reconciliation against the broker: the terminal is the source of truth for
// balances and open positions, the database catches up to it. Runs on a
// schedule and on demand.

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"signalcopier/src/connectors"
	"signalcopier/src/model"
	"signalcopier/src/repository"
	"signalcopier/src/security"
)

// ConnectorProvider resolves the broker connector for one prop firm.
type ConnectorProvider interface {
	ConnectorFor(firm *model.PropFirm) (connectors.TradingConnector, error)
}

// FirmReport summarizes what one reconciliation pass changed on a firm.
type FirmReport struct {
	PropFirmID     uint     `json:"prop_firm_id"`
	FirmName       string   `json:"firm_name"`
	BalanceSynced  bool     `json:"balance_synced"`
	AdoptedTickets []string `json:"adopted_tickets,omitempty"`
	RemovedTickets []string `json:"removed_tickets,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Report aggregates a full pass over every active firm.
type Report struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Firms      []FirmReport `json:"firms"`
}

// Service reconciles stored trades and balances against the broker state.
type Service struct {
	logger     *logrus.Entry
	firms      *repository.PropFirmRepository
	signals    *repository.SignalRepository
	trades     *repository.TradeRepository
	symbols    *repository.SymbolRepository
	strategies *repository.StrategyRepository
	provider   ConnectorProvider
	cipher     *security.Cipher
	now        func() time.Time
}

func NewService(
	logger *logrus.Entry,
	firms *repository.PropFirmRepository,
	signals *repository.SignalRepository,
	trades *repository.TradeRepository,
	symbols *repository.SymbolRepository,
	strategies *repository.StrategyRepository,
	provider ConnectorProvider,
	cipher *security.Cipher,
) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Service{
		logger:     logger,
		firms:      firms,
		signals:    signals,
		trades:     trades,
		symbols:    symbols,
		strategies: strategies,
		provider:   provider,
		cipher:     cipher,
		now:        time.Now,
	}
}

// SyncAll reconciles every active firm. One failing firm never stops the
// pass; its report carries the error.
func (s *Service) SyncAll(ctx context.Context) (Report, error) {
	report := Report{StartedAt: s.now()}

	firms, err := s.firms.FindActive(ctx)
	if err != nil {
		return report, err
	}

	for i := range firms {
		firm := firms[i]
		firmReport, err := s.SyncPropFirm(ctx, &firm)
		if err != nil {
			firmReport.Error = err.Error()
			s.logger.WithError(err).WithField("prop_firm_id", firm.ID).
				Error("reconciliation failed for firm")
		}
		report.Firms = append(report.Firms, firmReport)
	}

	report.FinishedAt = s.now()
	s.logger.WithField("firms", len(report.Firms)).Info("reconciliation pass finished")
	return report, nil
}

// SyncPropFirm reconciles one firm: balances from the account snapshot,
// untracked broker positions adopted, stale trade rows removed. Idempotent; a
// second run right after finds nothing to change.
func (s *Service) SyncPropFirm(ctx context.Context, firm *model.PropFirm) (FirmReport, error) {
	report := FirmReport{PropFirmID: firm.ID, FirmName: firm.Name}

	conn, err := s.connect(ctx, firm)
	if err != nil {
		return report, err
	}

	snapshot, err := conn.AccountSnapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read account snapshot: %w", err)
	}

	firm.FullBalance = snapshot.Balance
	firm.AvailableBalance = snapshot.FreeMargin
	if err := firm.RecomputeDrawdown(); err != nil {
		s.logger.WithError(err).WithField("prop_firm_id", firm.ID).
			Warn("snapshot left the account degenerate, drawdown kept")
	}
	if err := s.firms.Save(ctx, firm); err != nil {
		return report, fmt.Errorf("failed to persist synced balances: %w", err)
	}
	report.BalanceSynced = true

	positions, err := conn.ListOpenPositions(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list open positions: %w", err)
	}

	stored, err := s.trades.FindByPropFirm(ctx, firm.ID)
	if err != nil {
		return report, err
	}

	tracked := make(map[string]model.Trade, len(stored))
	for _, trade := range stored {
		tracked[trade.PlatformID] = trade
	}
	open := make(map[string]bool, len(positions))
	for _, p := range positions {
		open[p.Ticket] = true
	}

	// adopt broker positions we have no row for
	for _, p := range positions {
		if _, ok := tracked[p.Ticket]; ok {
			continue
		}
		if err := s.adoptPosition(ctx, firm, p); err != nil {
			return report, fmt.Errorf("failed to adopt position %s: %w", p.Ticket, err)
		}
		report.AdoptedTickets = append(report.AdoptedTickets, p.Ticket)
	}

	// drop rows whose broker position is gone
	for ticket, trade := range tracked {
		if open[ticket] {
			continue
		}
		if err := s.trades.Delete(ctx, trade.PropFirmID, trade.SignalID); err != nil {
			return report, fmt.Errorf("failed to remove stale trade %s: %w", ticket, err)
		}
		report.RemovedTickets = append(report.RemovedTickets, ticket)
	}

	s.logger.WithFields(logrus.Fields{
		"prop_firm_id": firm.ID,
		"adopted":      len(report.AdoptedTickets),
		"removed":      len(report.RemovedTickets),
	}).Info("firm reconciled")

	return report, nil
}

// adoptPosition creates the signal and trade rows for a broker position
// opened outside this service. Balances are untouched; the account snapshot
// already priced the position in.
func (s *Service) adoptPosition(ctx context.Context, firm *model.PropFirm, p connectors.BrokerPosition) error {
	strategy := model.SyncStrategySentinel
	if p.Comment != "" {
		known, err := s.strategies.FindByName(ctx, p.Comment)
		if err != nil {
			return err
		}
		if known != nil {
			strategy = known.Name
		}
	}

	ticker := s.reverseLabel(ctx, firm.ID, p.Symbol)

	sig := &model.Signal{
		Strategy:  strategy,
		OrderType: p.OrderType,
		Contracts: p.Volume,
		Ticker:    ticker,
		// the broker already priced the position, record its current value
		PositionSize: math.Abs(p.Profit + p.Swap),
	}
	if err := s.signals.Create(ctx, sig); err != nil {
		return err
	}

	trade := &model.Trade{
		PropFirmID: firm.ID,
		SignalID:   sig.ID,
		PlatformID: p.Ticket,
		Label:      p.Symbol,
		CreatedAt:  s.now(),
	}
	return s.firms.RecordTradePlacement(ctx, firm, trade)
}

// reverseLabel maps a broker symbol back to the canonical ticker. Falls back
// to the label itself when the firm has no mapping for it.
func (s *Service) reverseLabel(ctx context.Context, propFirmID uint, label string) string {
	assocs, err := s.symbols.ListByPropFirm(ctx, propFirmID)
	if err != nil {
		return label
	}
	for _, assoc := range assocs {
		if assoc.Label == label {
			return assoc.Ticker
		}
	}
	return label
}

func (s *Service) connect(ctx context.Context, firm *model.PropFirm) (connectors.TradingConnector, error) {
	conn, err := s.provider.ConnectorFor(firm)
	if err != nil {
		return nil, err
	}

	creds := firm.Credentials()
	if s.cipher != nil && creds.Password != "" {
		plain, err := s.cipher.Decrypt(creds.Password)
		if err != nil {
			return nil, err
		}
		creds.Password = plain
	}

	if err := conn.Connect(ctx, creds); err != nil {
		return nil, err
	}
	return conn, nil
}

package executors

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"signalcopier/src/connectors"
	"signalcopier/src/mapper"
	"signalcopier/src/model"
	"signalcopier/src/repository"
	"signalcopier/src/risk"
	"signalcopier/src/security"
	"signalcopier/src/throttle"
)

// ConnectorProvider resolves the broker connector for one prop firm.
// Implemented by connectors.Registry.
type ConnectorProvider interface {
	ConnectorFor(firm *model.PropFirm) (connectors.TradingConnector, error)
}

// FirmOutcome is one firm's slice of a fan-out result.
type FirmOutcome struct {
	PropFirmID uint                   `json:"prop_firm_id"`
	FirmName   string                 `json:"firm_name"`
	Outcome    model.ExecutionOutcome `json:"outcome"`
}

// FanOutResult collects every firm's outcome for one signal. A failing firm
// never aborts its siblings; callers inspect Errors for the aggregate view.
type FanOutResult struct {
	SignalID uint          `json:"signal_id"`
	PerFirm  []FirmOutcome `json:"per_firm"`
	Errors   []error       `json:"-"`
}

func (r *FanOutResult) add(firm *model.PropFirm, outcome model.ExecutionOutcome) {
	r.PerFirm = append(r.PerFirm, FirmOutcome{
		PropFirmID: firm.ID,
		FirmName:   firm.Name,
		Outcome:    outcome,
	})
	if !outcome.Success && !outcome.Queued && outcome.Err != nil {
		r.Errors = append(r.Errors, fmt.Errorf("firm %d: %w", firm.ID, outcome.Err))
	}
}

// Engine routes parsed signals to prop firm accounts: it owns the open, close
// and update flows and the ledger writes they imply.
type Engine struct {
	logger   *logrus.Entry
	firms    *repository.PropFirmRepository
	signals  *repository.SignalRepository
	trades   *repository.TradeRepository
	symbols  *repository.SymbolRepository
	provider ConnectorProvider
	gate     *throttle.Gate
	guard    *risk.Guard
	cipher   *security.Cipher
	now      func() time.Time
}

func NewEngine(
	logger *logrus.Entry,
	firms *repository.PropFirmRepository,
	signals *repository.SignalRepository,
	trades *repository.TradeRepository,
	symbols *repository.SymbolRepository,
	provider ConnectorProvider,
	gate *throttle.Gate,
	cipher *security.Cipher,
) *Engine {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Engine{
		logger:   logger,
		firms:    firms,
		signals:  signals,
		trades:   trades,
		symbols:  symbols,
		provider: provider,
		gate:     gate,
		guard:    risk.NewGuard(),
		cipher:   cipher,
		now:      time.Now,
	}
}

// IngestAlert parses a raw alert, persists the signal and fans it out to the
// given firms. A zero position size routes to the close flow, anything else
// opens positions.
func (e *Engine) IngestAlert(ctx context.Context, raw string, firms []model.PropFirm) (*model.Signal, FanOutResult, error) {
	sig, err := mapper.ParseSignal(raw)
	if err != nil {
		e.logger.WithError(err).Warn("discarding unparseable alert")
		return nil, FanOutResult{}, err
	}

	if err := e.signals.Create(ctx, sig); err != nil {
		return nil, FanOutResult{}, err
	}

	var result FanOutResult
	if sig.IsFlatten() {
		result = e.Close(ctx, sig, firms)
	} else {
		result = e.Open(ctx, sig, firms)
	}
	return sig, result, nil
}

// Open fans an opening signal out to every firm. Each placement runs through
// the firm's order gate; bursts get queued and the firm's outcome says so.
func (e *Engine) Open(ctx context.Context, sig *model.Signal, firms []model.PropFirm) FanOutResult {
	result := FanOutResult{SignalID: sig.ID}

	for i := range firms {
		firm := firms[i]

		select {
		case <-ctx.Done():
			result.add(&firm, model.FailedOutcome("fan-out canceled", ctx.Err(), nil))
			return result
		default:
		}

		result.add(&firm, e.openForFirm(ctx, sig, &firm))
	}

	e.logger.WithFields(logrus.Fields{
		"signal_id": sig.ID,
		"firms":     len(firms),
		"failures":  len(result.Errors),
	}).Info("open fan-out finished")

	return result
}

func (e *Engine) openForFirm(ctx context.Context, sig *model.Signal, firm *model.PropFirm) model.ExecutionOutcome {
	label, err := e.symbols.GetLabel(ctx, firm.ID, sig.Ticker)
	if err != nil {
		return model.FailedOutcome("failed to resolve symbol mapping", err, nil)
	}
	if label == "" {
		e.logger.WithFields(logrus.Fields{
			"prop_firm_id": firm.ID,
			"ticker":       sig.Ticker,
		}).Info("firm has no mapping for ticker, skipping")
		return model.ExecutionOutcome{
			Success: true,
			Message: fmt.Sprintf("no symbol mapping for %s, firm skipped", sig.Ticker),
		}
	}

	existing, err := e.trades.FindByKey(ctx, firm.ID, sig.ID)
	if err != nil {
		return model.FailedOutcome("failed to check for existing trade", err, nil)
	}
	if existing != nil {
		return model.ExecutionOutcome{
			Success: true,
			Message: "signal already placed on this firm",
			TradeID: existing.PlatformID,
		}
	}

	var inline model.ExecutionOutcome
	queued := e.gate.Submit(ctx, firm.ID, func(jobCtx context.Context) {
		inline = e.placeAndRecord(jobCtx, sig, firm, label)
		if !inline.Success {
			e.logger.WithFields(logrus.Fields{
				"prop_firm_id": firm.ID,
				"signal_id":    sig.ID,
			}).WithError(inline.Err).Error("deferred placement failed")
		}
	})

	if queued {
		return model.ExecutionOutcome{
			Success: true,
			Queued:  true,
			Message: "account cooling down, order queued",
		}
	}

	// the gate ran the job inline, so its outcome is the firm's outcome
	return inline
}

// placeAndRecord performs one order placement and, on success, writes the
// trade and the debited balances in one transaction.
func (e *Engine) placeAndRecord(ctx context.Context, sig *model.Signal, firm *model.PropFirm, label string) model.ExecutionOutcome {
	conn, outcome := e.connect(ctx, firm)
	if conn == nil {
		return outcome
	}

	placed := conn.PlaceOrder(ctx, sig, label)
	if !placed.Success {
		return placed
	}

	// reload so a parallel flow's balance write is not overwritten
	fresh, err := e.firms.FindByID(ctx, firm.ID)
	if err != nil || fresh == nil {
		return model.FailedOutcome("failed to reload firm after placement", err, placed.Details)
	}
	if err := fresh.ApplyTradeCost(sig); err != nil {
		e.logger.WithError(err).WithField("prop_firm_id", firm.ID).
			Warn("balance debit left the account degenerate")
	}

	trade := &model.Trade{
		PropFirmID:     firm.ID,
		SignalID:       sig.ID,
		PlatformID:     placed.TradeID,
		BrokerResponse: placed.DetailsJSON(),
		Label:          label,
		CreatedAt:      e.now(),
	}
	if err := e.firms.RecordTradePlacement(ctx, fresh, trade); err != nil {
		return model.FailedOutcome("order placed but recording failed", err, placed.Details)
	}

	return placed
}

// Close flattens the most recent opposing position on each firm. A firm with
// nothing to close reports a warning outcome, never an error.
func (e *Engine) Close(ctx context.Context, sig *model.Signal, firms []model.PropFirm) FanOutResult {
	result := FanOutResult{SignalID: sig.ID}

	for i := range firms {
		firm := firms[i]
		result.add(&firm, e.closeForFirm(ctx, sig, &firm))
	}

	e.logger.WithFields(logrus.Fields{
		"signal_id": sig.ID,
		"firms":     len(firms),
		"failures":  len(result.Errors),
	}).Info("close fan-out finished")

	return result
}

func (e *Engine) closeForFirm(ctx context.Context, sig *model.Signal, firm *model.PropFirm) model.ExecutionOutcome {
	trade, err := e.trades.FindMostRecentOpposing(ctx, firm.ID, sig)
	if err != nil {
		return model.FailedOutcome("failed to look up opposing trade", err, nil)
	}
	if trade == nil {
		return model.ExecutionOutcome{
			Success: true,
			Message: "no matching open trade on this firm",
			Err:     model.ErrNoMatchingTrade,
		}
	}

	conn, outcome := e.connect(ctx, firm)
	if conn == nil {
		return outcome
	}

	closed := conn.CloseOrder(ctx, trade)
	if !closed.Success {
		return closed
	}

	fresh, err := e.firms.FindByID(ctx, firm.ID)
	if err != nil || fresh == nil {
		return model.FailedOutcome("failed to reload firm after close", err, closed.Details)
	}
	if trade.Signal != nil {
		if err := fresh.ReleaseTradeCost(trade.Signal); err != nil {
			e.logger.WithError(err).WithField("prop_firm_id", firm.ID).
				Warn("balance credit left the account degenerate")
		}
	}
	if err := e.firms.RecordTradeClosure(ctx, fresh, trade); err != nil {
		return model.FailedOutcome("position closed but recording failed", err, closed.Details)
	}

	return closed
}

// UpdateCriteria identifies which stored signals a correction message targets.
type UpdateCriteria struct {
	Strategy     string
	OrderType    string
	Ticker       string
	PositionSize float64
}

// UpdateResult reports an in-place correction: how many signals matched,
// which ones changed and which accounts the drawdown guard held back.
type UpdateResult struct {
	Matched          int           `json:"matched"`
	UpdatedSignalIDs []uint        `json:"updated_signal_ids,omitempty"`
	PerFirm          []FirmOutcome `json:"per_firm,omitempty"`
}

// UpdateMatchingTrades rewrites contracts and position size in place on every
// stored signal matching the criteria. Each owning account is checked against
// the drawdown guard with the corrected size first; accounts over the
// threshold hold their trade back while the rest go through.
func (e *Engine) UpdateMatchingTrades(ctx context.Context, criteria UpdateCriteria, contracts, positionSize float64) (UpdateResult, error) {
	sigs, err := e.signals.FindMatching(ctx,
		criteria.Strategy, criteria.OrderType, criteria.Ticker, criteria.PositionSize)
	if err != nil {
		return UpdateResult{}, err
	}

	result := UpdateResult{Matched: len(sigs)}

	for i := range sigs {
		sig := &sigs[i]

		trades, err := e.trades.FindBySignal(ctx, sig.ID)
		if err != nil {
			return result, err
		}

		projected := *sig
		projected.Contracts = contracts
		projected.PositionSize = positionSize

		apply := false
		for _, trade := range trades {
			firm, err := e.firms.FindByID(ctx, trade.PropFirmID)
			if err != nil || firm == nil {
				result.PerFirm = append(result.PerFirm, FirmOutcome{
					PropFirmID: trade.PropFirmID,
					Outcome:    model.FailedOutcome("failed to load firm for trade", err, nil),
				})
				continue
			}

			if verdict := e.guard.CheckProjected(firm, &projected); verdict != risk.VerdictAllowed {
				e.logger.WithFields(logrus.Fields{
					"prop_firm_id": firm.ID,
					"signal_id":    sig.ID,
					"verdict":      verdict,
				}).Warn("trade update held back by drawdown guard")
				result.PerFirm = append(result.PerFirm, FirmOutcome{
					PropFirmID: firm.ID,
					FirmName:   firm.Name,
					Outcome: model.ExecutionOutcome{
						Success: true,
						Message: fmt.Sprintf("update skipped: %s", verdict),
					},
				})
				continue
			}

			apply = true
			result.PerFirm = append(result.PerFirm, FirmOutcome{
				PropFirmID: firm.ID,
				FirmName:   firm.Name,
				Outcome: model.ExecutionOutcome{
					Success: true,
					Message: "trade updated",
					TradeID: trade.PlatformID,
				},
			})
		}

		if !apply {
			continue
		}

		sig.Contracts = contracts
		sig.PositionSize = positionSize
		if err := e.signals.Save(ctx, sig); err != nil {
			return result, err
		}
		result.UpdatedSignalIDs = append(result.UpdatedSignalIDs, sig.ID)
	}

	e.logger.WithFields(logrus.Fields{
		"strategy": criteria.Strategy,
		"ticker":   criteria.Ticker,
		"matched":  result.Matched,
		"updated":  len(result.UpdatedSignalIDs),
	}).Info("trade update finished")

	return result, nil
}

// Replay re-sends a stored signal to one firm, bypassing the drawdown guard.
// Operator tool for repairing a missed placement.
func (e *Engine) Replay(ctx context.Context, signalID uint, firm *model.PropFirm) (model.ExecutionOutcome, error) {
	sig, err := e.signals.FindByID(ctx, signalID)
	if err != nil {
		return model.ExecutionOutcome{}, err
	}
	if sig == nil {
		return model.ExecutionOutcome{}, fmt.Errorf("signal %d not found", signalID)
	}

	e.logger.WithFields(logrus.Fields{
		"signal_id":    signalID,
		"prop_firm_id": firm.ID,
		"alert":        mapper.SignalToAlertString(sig),
	}).Info("replaying signal")

	if sig.IsFlatten() {
		return e.closeForFirm(ctx, sig, firm), nil
	}
	return e.openForFirm(ctx, sig, firm), nil
}

// CloseTrade flattens one specific trade and settles the ledger. Used by the
// manual close endpoint.
func (e *Engine) CloseTrade(ctx context.Context, firm *model.PropFirm, trade *model.Trade) model.ExecutionOutcome {
	conn, outcome := e.connect(ctx, firm)
	if conn == nil {
		return outcome
	}

	closed := conn.CloseOrder(ctx, trade)
	if !closed.Success {
		return closed
	}

	fresh, err := e.firms.FindByID(ctx, firm.ID)
	if err != nil || fresh == nil {
		return model.FailedOutcome("failed to reload firm after close", err, closed.Details)
	}
	if trade.Signal != nil {
		if err := fresh.ReleaseTradeCost(trade.Signal); err != nil {
			e.logger.WithError(err).WithField("prop_firm_id", firm.ID).
				Warn("balance credit left the account degenerate")
		}
	}
	if err := e.firms.RecordTradeClosure(ctx, fresh, trade); err != nil {
		return model.FailedOutcome("position closed but recording failed", err, closed.Details)
	}

	return closed
}

// connect resolves the firm's connector and ensures the terminal session is
// up. Returns (nil, failure) when either step fails.
func (e *Engine) connect(ctx context.Context, firm *model.PropFirm) (connectors.TradingConnector, model.ExecutionOutcome) {
	conn, err := e.provider.ConnectorFor(firm)
	if err != nil {
		return nil, model.FailedOutcome("failed to resolve connector", err, nil)
	}

	creds := firm.Credentials()
	if e.cipher != nil && creds.Password != "" {
		plain, err := e.cipher.Decrypt(creds.Password)
		if err != nil {
			return nil, model.FailedOutcome("failed to decrypt terminal credentials", err, nil)
		}
		creds.Password = plain
	}

	if err := conn.Connect(ctx, creds); err != nil {
		return nil, model.FailedOutcome("failed to connect to trading terminal", err, nil)
	}
	return conn, model.ExecutionOutcome{}
}

package connectors

// REST client for an MT5 terminal bridge. The bridge wraps one running
// terminal and exposes its order/position/account primitives over HTTP, plus
// a websocket stream of position snapshots.

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second
	defaultRequestTimeout  = 15 * time.Second

	// Default deviation (max price slippage in points) when the signal does
	// not imply a larger one.
	defaultDeviation = 20

	// Magic tags every order this service places, so positions opened by hand
	// in the terminal are distinguishable.
	orderMagic = 234000
)

// MT5 order filling modes, tried in this order when the venue rejects one as
// unsupported.
var fillingModes = []string{"BOC", "FOK", "IOC", "RETURN"}

type MT5BridgeConnector struct {
	baseURL string
	http    *resty.Client

	mu         sync.RWMutex
	identity   string
	connected  bool
	positions  map[string]BrokerPosition // keyed by ticket, fed by the ws stream
	streamLive bool
	wsCancel   context.CancelFunc
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return r != nil && r.StatusCode() >= http.StatusInternalServerError
}

// NewMT5BridgeConnector builds a client for one bridge endpoint. One bridge
// serves one terminal, so connectors are per prop firm.
func NewMT5BridgeConnector(baseURL string) *MT5BridgeConnector {
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultRequestTimeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &MT5BridgeConnector{
		baseURL:   baseURL,
		http:      httpClient,
		positions: make(map[string]BrokerPosition),
	}
}

type connectRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
	Port     int    `json:"port,omitempty"`
}

type bridgeStatus struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
}

// Connect initializes the terminal session. Reconnects only when the identity
// changes; calling it before every operation is cheap.
func (c *MT5BridgeConnector) Connect(ctx context.Context, creds model.Credentials) error {
	identity := fmt.Sprintf("%s@%s:%d", creds.Username, creds.ServerAddress, creds.Port)

	c.mu.RLock()
	alreadyConnected := c.connected && c.identity == identity
	c.mu.RUnlock()
	if alreadyConnected {
		return nil
	}

	var status bridgeStatus
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(connectRequest{
			Login:    creds.Username,
			Password: creds.Password,
			Server:   creds.ServerAddress,
			Port:     creds.Port,
		}).
		SetResult(&status).
		Post("/connect")
	if err != nil {
		logger.WithError(err).WithField("server", creds.ServerAddress).
			Error("Bridge connect request failed")
		return fmt.Errorf("%w: %v", model.ErrAdapterConnection, err)
	}
	if resp.IsError() || !status.Connected {
		logger.WithFields(map[string]interface{}{
			"status":  resp.StatusCode(),
			"message": status.Message,
		}).Error("Bridge refused connection")
		return fmt.Errorf("%w: bridge status %d: %s", model.ErrAdapterConnection, resp.StatusCode(), status.Message)
	}

	c.mu.Lock()
	c.identity = identity
	c.connected = true
	c.mu.Unlock()

	// The stream outlives this request; bridges without a websocket endpoint
	// just leave the connector on the polling path.
	if err := c.StartPositionStream(context.Background()); err != nil {
		logger.WithError(err).Debug("Position stream unavailable, polling instead")
	}

	logger.WithField("identity", identity).Info("Connected to MT5 bridge")
	return nil
}

func (c *MT5BridgeConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

type tickResponse struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Time int64   `json:"time"`
}

type orderRequest struct {
	Symbol      string  `json:"symbol"`
	Volume      float64 `json:"volume"`
	Type        string  `json:"type"`
	Price       float64 `json:"price"`
	Deviation   int     `json:"deviation"`
	Magic       int     `json:"magic"`
	TypeTime    string  `json:"type_time"`
	TypeFilling string  `json:"type_filling"`
	RequestID   string  `json:"request_id"`
	StopLoss    float64 `json:"sl,omitempty"`
	TakeProfit  float64 `json:"tp,omitempty"`
}

type orderResponse struct {
	Retcode   int     `json:"retcode"`
	Order     int64   `json:"order"`
	Volume    float64 `json:"volume"`
	Price     float64 `json:"price"`
	Comment   string  `json:"comment"`
	RequestID string  `json:"request_id"`
}

// PlaceOrder sends a market order, walking the filling-mode list when the
// venue rejects one, and confirms the fill by checking that exactly one new
// position appeared.
func (c *MT5BridgeConnector) PlaceOrder(ctx context.Context, sig *model.Signal, label string) model.ExecutionOutcome {
	before, err := c.fetchOpenPositions(ctx)
	if err != nil {
		return model.FailedOutcome("failed to read open positions before order", err, nil)
	}

	tick, err := c.symbolTick(ctx, label)
	if err != nil {
		return model.FailedOutcome(fmt.Sprintf("no price data available for %s", label), err, nil)
	}

	// Bid for sell, ask for buy.
	price := tick.Ask
	if sig.OrderType == model.OrderTypeSell {
		price = tick.Bid
	}

	deviation := defaultDeviation
	if d := int(math.Abs(sig.PositionSize)); d > deviation {
		deviation = d
	}

	req := orderRequest{
		Symbol:    label,
		Volume:    math.Max(sig.Contracts, 0.1),
		Type:      strings.ToUpper(sig.OrderType),
		Price:     price,
		Deviation: deviation,
		Magic:     orderMagic,
		TypeTime:  "GTC",
		RequestID: generateRequestID(),
	}

	var last orderResponse
	for _, filling := range fillingModes {
		req.TypeFilling = filling

		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&last).
			Post("/orders")
		if err != nil {
			return model.FailedOutcome("order request failed", fmt.Errorf("%w: %v", model.ErrAdapterConnection, err), nil)
		}
		if resp.IsError() {
			return model.FailedOutcome(
				fmt.Sprintf("order request returned status %d", resp.StatusCode()),
				model.ErrOrderRejected,
				map[string]any{"status": resp.StatusCode(), "body": resp.String()},
			)
		}

		// Unsupported filling mode: try the next one.
		if last.Retcode == RetcodeInvalidFill {
			logger.WithFields(map[string]interface{}{
				"symbol":  label,
				"filling": filling,
			}).Debug("Filling mode rejected, trying next")
			continue
		}
		break
	}

	details := map[string]any{
		"retcode":    last.Retcode,
		"comment":    last.Comment,
		"volume":     last.Volume,
		"price":      last.Price,
		"request_id": last.RequestID,
		"order":      last.Order,
	}

	switch last.Retcode {
	case RetcodeDone, RetcodePlaced:
		// fall through to the post-condition check
	case RetcodeMarketClosed:
		return model.FailedOutcome("Market is closed", model.ErrOrderRejected, details)
	default:
		return model.FailedOutcome(
			fmt.Sprintf("Order failed: %s (%s)", last.Comment, GetRetcodeMsg(last.Retcode)),
			model.ErrOrderRejected,
			details,
		)
	}

	after, err := c.fetchOpenPositions(ctx)
	if err != nil {
		return model.FailedOutcome("failed to read open positions after order", err, details)
	}
	if len(after) != len(before)+1 {
		logger.WithFields(map[string]interface{}{
			"symbol": label,
			"before": len(before),
			"after":  len(after),
		}).Error("Broker reported fill but position count did not grow")
		return model.FailedOutcome("broker confirmed order but no new position is open", model.ErrGhostFill, details)
	}

	return model.ExecutionOutcome{
		Success: true,
		Message: "Trade placed successfully",
		TradeID: fmt.Sprintf("%d", last.Order),
		Details: details,
	}
}

type closeRequest struct {
	Ticket     string  `json:"ticket"`
	Symbol     string  `json:"symbol"`
	StopLoss   float64 `json:"sl,omitempty"`
	TakeProfit float64 `json:"tp,omitempty"`
	Pinned     bool    `json:"pinned,omitempty"`
}

type closeResponse struct {
	Retcode int    `json:"retcode"`
	Comment string `json:"comment"`
}

// CloseOrder flattens the position behind the trade. On a soft failure it
// retries once by pinning SL and TP to the current market price, which the
// terminal executes as an immediate exit.
func (c *MT5BridgeConnector) CloseOrder(ctx context.Context, trade *model.Trade) model.ExecutionOutcome {
	before, err := c.fetchOpenPositions(ctx)
	if err != nil {
		return model.FailedOutcome("failed to read open positions before close", err, nil)
	}

	outcome := c.closeOnce(ctx, closeRequest{Ticket: trade.PlatformID, Symbol: trade.Label})
	if !outcome.Success {
		tick, tickErr := c.symbolTick(ctx, trade.Label)
		if tickErr != nil {
			return outcome
		}
		logger.WithFields(map[string]interface{}{
			"ticket": trade.PlatformID,
			"symbol": trade.Label,
		}).Warn("Direct close failed, retrying with pinned SL/TP")
		outcome = c.closeOnce(ctx, closeRequest{
			Ticket:     trade.PlatformID,
			Symbol:     trade.Label,
			StopLoss:   tick.Bid,
			TakeProfit: tick.Ask,
			Pinned:     true,
		})
		if !outcome.Success {
			return outcome
		}
	}

	after, err := c.fetchOpenPositions(ctx)
	if err != nil {
		return model.FailedOutcome("failed to read open positions after close", err, outcome.Details)
	}
	if len(after) != len(before)-1 {
		return model.FailedOutcome("broker confirmed close but the position is still open", model.ErrGhostFill, outcome.Details)
	}

	return outcome
}

func (c *MT5BridgeConnector) closeOnce(ctx context.Context, req closeRequest) model.ExecutionOutcome {
	var result closeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/positions/close")
	if err != nil {
		return model.FailedOutcome("close request failed", fmt.Errorf("%w: %v", model.ErrAdapterConnection, err), nil)
	}

	details := map[string]any{
		"retcode": result.Retcode,
		"comment": result.Comment,
		"ticket":  req.Ticket,
	}

	if resp.IsError() || (result.Retcode != RetcodeDone && result.Retcode != RetcodePlaced) {
		return model.FailedOutcome(
			fmt.Sprintf("Error closing position %s: %s", req.Ticket, GetRetcodeMsg(result.Retcode)),
			model.ErrOrderRejected,
			details,
		)
	}

	return model.ExecutionOutcome{
		Success: true,
		Message: fmt.Sprintf("Position %s closed successfully", req.Ticket),
		TradeID: req.Ticket,
		Details: details,
	}
}

// ListOpenPositions serves from the websocket cache while the stream is
// live and polls the bridge otherwise. Order post-condition checks always
// poll, a streamed snapshot may lag the fill by a frame.
func (c *MT5BridgeConnector) ListOpenPositions(ctx context.Context) ([]BrokerPosition, error) {
	c.mu.RLock()
	live := c.streamLive
	c.mu.RUnlock()
	if live {
		return c.CachedPositions(), nil
	}
	return c.fetchOpenPositions(ctx)
}

func (c *MT5BridgeConnector) fetchOpenPositions(ctx context.Context) ([]BrokerPosition, error) {
	var positions []BrokerPosition
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&positions).
		Get("/positions")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAdapterConnection, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: positions returned status %d", model.ErrAdapterConnection, resp.StatusCode())
	}
	return positions, nil
}

func (c *MT5BridgeConnector) AccountSnapshot(ctx context.Context) (*AccountSnapshot, error) {
	var snapshot AccountSnapshot
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&snapshot).
		Get("/account")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAdapterConnection, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: account returned status %d", model.ErrAdapterConnection, resp.StatusCode())
	}
	return &snapshot, nil
}

func (c *MT5BridgeConnector) symbolTick(ctx context.Context, label string) (*tickResponse, error) {
	var tick tickResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&tick).
		Get("/symbols/" + url.PathEscape(label) + "/tick")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAdapterConnection, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("symbol %s not found (status %d)", label, resp.StatusCode())
	}
	if tick.Bid == 0 && tick.Ask == 0 {
		return nil, fmt.Errorf("no price data available for %s", label)
	}
	return &tick, nil
}

/// generateRequestID creates bridge-style request IDs: mt5-req-<uuid>.
func generateRequestID() string {
	return "mt5-req-" + uuid.NewString()
}

type wsPositionMessage struct {
	Type    string          `json:"type"`
	BodyRaw json.RawMessage `json:"body"`
}

// StartPositionStream subscribes to the bridge's websocket position feed and
// keeps the local cache current until ctx is canceled. While the feed is up,
// ListOpenPositions answers from the cache instead of polling.
func (c *MT5BridgeConnector) StartPositionStream(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	wsURL := url.URL{Scheme: scheme, Host: u.Host, Path: "/stream/positions"}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: ws dial failed: %v", model.ErrAdapterConnection, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.wsCancel != nil {
		c.wsCancel()
	}
	c.wsCancel = cancel
	c.streamLive = true
	c.mu.Unlock()

	go c.consumePositionStream(streamCtx, conn)
	return nil
}

func (c *MT5BridgeConnector) consumePositionStream(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	defer func() {
		c.mu.Lock()
		c.streamLive = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.WithError(ctx.Err()).Debug("Position stream stopping")
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.WithError(err).Warn("Position stream read error")
			return
		}

		var base wsPositionMessage
		if err := json.Unmarshal(msg, &base); err != nil {
			logger.WithError(err).Debug("Position stream: unparseable frame")
			continue
		}
		if base.Type != "POSITIONS" {
			continue
		}
		c.handlePositions(base.BodyRaw)
	}
}

func (c *MT5BridgeConnector) handlePositions(body json.RawMessage) {
	var positions []BrokerPosition
	if err := json.Unmarshal(body, &positions); err != nil {
		logger.WithError(err).Debug("Position stream: decode error")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range positions {
		// volume zero means closed, drop it from the cache
		if math.Abs(p.Volume) < 1e-12 {
			delete(c.positions, p.Ticket)
			continue
		}
		c.positions[p.Ticket] = p
	}
}

// CachedPositions returns the last state pushed by the websocket feed.
func (c *MT5BridgeConnector) CachedPositions() []BrokerPosition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]BrokerPosition, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, p)
	}
	return out
}

package throttle

// Per-account order pacing. Brokers used by prop firms flag accounts that
// fire orders in bursts, so each account sends at most one order per cooldown
// window; anything arriving inside the window queues and drains in FIFO
// order, one per window.

import (
	"context"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	Cooldown time.Duration `envconfig:"ORDER_COOLDOWN" default:"60s"`
}

func GetConfig() Config {
	var config Config
	err := envconfig.Process("THROTTLE", &config)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load throttle config")
	}
	return config
}

// Job is one deferred order dispatch. Jobs run on the gate's timer goroutine,
// so they must not block for long.
type Job func(ctx context.Context)

type accountState int

const (
	stateIdle accountState = iota
	stateCooling
)

type accountGate struct {
	state accountState
	queue []Job
	timer *time.Timer
}

// Gate throttles order submission per account. The mutex only guards
// bookkeeping; jobs execute outside of it.
type Gate struct {
	cooldown time.Duration

	mu       sync.Mutex
	accounts map[uint]*accountGate
	closed   bool
	wg       sync.WaitGroup
}

func NewGate(cooldown time.Duration) *Gate {
	return &Gate{
		cooldown: cooldown,
		accounts: make(map[uint]*accountGate),
	}
}

// Submit runs job immediately when the account is idle, otherwise appends it
// to the account's queue. Returns true when the job was queued.
func (g *Gate) Submit(ctx context.Context, accountID uint, job Job) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		logger.WithField("account_id", accountID).Warn("Order gate is shut down, dropping job")
		return false
	}

	gate, ok := g.accounts[accountID]
	if !ok {
		gate = &accountGate{}
		g.accounts[accountID] = gate
	}

	if gate.state == stateCooling {
		gate.queue = append(gate.queue, job)
		depth := len(gate.queue)
		g.mu.Unlock()
		logger.WithFields(map[string]interface{}{
			"account_id":  accountID,
			"queue_depth": depth,
		}).Info("Account cooling down, order queued")
		return true
	}

	gate.state = stateCooling
	g.startCooldown(accountID, gate)
	g.mu.Unlock()

	job(ctx)
	return false
}

// startCooldown arms the account's timer. Caller holds g.mu.
func (g *Gate) startCooldown(accountID uint, gate *accountGate) {
	g.wg.Add(1)
	gate.timer = time.AfterFunc(g.cooldown, func() {
		defer g.wg.Done()
		g.drain(accountID)
	})
}

// drain runs when a cooldown window elapses: pop the oldest queued job, run
// it, and re-arm the timer when more are waiting.
func (g *Gate) drain(accountID uint) {
	g.mu.Lock()
	gate, ok := g.accounts[accountID]
	if !ok || g.closed {
		g.mu.Unlock()
		return
	}
	if len(gate.queue) == 0 {
		gate.state = stateIdle
		gate.timer = nil
		g.mu.Unlock()
		return
	}

	job := gate.queue[0]
	gate.queue = gate.queue[1:]
	g.startCooldown(accountID, gate)
	g.mu.Unlock()

	job(context.Background())
}

// QueueDepth reports how many jobs are waiting for the account.
func (g *Gate) QueueDepth(accountID uint) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gate, ok := g.accounts[accountID]; ok {
		return len(gate.queue)
	}
	return 0
}

// Shutdown stops all timers and drops queued jobs. Queued orders are lost on
// restart; reconciliation against the broker repairs the difference.
func (g *Gate) Shutdown() {
	g.mu.Lock()
	g.closed = true
	dropped := 0
	for id, gate := range g.accounts {
		dropped += len(gate.queue)
		gate.queue = nil
		if gate.timer != nil && gate.timer.Stop() {
			g.wg.Done()
		}
		delete(g.accounts, id)
	}
	g.mu.Unlock()

	g.wg.Wait()
	if dropped > 0 {
		logger.WithField("dropped", dropped).Warn("Order gate shut down with queued orders")
	}
}

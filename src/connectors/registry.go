package connectors

import (
	"fmt"
	"sync"

	"signalcopier/src/model"
)

const (
	PlatformMT5   = "mt5"
	PlatformPaper = "paper"
)

// Factory builds a connector for one prop firm account.
type Factory func(firm *model.PropFirm) (TradingConnector, error)

// Registry maps platform types to connector factories and caches one
// connector per prop firm, so terminal sessions survive across requests.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	active    map[uint]TradingConnector
}

func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		active:    make(map[uint]TradingConnector),
	}
	r.Register(PlatformMT5, func(firm *model.PropFirm) (TradingConnector, error) {
		return NewMT5BridgeConnector(firm.ServerAddress), nil
	})
	r.Register(PlatformPaper, func(_ *model.PropFirm) (TradingConnector, error) {
		return NewMemoryConnector(), nil
	})
	return r
}

func (r *Registry) Register(platformType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[platformType] = factory
}

// ConnectorFor returns the cached connector for the firm, building one from
// the firm's platform type on first use. Unknown platform types are an error,
// not a fallback.
func (r *Registry) ConnectorFor(firm *model.PropFirm) (TradingConnector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.active[firm.ID]; ok {
		return conn, nil
	}

	factory, ok := r.factories[firm.PlatformType]
	if !ok {
		return nil, fmt.Errorf("unknown platform type %q for prop firm %d", firm.PlatformType, firm.ID)
	}

	conn, err := factory(firm)
	if err != nil {
		return nil, err
	}
	r.active[firm.ID] = conn
	return conn, nil
}

// Evict drops the cached connector for a firm, forcing a rebuild on next use.
// Called when a firm's credentials or platform change.
func (r *Registry) Evict(firmID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, firmID)
}

// Package netmon tracks connectivity to the remote document store and tells
// subscribers about offline/online edges.
package netmon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-kivik/kivik/v4"
	"go.uber.org/zap"
)

// Prober answers one question: is the remote reachable right now.
type Prober interface {
	Probe(ctx context.Context) error
}

// CouchProber probes the CouchDB /_up endpoint. Reachability of the store we
// sync against is what matters, not generic internet reachability.
type CouchProber struct {
	Client *kivik.Client
}

func (p *CouchProber) Probe(ctx context.Context) error {
	ok, err := p.Client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("remote store not ready")
	}
	return nil
}

// Monitor polls the prober on a bounded interval and fires exactly one
// reconnect notification per offline-to-online transition.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *zap.Logger

	mu             sync.RWMutex
	online         bool
	reconnectSubs  map[int]func()
	disconnectSubs map[int]func()
	nextSubID      int
}

func New(prober Prober, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		prober:         prober,
		interval:       interval,
		logger:         logger,
		reconnectSubs:  make(map[int]func()),
		disconnectSubs: make(map[int]func()),
	}
}

// Start probes once to seed the state, then polls until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.setOnline(m.prober.Probe(ctx) == nil)

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.setOnline(m.prober.Probe(ctx) == nil)
			}
		}
	}()
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnReconnect registers a callback for offline-to-online edges and returns an
// unsubscribe function.
func (m *Monitor) OnReconnect(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.reconnectSubs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.reconnectSubs, id)
	}
}

// OnDisconnect registers a callback for online-to-offline edges.
func (m *Monitor) OnDisconnect(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.disconnectSubs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.disconnectSubs, id)
	}
}

// setOnline updates the state and fires subscribers only on an actual
// transition, never on a repeated same-state probe.
func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	var subs []func()
	if online {
		for _, fn := range m.reconnectSubs {
			subs = append(subs, fn)
		}
	} else {
		for _, fn := range m.disconnectSubs {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	if online {
		m.logger.Info("connectivity restored")
	} else {
		m.logger.Warn("connectivity lost")
	}

	for _, fn := range subs {
		fn()
	}
}

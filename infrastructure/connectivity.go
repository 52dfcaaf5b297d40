package infrastructure

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Pinger is satisfied by the database pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityMonitor tracks whether the shared store is reachable by pinging
// it on an interval and notifies listeners when the state flips
type ConnectivityMonitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration

	mu        sync.RWMutex
	online    bool
	listeners []func(online bool)
}

// NewConnectivityMonitor creates a monitor that assumes it starts online
func NewConnectivityMonitor(pinger Pinger, interval time.Duration) *ConnectivityMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ConnectivityMonitor{
		pinger:   pinger,
		interval: interval,
		timeout:  2 * time.Second,
		online:   true,
	}
}

// Online reports the last observed state
func (m *ConnectivityMonitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnChange registers fn to be called with the new state on every flip
func (m *ConnectivityMonitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Check pings the store once and returns the resulting state
func (m *ConnectivityMonitor) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(pingCtx)
	cancel()

	m.set(err == nil, err)
	return err == nil
}

func (m *ConnectivityMonitor) set(online bool, cause error) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if online {
		log.Info("Shared store reachable again")
	} else {
		log.WithError(cause).Warn("Shared store unreachable, switching to offline mode")
	}

	for _, fn := range listeners {
		fn(online)
	}
}

// Start runs the ping loop until ctx is cancelled or the returned func is called
func (m *ConnectivityMonitor) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		log.WithField("interval", m.interval).Info("Connectivity monitor started")
		m.Check(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Info("Connectivity monitor shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Connectivity monitor shutting down (stop requested)...")
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()

	return func() {
		once.Do(func() { close(stopChan) })
	}
}

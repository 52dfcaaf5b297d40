package infrastructure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPinger struct {
	mu  sync.Mutex
	err error
}

func (p *scriptedPinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *scriptedPinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func TestConnectivityMonitor_NotifiesOnFlip(t *testing.T) {
	t.Parallel()

	pinger := &scriptedPinger{}
	monitor := NewConnectivityMonitor(pinger, time.Minute)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		changes []bool
	)
	monitor.OnChange(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, online)
	})

	assert.True(t, monitor.Check(ctx))
	assert.True(t, monitor.Online())

	pinger.set(errors.New("connection refused"))
	assert.False(t, monitor.Check(ctx))
	assert.False(t, monitor.Check(ctx))
	assert.False(t, monitor.Online())

	pinger.set(nil)
	assert.True(t, monitor.Check(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true}, changes)
}

func TestConnectivityMonitor_StartPolls(t *testing.T) {
	t.Parallel()

	pinger := &scriptedPinger{err: errors.New("down")}
	monitor := NewConnectivityMonitor(pinger, 10*time.Millisecond)

	wentOffline := make(chan struct{})
	var once sync.Once
	monitor.OnChange(func(online bool) {
		if !online {
			once.Do(func() { close(wentOffline) })
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := monitor.Start(ctx)
	defer stop()

	select {
	case <-wentOffline:
	case <-time.After(time.Second):
		t.Fatal("monitor never observed the outage")
	}
	require.False(t, monitor.Online())

	stop()
	stop()
}

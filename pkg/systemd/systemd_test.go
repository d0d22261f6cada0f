package systemd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"

	logx "pewsched/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

// Tests in this package swap the package-level notify hook, so none of
// them run in parallel.

func TestStates(t *testing.T) {
	rec := &recorder{}
	prev := notify
	notify = rec.notify
	t.Cleanup(func() { notify = prev })

	assert.True(t, Ready(logx.Nop()))
	assert.True(t, Reloading(logx.Nop()))
	assert.True(t, Status(logx.Nop(), "3 jobs"))
	assert.True(t, Stopping(logx.Nop()))
	assert.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyReloading, "STATUS=3 jobs", daemon.SdNotifyStopping}, rec.states)
}

func TestWatchdogEverySkipsWhenUnhealthy(t *testing.T) {
	rec := &recorder{}
	prev := notify
	notify = rec.notify
	t.Cleanup(func() { notify = prev })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var mu sync.Mutex
	healthy := true
	go func() {
		defer close(done)
		WatchdogEvery(ctx, logx.Nop(), 5*time.Millisecond, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return healthy
		})
	}()

	assert.Eventually(t, func() bool { return rec.count(daemon.SdNotifyWatchdog) >= 2 }, time.Second, time.Millisecond)
	mu.Lock()
	healthy = false
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	n := rec.count(daemon.SdNotifyWatchdog)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, rec.count(daemon.SdNotifyWatchdog))

	cancel()
	<-done
}

func TestWatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	done := make(chan struct{})
	go func() {
		Watchdog(context.Background(), logx.Nop(), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog should return when disabled")
	}
}

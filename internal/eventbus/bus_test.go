package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFiltersByPrefix(t *testing.T) {
	t.Parallel()
	b := New()
	runs, unsubRuns := b.Subscribe(4, "run.")
	defer unsubRuns()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: "job.paused"})
	b.Publish(Event{Type: "run.finished", Data: 1})

	e := <-runs
	assert.Equal(t, "run.finished", e.Type)
	assert.False(t, e.Time.IsZero())
	assert.Len(t, runs, 0)

	require.Len(t, all, 2)
	assert.Equal(t, "job.paused", (<-all).Type)
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "run.started"})
	}
	assert.EqualValues(t, 4, b.Dropped())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(Event{Type: "job.removed"})
}

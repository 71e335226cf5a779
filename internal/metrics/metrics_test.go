package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAndCounters(t *testing.T) {
	m := New()

	m.Observe(State{Channels: 3, Messages: 10, TotalUnread: 4})
	m.EventApplied("new_message")
	m.EventApplied("new_message")
	m.Noop("duplicate")
	m.Evicted(2)
	m.SendResult("ok")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.channels))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.unread))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("new_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.noops.WithLabelValues("duplicate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.evictions))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Observe(State{Trash: 5})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "imsync_trash_entries 5"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Observe(State{})
	m.EventApplied("x")
	m.Noop("x")
	m.Evicted(1)
	m.SendResult("x")
	m.IntakeDepth(1)
	m.WatchBuffer(func() (int, int) { return 1, 2 })
	assert.Nil(t, m.Registry())
}

func TestWatchBuffer(t *testing.T) {
	m := New()
	current := 0
	m.WatchBuffer(func() (int, int) { return current, 200 })
	m.WatchBuffer(func() (int, int) { return 0, 0 })

	assert.Equal(t, 0.0, testutil.ToFloat64(m.buffer))
	current = 50
	assert.Equal(t, 0.25, testutil.ToFloat64(m.buffer))
}

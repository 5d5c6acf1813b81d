// Package metrics provides observability for the custody server.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance metrics. Constructed once and injected;
// there is no package-level instance.
type Collector struct {
	StartTime time.Time

	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Booking metrics
	BookingsStarted  int64
	BookingsFinished int64

	// Release metrics
	ReleasesInitiated int64
	ReleasesQueued    int64
	ReleasesCompleted int64
	ReleasesFailed    int64
	ReleasesCancelled int64
	QueueDepth        int64
	EscortMinutesSum  int64 // simulated minutes from initiation to completion

	// Event metrics
	EventsWritten    int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesOut       int64
	WSErrors            int64

	mu sync.RWMutex
}

// NewCollector creates a fresh collector.
func NewCollector() *Collector {
	return &Collector{StartTime: time.Now()}
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordBookingStarted counts an intake session opening.
func (c *Collector) RecordBookingStarted() {
	atomic.AddInt64(&c.BookingsStarted, 1)
}

// RecordBookingFinished counts an intake session reaching Finished.
func (c *Collector) RecordBookingFinished() {
	atomic.AddInt64(&c.BookingsFinished, 1)
}

// RecordReleaseInitiated counts an accepted release request.
func (c *Collector) RecordReleaseInitiated() {
	atomic.AddInt64(&c.ReleasesInitiated, 1)
}

// RecordReleaseQueued counts a request parked in the FIFO queue.
func (c *Collector) RecordReleaseQueued() {
	atomic.AddInt64(&c.ReleasesQueued, 1)
}

// RecordReleaseCompleted records a successful release and its simulated duration.
func (c *Collector) RecordReleaseCompleted(escortMinutes int64) {
	atomic.AddInt64(&c.ReleasesCompleted, 1)
	atomic.AddInt64(&c.EscortMinutesSum, escortMinutes)
}

// RecordReleaseFailed counts a terminal failure.
func (c *Collector) RecordReleaseFailed() {
	atomic.AddInt64(&c.ReleasesFailed, 1)
}

// RecordReleaseCancelled counts an externally cancelled request.
func (c *Collector) RecordReleaseCancelled() {
	atomic.AddInt64(&c.ReleasesCancelled, 1)
}

// SetQueueDepth updates the current FIFO queue depth gauge.
func (c *Collector) SetQueueDepth(depth int64) {
	atomic.StoreInt64(&c.QueueDepth, depth)
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records an outbound WebSocket broadcast.
func (c *Collector) RecordWSMessage() {
	atomic.AddInt64(&c.WSMessagesOut, 1)
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	completed := atomic.LoadInt64(&c.ReleasesCompleted)

	var tickAvg, escortAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if completed > 0 {
		escortAvg = float64(atomic.LoadInt64(&c.EscortMinutesSum)) / float64(completed)
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"booking": map[string]interface{}{
			"started":  atomic.LoadInt64(&c.BookingsStarted),
			"finished": atomic.LoadInt64(&c.BookingsFinished),
		},

		"release": map[string]interface{}{
			"initiated":          atomic.LoadInt64(&c.ReleasesInitiated),
			"queued":             atomic.LoadInt64(&c.ReleasesQueued),
			"completed":          completed,
			"failed":             atomic.LoadInt64(&c.ReleasesFailed),
			"cancelled":          atomic.LoadInt64(&c.ReleasesCancelled),
			"queue_depth":        atomic.LoadInt64(&c.QueueDepth),
			"avg_escort_minutes": escortAvg,
		},

		"events": map[string]interface{}{
			"written": atomic.LoadInt64(&c.EventsWritten),
			"errors":  atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

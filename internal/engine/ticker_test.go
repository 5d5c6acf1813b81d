package engine

import (
	"sync/atomic"
	"testing"

	"github.com/penhollow/custody-server/internal/events"
)

func TestTickAdvancesClockAndEmits(t *testing.T) {
	eventLog := testEventLog()
	m := testMetrics()
	tk := NewTicker(eventLog, testLogger(), m)

	var minutes []int64
	eventLog.Subscribe(events.EventTypeTimeTick, func(e events.DetentionEvent) {
		p := e.Payload.(TimeTickPayload)
		minutes = append(minutes, p.Minute)
	})

	tk.tick()
	tk.tick()

	if tk.CurrentMinute() != 2*MinutesPerTick {
		t.Errorf("clock at %d, want %d", tk.CurrentMinute(), 2*MinutesPerTick)
	}
	if len(minutes) != 2 || minutes[1] != 2*MinutesPerTick {
		t.Errorf("tick events carried %v", minutes)
	}
}

func TestTickRecordsLatency(t *testing.T) {
	m := testMetrics()
	tk := NewTicker(testEventLog(), testLogger(), m)

	tk.tick()
	tk.tick()
	tk.tick()

	if got := atomic.LoadInt64(&m.TickCount); got != 3 {
		t.Errorf("tick count %d, want 3", got)
	}
	if m.LastTickTime.IsZero() {
		t.Error("last tick time never set")
	}
}

func TestSetTimeBootstrapsClock(t *testing.T) {
	tk := NewTicker(testEventLog(), testLogger(), testMetrics())
	tk.SetTime(500, 500)

	tk.tick()
	if tk.CurrentMinute() != 500+MinutesPerTick {
		t.Errorf("clock at %d after bootstrap, want %d", tk.CurrentMinute(), 500+MinutesPerTick)
	}
}

package orchestrator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressLog_RecordAndDrain(t *testing.T) {
	log := NewProgressLog(0)
	ev := ProgressEvent{Phase: PhaseParallelProduction, Subject: "Codex", Status: ProgressWorking, Message: "handing off"}
	log.Record(ev)

	events, dropped := log.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, ev, events[0])
	assert.Zero(t, dropped)

	events, _ = log.Drain()
	assert.Empty(t, events)
}

func TestProgressLog_DropsPastCapacity(t *testing.T) {
	log := NewProgressLog(2)
	for _, subject := range []string{"a", "b", "c", "d"} {
		log.Record(ProgressEvent{Subject: subject, Status: ProgressComplete})
	}

	events, dropped := log.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Subject)
	assert.Equal(t, "b", events[1].Subject)
	assert.Equal(t, 2, dropped)

	log.Record(ProgressEvent{Subject: "e"})
	events, dropped = log.Drain()
	assert.Len(t, events, 1)
	assert.Zero(t, dropped)
}

func TestProgressLog_ConcurrentRecord(t *testing.T) {
	log := NewProgressLog(100)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				log.Record(ProgressEvent{Phase: PhaseParallelProduction, Status: ProgressWorking})
			}
		}()
	}
	wg.Wait()

	events, dropped := log.Drain()
	assert.Len(t, events, 100)
	assert.Zero(t, dropped)
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name   string
		event  ProgressEvent
		expect string
	}{
		{"pending", ProgressEvent{Subject: "x.txt", Status: ProgressPending}, "  ○ x.txt (pending)"},
		{"working", ProgressEvent{Subject: "Codex", Status: ProgressWorking}, "  ● Codex..."},
		{"working with message", ProgressEvent{Subject: "Codex", Status: ProgressWorking, Message: "exec"}, "  ● Codex: exec"},
		{"waiting", ProgressEvent{Subject: "Antigravity", Status: ProgressWaiting, Message: "/ws"}, "  ◔ Antigravity waiting: /ws"},
		{"skipped", ProgressEvent{Subject: "ws-main", Status: ProgressSkipped, Message: "exists"}, "  - ws-main skipped: exists"},
		{"complete", ProgressEvent{Subject: "merge", Status: ProgressComplete}, "  ✓ merge complete"},
		{"complete with message", ProgressEvent{Subject: "x.txt", Status: ProgressComplete, Message: "resolved"}, "  ✓ x.txt: resolved"},
		{"failed", ProgressEvent{Subject: "Gemini", Status: ProgressFailed, Message: "exit 1"}, "  ✗ Gemini failed: exit 1"},
		{"unknown", ProgressEvent{Subject: "x", Status: "odd"}, "  ? x (odd)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, FormatProgress(tt.event))
		})
	}
}

func TestFormatPhaseHeader(t *testing.T) {
	assert.Equal(t, "PHASE 3: convergence", FormatPhaseHeader(PhaseConvergence))
}

package orchestrator

import (
	"fmt"
	"sync"
)

// DefaultProgressLogSize is the capacity used when NewProgressLog gets n <= 0.
const DefaultProgressLogSize = 256

// ProgressLog buffers progress events for a consumer that reads them after
// the fact, such as a tool call returning what a run did. Record never
// blocks; events past the capacity are counted and dropped.
type ProgressLog struct {
	mu      sync.Mutex
	events  []ProgressEvent
	size    int
	dropped int
}

func NewProgressLog(n int) *ProgressLog {
	if n <= 0 {
		n = DefaultProgressLogSize
	}
	return &ProgressLog{size: n}
}

// Record appends ev. It has the signature WithProgress expects.
func (l *ProgressLog) Record(ev ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) >= l.size {
		l.dropped++
		return
	}
	l.events = append(l.events, ev)
}

// Drain returns the buffered events and the number dropped since the
// previous Drain, then empties the log.
func (l *ProgressLog) Drain() ([]ProgressEvent, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	events, dropped := l.events, l.dropped
	l.events, l.dropped = nil, 0
	return events, dropped
}

var progressGlyphs = map[ProgressStatus]string{
	ProgressPending:  "○",
	ProgressWorking:  "●",
	ProgressWaiting:  "◔",
	ProgressSkipped:  "-",
	ProgressComplete: "✓",
	ProgressFailed:   "✗",
}

// FormatProgress renders ev as one indented status line.
func FormatProgress(ev ProgressEvent) string {
	glyph, ok := progressGlyphs[ev.Status]
	if !ok {
		return fmt.Sprintf("  ? %s (%s)", ev.Subject, ev.Status)
	}

	var detail string
	switch {
	case ev.Status == ProgressPending:
		detail = " (pending)"
	case ev.Message != "" && (ev.Status == ProgressWorking || ev.Status == ProgressComplete):
		detail = ": " + ev.Message
	case ev.Status == ProgressWorking:
		detail = "..."
	case ev.Status == ProgressComplete:
		detail = " complete"
	default:
		detail = fmt.Sprintf(" %s: %s", ev.Status, ev.Message)
	}
	return "  " + glyph + " " + ev.Subject + detail
}

// FormatPhaseHeader renders e.g. "PHASE 3: convergence".
func FormatPhaseHeader(phase Phase) string {
	return fmt.Sprintf("PHASE %d: %s", int(phase), phase)
}

package transfer

import (
	"fmt"
	"sync"
	"time"
)

// Phase marks where in its lifecycle a transfer currently is.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseTransferring
	PhaseMerging
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseTransferring:
		return "transferring"
	case PhaseMerging:
		return "merging"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// ProgressEvent is a snapshot of transfer progress. Within one download,
// successive events are monotonically non-decreasing in BytesDone.
type ProgressEvent struct {
	BytesDone  int64
	BytesTotal int64 // -1 when the total is not yet known
	Phase      Phase
	Rate       float64 // bytes per second since the transfer started; 0 if unmeasured
}

// ProgressSink receives progress events. Implementations are owned by the
// caller; the engine invokes them synchronously under the tracker lock, so
// they should return quickly.
type ProgressSink interface {
	Progress(ev ProgressEvent)
}

// ProgressFunc adapts a plain function to a ProgressSink.
type ProgressFunc func(ev ProgressEvent)

func (f ProgressFunc) Progress(ev ProgressEvent) { f(ev) }

// tracker aggregates byte counts from concurrent chunk workers and forwards
// one coalesced event stream to the caller's sink. A single mutex serializes
// updates; this is the only mutable state shared across workers.
//
// The true byte count can dip when a corrupted part file forces a chunk to
// restart. Emission is suppressed while the count sits below the high-water
// mark already reported, which keeps the outward stream monotonic.
type tracker struct {
	mu      sync.Mutex
	sink    ProgressSink
	total   int64 // -1 when unknown
	done    int64
	emitted int64
	phase   Phase
	start   time.Time
}

func newTracker(sink ProgressSink, total int64) *tracker {
	return &tracker{
		sink:  sink,
		total: total,
		phase: PhaseInitializing,
		start: time.Now(),
	}
}

// setTotal updates the expected size once a probe or response reveals it.
func (t *tracker) setTotal(total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
}

func (t *tracker) setPhase(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = p
	t.emit()
}

// add records n more bytes written. Negative n rolls back a chunk restart;
// the rollback itself is never visible to the sink.
func (t *tracker) add(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done += n
	if t.done < t.emitted {
		return
	}
	t.emitted = t.done
	t.emit()
}

// finish reports the terminal phase. On success the final event carries
// BytesDone equal to the tracked total bytes.
func (t *tracker) finish(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = p
	if t.done > t.emitted {
		t.emitted = t.done
	}
	t.emit()
}

func (t *tracker) bytesDone() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// emit must be called with t.mu held.
func (t *tracker) emit() {
	if t.sink == nil {
		return
	}
	var rate float64
	if elapsed := time.Since(t.start).Seconds(); elapsed > 0 {
		rate = float64(t.emitted) / elapsed
	}
	t.sink.Progress(ProgressEvent{
		BytesDone:  t.emitted,
		BytesTotal: t.total,
		Phase:      t.phase,
		Rate:       rate,
	})
}

// FormatBytes renders a byte count in binary units for display.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

package transfer

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"
)

// TestMain silences engine logs so test output stays readable.
func TestMain(m *testing.M) {
	SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// testPolicy retries fast so tests don't sit in backoff sleeps.
func testPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		Multiplier:  1,
		MaxDelay:    5 * time.Millisecond,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = testPolicy(3)
	return cfg
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// testPattern returns deterministic, non-repeating-ish bytes so off-by-one
// merge bugs show up as content mismatches.
func testPattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// recordSink captures every progress event for later assertions.
type recordSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *recordSink) Progress(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordSink) snapshot() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.events...)
}

// checkProgress asserts BytesDone never decreases and, when total is known,
// that the final event reports a completed transfer.
func checkProgress(t *testing.T, events []ProgressEvent, wantTotal int64) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no progress events delivered")
	}
	var prev int64
	for i, ev := range events {
		if ev.BytesDone < prev {
			t.Fatalf("event %d: BytesDone %d decreased from %d", i, ev.BytesDone, prev)
		}
		prev = ev.BytesDone
	}
	last := events[len(events)-1]
	if last.Phase != PhaseDone {
		t.Errorf("final phase = %v, want done", last.Phase)
	}
	if last.BytesDone != wantTotal {
		t.Errorf("final BytesDone = %d, want %d", last.BytesDone, wantTotal)
	}
	if last.BytesTotal != wantTotal {
		t.Errorf("final BytesTotal = %d, want %d", last.BytesTotal, wantTotal)
	}
}

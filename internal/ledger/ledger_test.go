package ledger

import (
	"math"
	"path/filepath"
	"sync"
	"testing"
)

func TestRecordUsageAccumulates(t *testing.T) {
	l, err := New(5.0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	total, err := l.RecordUsage(1.25)
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if total != 1.25 {
		t.Fatalf("total = %v, want 1.25", total)
	}
	total, err = l.RecordUsage(0.75)
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if total != 2.0 {
		t.Fatalf("total = %v, want 2.0", total)
	}
	if got := l.CheckThreshold(); got != StatusOK {
		t.Fatalf("status = %s, want ok", got)
	}
}

func TestRecordUsageRejectsNegativeAmounts(t *testing.T) {
	l, err := New(5.0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.RecordUsage(-0.01); err == nil {
		t.Fatal("expected error for negative usage")
	}
	if l.Total() != 0 {
		t.Fatalf("total mutated by rejected usage: %v", l.Total())
	}
}

func TestConcurrentRecordUsageLosesNoUpdates(t *testing.T) {
	l, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	const workers = 32
	const perWorker = 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := l.RecordUsage(0.01); err != nil {
					t.Errorf("RecordUsage: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	want := float64(workers*perWorker) * 0.01
	if math.Abs(l.Total()-want) > 1e-9 {
		t.Fatalf("total = %v, want %v", l.Total(), want)
	}
}

func TestThresholdPausesUntilConfirmed(t *testing.T) {
	l, err := New(5.0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.RecordUsage(4.99); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if got := l.CheckThreshold(); got != StatusOK {
		t.Fatalf("status below limit = %s, want ok", got)
	}
	if _, err := l.RecordUsage(0.01); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if got := l.CheckThreshold(); got != StatusPausedNeedsConfirmation {
		t.Fatalf("status at limit = %s, want paused", got)
	}
	l.ConfirmContinue()
	if got := l.CheckThreshold(); got != StatusOK {
		t.Fatalf("status after confirm = %s, want ok", got)
	}
	if l.Total() != 5.0 {
		t.Fatalf("confirm reset the total: %v", l.Total())
	}
	// Confirming again is a harmless no-op.
	l.ConfirmContinue()
	if got := l.CheckThreshold(); got != StatusOK {
		t.Fatalf("status after repeat confirm = %s, want ok", got)
	}
}

func TestTrackingDisabledNeverPauses(t *testing.T) {
	l, err := New(1.0, WithTrackingDisabled())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.RecordUsage(10.0); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if got := l.CheckThreshold(); got != StatusOK {
		t.Fatalf("status = %s, want ok with tracking disabled", got)
	}
	if l.Total() != 10.0 {
		t.Fatalf("total = %v, want 10.0", l.Total())
	}
}

func TestLedgerSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger.json")
	repo := NewRepository(path)
	l, err := New(5.0, WithRepository(repo))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.RecordUsage(3.5); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if _, err := l.RecordUsage(1.5); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	reloaded, err := New(5.0, WithRepository(NewRepository(path)))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Total() != 5.0 {
		t.Fatalf("reloaded total = %v, want 5.0", reloaded.Total())
	}
	if got := reloaded.CheckThreshold(); got != StatusPausedNeedsConfirmation {
		t.Fatalf("reloaded status = %s, want paused", got)
	}
}

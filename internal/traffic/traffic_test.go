package traffic

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

// TestErrorRate_SuccessAndError verifies that ErrorRate counts successes and
// errors but leaves denials out.
func TestErrorRate_SuccessAndError(t *testing.T) {
	tr := New(0)
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	errs, total := tr.ErrorRate(time.Minute)
	if errs != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errs, total)
	}
	if n := tr.DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount() = %d, want 1", n)
	}
}

func TestErrorRate_Empty(t *testing.T) {
	var tr Tracker
	errs, total := tr.ErrorRate(time.Minute)
	if errs != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", errs, total)
	}
}

// TestWindowAndRetention verifies that outcomes outside the window are not
// counted and outcomes past retention are pruned on the next record.
func TestWindowAndRetention(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	tr := New(2 * time.Minute)
	tr.now = clock.now

	tr.RecordError()
	clock.t = clock.t.Add(90 * time.Second)
	tr.RecordSuccess()

	if errs, total := tr.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", errs, total)
	}
	if errs, total := tr.ErrorRate(5 * time.Minute); errs != 1 || total != 2 {
		t.Errorf("ErrorRate(5m) = (%d, %d), want (1, 2)", errs, total)
	}

	clock.t = clock.t.Add(time.Minute)
	tr.RecordSuccess()
	if errs, total := tr.ErrorRate(time.Hour); errs != 0 || total != 2 {
		t.Errorf("ErrorRate after prune = (%d, %d), want (0, 2)", errs, total)
	}
}

func TestDegraded(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		errors    int
		minSample int
		want      bool
	}{
		{"no traffic", 0, 0, 1, false},
		{"below threshold", 9, 1, 1, false},
		{"at threshold", 8, 2, 1, true},
		{"too few samples", 0, 3, 5, false},
		{"all errors", 0, 5, 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(0)
			for i := 0; i < tt.successes; i++ {
				tr.RecordSuccess()
			}
			for i := 0; i < tt.errors; i++ {
				tr.RecordError()
			}
			if got := tr.Degraded(time.Minute, 20, tt.minSample); got != tt.want {
				t.Errorf("Degraded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReset(t *testing.T) {
	tr := New(0)
	tr.RecordError()
	tr.RecordDenied()
	tr.Reset()
	if _, total := tr.ErrorRate(time.Minute); total != 0 {
		t.Errorf("total after Reset = %d, want 0", total)
	}
	if n := tr.DenialCount(time.Minute); n != 0 {
		t.Errorf("DenialCount after Reset = %d, want 0", n)
	}
}

// TestNilTrackerRecordIsNoop verifies that components built without a tracker
// can record outcomes.
func TestNilTrackerRecordIsNoop(t *testing.T) {
	var tr *Tracker
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
}

package audio

import (
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

var testLoudConfig = LoudConfig{Threshold: 50, DurationMs: 1000, RecoveryMs: 500}

func TestLoudDetectorConfirmsAfterDuration(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	if ev := d.Update(55, testLoudConfig, t0); ev.InAlert || ev.JustEntered {
		t.Fatalf("alert before duration elapsed: %+v", ev)
	}
	if ev := d.Update(55, testLoudConfig, t0.Add(999*time.Millisecond)); ev.InAlert {
		t.Fatalf("alert at 999ms: %+v", ev)
	}

	ev := d.Update(55, testLoudConfig, t0.Add(time.Second))
	if !ev.InAlert || !ev.JustEntered || ev.Level != types.AlertLevelActive {
		t.Fatalf("expected confirmed alert, got %+v", ev)
	}
	if ev.DurationMs != 1000 {
		t.Errorf("DurationMs = %d, want 1000", ev.DurationMs)
	}

	ev = d.Update(58, testLoudConfig, t0.Add(1500*time.Millisecond))
	if !ev.InAlert || ev.JustEntered {
		t.Errorf("JustEntered should fire only once, got %+v", ev)
	}
}

func TestLoudDetectorThresholdIsStrict(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Now()
	for i := range 30 {
		ev := d.Update(50, testLoudConfig, t0.Add(time.Duration(i)*100*time.Millisecond))
		if ev.InAlert {
			t.Fatalf("score equal to threshold triggered alert at step %d", i)
		}
	}
}

func TestLoudDetectorQuietResetsPending(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Now()

	d.Update(60, testLoudConfig, t0)
	d.Update(10, testLoudConfig, t0.Add(800*time.Millisecond))
	if ev := d.Update(60, testLoudConfig, t0.Add(1200*time.Millisecond)); ev.InAlert {
		t.Fatalf("quiet gap should restart the loud stretch, got %+v", ev)
	}
}

func TestLoudDetectorRecovery(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Now()

	d.Update(60, testLoudConfig, t0)
	d.Update(60, testLoudConfig, t0.Add(time.Second))

	ev := d.Update(10, testLoudConfig, t0.Add(1200*time.Millisecond))
	if !ev.InAlert || ev.JustRecovered {
		t.Fatalf("alert should hold during recovery window, got %+v", ev)
	}

	ev = d.Update(10, testLoudConfig, t0.Add(1700*time.Millisecond))
	if !ev.JustRecovered || ev.InAlert {
		t.Fatalf("expected recovery, got %+v", ev)
	}
	if ev.TotalDurationMs != 1000 {
		t.Errorf("TotalDurationMs = %d, want 1000", ev.TotalDurationMs)
	}

	if ev := d.Update(10, testLoudConfig, t0.Add(2*time.Second)); ev.InAlert || ev.JustRecovered {
		t.Errorf("detector should be idle after recovery, got %+v", ev)
	}
}

func TestLoudDetectorLoudDuringRecoveryCancelsIt(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Now()

	d.Update(60, testLoudConfig, t0)
	d.Update(60, testLoudConfig, t0.Add(time.Second))
	d.Update(10, testLoudConfig, t0.Add(1100*time.Millisecond))
	d.Update(60, testLoudConfig, t0.Add(1300*time.Millisecond))

	ev := d.Update(10, testLoudConfig, t0.Add(1700*time.Millisecond))
	if ev.JustRecovered || !ev.InAlert {
		t.Fatalf("recovery window should restart after loud reading, got %+v", ev)
	}
}

func TestLoudDetectorReset(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Now()
	d.Update(60, testLoudConfig, t0)
	d.Update(60, testLoudConfig, t0.Add(time.Second))

	d.Reset()

	if ev := d.Update(10, testLoudConfig, t0.Add(2*time.Second)); ev.InAlert || ev.JustRecovered {
		t.Errorf("reset detector reported alert state: %+v", ev)
	}
}

func TestLoudDetectorActive(t *testing.T) {
	d := NewLoudDetector()
	t0 := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	d.Update(55, testLoudConfig, t0)
	if active, _ := d.Active(); active {
		t.Fatal("Active before confirmation")
	}
	d.Update(55, testLoudConfig, t0.Add(1200*time.Millisecond))
	if active, ms := d.Active(); !active || ms != 1200 {
		t.Errorf("Active() = %v, %d; want true, 1200", active, ms)
	}
}

package timectrl

import (
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 20*time.Millisecond, RealTime)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerStepNotifiesListeners(t *testing.T) {
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	tick := 20 * time.Millisecond
	tc := NewTimeController(start, tick, Accelerated)

	var gotNow time.Time
	var gotDt time.Duration
	calls := 0
	tc.AddListener(func(now time.Time, dt time.Duration) {
		gotNow, gotDt = now, dt
		calls++
	})

	tc.Step()
	tc.Step()

	if calls != 2 {
		t.Fatalf("listener calls = %d, want 2", calls)
	}
	if want := start.Add(2 * tick); !gotNow.Equal(want) {
		t.Errorf("listener now = %v, want %v", gotNow, want)
	}
	if gotDt != tick {
		t.Errorf("listener dt = %v, want %v", gotDt, tick)
	}
}

func TestTimeControllerStartAccelerated(t *testing.T) {
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, Accelerated)

	<-tc.Start(15 * time.Millisecond)

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
}

func TestTimeControllerStepRunsDueEvents(t *testing.T) {
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	tick := 10 * time.Millisecond
	tc := NewTimeController(start, tick, Accelerated)

	fired := false
	tc.Events().Schedule(start.Add(25*time.Millisecond), func() { fired = true })

	tc.Step() // 10ms
	tc.Step() // 20ms
	if fired {
		t.Fatal("event fired before its scheduled time")
	}
	tc.Step() // 30ms
	if !fired {
		t.Fatal("event did not fire after its scheduled time passed")
	}
}

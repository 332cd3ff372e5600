package kline

import (
	"testing"
	"time"
)

func TestBitClockTotalDuration(t *testing.T) {
	clock := newBitClock()
	start := clock.start

	for i := 0; i < 10; i++ {
		clock.next()
	}

	elapsed := time.Since(start)
	want := 10 * BitTime5Baud
	// One scheduler tick (50 ms) of slack early, five ticks late.
	slack := 50 * time.Millisecond
	if elapsed < want-slack || elapsed > want+5*slack {
		t.Fatalf("10 bit cells took %v, want ~%v", elapsed, want)
	}
}

func TestBitClockDeadlinesAreEvenlySpaced(t *testing.T) {
	clock := newBitClock()
	for i := 1; i <= 5; i++ {
		want := clock.start.Add(time.Duration(i) * BitTime5Baud)
		got := clock.start.Add(time.Duration(clock.n+1) * BitTime5Baud)
		clock.next()
		if !got.Equal(want) {
			t.Fatalf("cell %d deadline = %v, want %v", i, got, want)
		}
	}
}

func TestSleepUntilPastDeadlineReturnsImmediately(t *testing.T) {
	start := time.Now()
	sleepUntil(start.Add(-time.Second))
	if time.Since(start) > 10*time.Millisecond {
		t.Fatalf("sleepUntil with a past deadline blocked")
	}
}

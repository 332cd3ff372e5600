package kline

import "time"

// BitTime5Baud is the duration of one bit at 5 baud (200 ms), the unit the
// 5-baud wake-up is timed in.
const BitTime5Baud = 200 * time.Millisecond

// sleepUntil blocks until the monotonic instant deadline, re-checking
// time.Until in a loop instead of doing one long time.Sleep so that a
// spurious early wakeup (which Go's runtime timer does not actually
// produce, but which this still guards defensively against) can't shave
// time off the interval. Building the schedule from one reference instant,
// rather than sleeping BitTime5Baud ten times in a row, is what keeps
// per-bit rounding error from accumulating over the full 2 s wake-up.
func sleepUntil(deadline time.Time) {
	for {
		d := time.Until(deadline)
		if d <= 0 {
			return
		}
		time.Sleep(d)
	}
}

// bitClock hands out successive bit-time deadlines from one fixed start
// instant, so ten consecutive waits add up to exactly 10*BitTime5Baud of
// wall-clock time regardless of scheduling jitter on any individual wait.
type bitClock struct {
	start time.Time
	n     int
}

func newBitClock() *bitClock {
	return &bitClock{start: time.Now()}
}

// next blocks until the start of the following bit cell.
func (c *bitClock) next() {
	c.n++
	sleepUntil(c.start.Add(time.Duration(c.n) * BitTime5Baud))
}

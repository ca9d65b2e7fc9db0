package clock

import (
	"sync"
	"time"
)

// Clock 抽象出当前时间和定时器，方便在测试中替换为可控时钟
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	Ch() <-chan time.Time
	Stop()
}

type systemClock struct{}

var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{ticker: time.NewTicker(d)}
}

type systemTicker struct {
	ticker *time.Ticker
}

func (t *systemTicker) Ch() <-chan time.Time {
	return t.ticker.C
}

func (t *systemTicker) Stop() {
	t.ticker.Stop()
}

// DeterministicClock only moves when AdvanceTime is called.
type DeterministicClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*deterministicTicker
}

func NewDeterministicClock(now time.Time) *DeterministicClock {
	return &DeterministicClock{now: now}
}

func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *DeterministicClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &deterministicTicker{
		clock:  c,
		period: d,
		next:   c.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// AdvanceTime moves the clock forward and fires every ticker that became due.
// Like time.Ticker, ticks are dropped when the receiver is not keeping up.
func (c *DeterministicClock) AdvanceTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		if t.stopped || t.next.After(c.now) {
			continue
		}
		select {
		case t.ch <- c.now:
		default:
		}
		for !t.next.After(c.now) {
			t.next = t.next.Add(t.period)
		}
	}
}

type deterministicTicker struct {
	clock   *DeterministicClock
	period  time.Duration
	next    time.Time
	stopped bool
	ch      chan time.Time
}

func (t *deterministicTicker) Ch() <-chan time.Time {
	return t.ch
}

func (t *deterministicTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

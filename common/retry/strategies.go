package retry

import (
	"math"
	"math/rand"
	"time"
)

// Strategy 决定第 attempt 次失败后等待多久再重试
type Strategy interface {
	Duration(attempt int) time.Duration
}

// ExponentialStrategy uses Min*2^attempt milliseconds, capped at Max, plus up
// to MaxJitter milliseconds of random jitter.
type ExponentialStrategy struct {
	Min       float64
	Max       float64
	MaxJitter int
}

func (e *ExponentialStrategy) Duration(attempt int) time.Duration {
	var jitter time.Duration
	if e.MaxJitter > 0 {
		jitter = time.Duration(rand.Intn(e.MaxJitter)) * time.Millisecond
	}
	backoff := e.Min * math.Pow(2, float64(attempt))
	if backoff > e.Max {
		backoff = e.Max
	}
	return time.Duration(backoff)*time.Millisecond + jitter
}

type FixedStrategy struct {
	Dur time.Duration
}

func (f *FixedStrategy) Duration(int) time.Duration {
	return f.Dur
}

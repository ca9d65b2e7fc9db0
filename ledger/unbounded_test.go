package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnbounded_FIFO(t *testing.T) {
	u := NewUnbounded[int]()
	for i := 0; i < 1000; i++ {
		require.True(t, u.Send(i))
	}
	u.Close()
	assert.False(t, u.Send(1000))

	var got []int
	for v := range u.Out() {
		got = append(got, v)
	}
	require.Len(t, got, 1000)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Zero(t, u.Len())
}

func TestUnbounded_ConcurrentProducers(t *testing.T) {
	u := NewUnbounded[int]()
	const producers, perProducer = 8, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				u.Send(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()
	u.Close()

	seen := make(map[int]bool)
	last := make(map[int]int)
	for v := range u.Out() {
		seen[v] = true
		p := v / perProducer
		if prev, ok := last[p]; ok {
			assert.Less(t, prev, v, "per-producer order must hold")
		}
		last[p] = v
	}
	assert.Len(t, seen, producers*perProducer)
}

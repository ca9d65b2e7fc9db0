package slices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	even := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	assert.Equal(t, []int{2, 4}, even)
	assert.Nil(t, Filter([]int{1}, func(int) bool { return false }))
}

func TestDedup(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Dedup([]string{"a", "b", "a", "c", "b"}))
}

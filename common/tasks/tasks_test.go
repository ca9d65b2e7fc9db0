package tasks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroup_PanicIsReportedAsCritical(t *testing.T) {
	var crit error
	g := Group{HandleCrit: func(err error) { crit = err }}

	g.Go(func() error {
		panic("boom")
	})

	assert.NoError(t, g.Wait())
	assert.EqualError(t, crit, "panic: boom")
}

func TestGroup_ReturnsFirstError(t *testing.T) {
	g := Group{HandleCrit: func(err error) {}}
	want := errors.New("stop")

	g.Go(func() error { return want })
	g.Go(func() error { return nil })

	assert.ErrorIs(t, g.Wait(), want)
}

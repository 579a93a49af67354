package simclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStartsAtZero(t *testing.T) {
	c := New()
	assert.Equal(t, Time(0), c.Now())
}

func TestAdvanceMovesForward(t *testing.T) {
	c := New()
	c.Advance(100)
	assert.Equal(t, Time(100), c.Now())
	c.Advance(250)
	assert.Equal(t, Time(250), c.Now())
}

func TestAdvanceToSameTimeIsAllowed(t *testing.T) {
	c := New()
	c.Advance(100)
	assert.NotPanics(t, func() { c.Advance(100) })
	assert.Equal(t, Time(100), c.Now())
}

func TestAdvanceBackwardsPanics(t *testing.T) {
	c := New()
	c.Advance(100)
	assert.Panics(t, func() { c.Advance(50) })
}

func TestNeverDecreasesAcrossManyAdvances(t *testing.T) {
	c := New()
	last := Time(0)
	for _, t2 := range []Time{5, 5, 10, 999, 1000} {
		c.Advance(t2)
		assert.GreaterOrEqual(t, c.Now(), last)
		last = c.Now()
	}
}

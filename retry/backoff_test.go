package retry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayForWithinDocumentedRange(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for attempt := 1; attempt <= 8; attempt++ {
		shift := attempt - 1
		if shift > maxShift {
			shift = maxShift
		}
		window := 1 << shift
		min := ebBaseTime
		max := ebBaseTime * time.Duration(window+1)
		for i := 0; i < 50; i++ {
			d := delayFor(attempt, rnd)
			assert.GreaterOrEqual(t, d, min)
			assert.LessOrEqual(t, d, max)
		}
	}
}

func TestDelayForClampsAttemptBelowOne(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	// Attempt 0 is treated as attempt 1, whose window is [0, 1] + 1.
	d := delayFor(0, rnd)
	assert.GreaterOrEqual(t, d, ebBaseTime)
	assert.LessOrEqual(t, d, 2*ebBaseTime)
}

func TestEBJitterBackOffAdvancesAndResets(t *testing.T) {
	b := NewEBJitterBackOff()
	first := b.NextBackOff()
	assert.GreaterOrEqual(t, first, ebBaseTime)

	b.Reset()
	assert.Equal(t, 0, b.attempt)
}

func TestMaxAttemptDelayCapsAtMaxShift(t *testing.T) {
	d5 := MaxAttemptDelay(6)
	d10 := MaxAttemptDelay(100)
	assert.Equal(t, d5, d10)
}

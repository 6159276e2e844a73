package retry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPolicyClampsAttempts(t *testing.T) {
	p := NewPolicy(0, true)
	assert.Equal(t, 1, p.AttemptsConfigured)
}

func TestDecideFinishesOnSuccessBelowThreshold(t *testing.T) {
	s := NewState(NewPolicy(3, true))
	outcome, delay := s.Decide(nil, 200)
	assert.Equal(t, Finish, outcome)
	assert.Zero(t, delay)
}

func TestDecideRetriesOnBadStatus(t *testing.T) {
	s := NewState(NewPolicy(3, true))
	outcome, delay := s.Decide(nil, 503)
	assert.Equal(t, Retry, outcome)
	assert.Positive(t, delay)
	assert.Equal(t, 2, s.AttemptsUsed)
}

func TestDecideFinishesWhenAttemptsExhausted(t *testing.T) {
	s := NewState(NewPolicy(1, true))
	outcome, _ := s.Decide(nil, 503)
	assert.Equal(t, Finish, outcome)
}

func TestDecideTransportErrorWithoutRetryFinishesImmediately(t *testing.T) {
	s := NewState(NewPolicy(3, false))
	outcome, delay := s.Decide(errors.New("boom"), 0)
	assert.Equal(t, Finish, outcome)
	assert.Zero(t, delay)
}

func TestDecideTransportErrorWithRetryEnabledRetries(t *testing.T) {
	s := NewState(NewPolicy(3, true))
	outcome, delay := s.Decide(errors.New("boom"), 0)
	assert.Equal(t, Retry, outcome)
	assert.Positive(t, delay)
}

func TestDecideExhaustsAcrossMultipleRounds(t *testing.T) {
	s := NewState(NewPolicy(3, true))
	rounds := 0
	for {
		outcome, _ := s.Decide(nil, 500)
		rounds++
		if outcome == Finish {
			break
		}
		if rounds > 10 {
			t.Fatal("retry never finished")
		}
	}
	assert.LessOrEqual(t, s.AttemptsUsed, s.Policy.AttemptsConfigured)
	assert.Equal(t, 3, rounds)
}

func TestIsBadStatus(t *testing.T) {
	assert.True(t, IsBadStatus(500))
	assert.True(t, IsBadStatus(503))
	assert.False(t, IsBadStatus(499))
	assert.False(t, IsBadStatus(200))
}

func TestAggregateTimeoutGrowsWithAttempts(t *testing.T) {
	single := AggregateTimeout(1, NewPolicy(1, true))
	multi := AggregateTimeout(1, NewPolicy(5, true))
	assert.Greater(t, multi, single)
}

package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReviewSchedulerHint(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewReviewScheduler(func() time.Time { return now })

	good := s.Hint("Osmosis", true)
	again := s.Hint("Osmosis", false)

	assert.Equal(t, "Osmosis", good.Term)
	assert.True(t, good.Correct)
	assert.False(t, again.Correct)
	assert.False(t, good.NextReview.Before(now))
	assert.False(t, again.NextReview.Before(now))
	assert.True(t, again.NextReview.Before(good.NextReview), "missed cards come back sooner")
}

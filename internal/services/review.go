package services

import (
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flashdeck/internal/models"
)

// ReviewScheduler turns quiz answers into spaced repetition hints. Every
// quizzed card is treated as a fresh FSRS card rated Good when answered
// correctly and Again otherwise.
type ReviewScheduler struct {
	params fsrs.Parameters
	now    func() time.Time
}

func NewReviewScheduler(now func() time.Time) *ReviewScheduler {
	if now == nil {
		now = time.Now
	}
	return &ReviewScheduler{params: fsrs.DefaultParam(), now: now}
}

func (s *ReviewScheduler) Hint(term string, correct bool) models.ReviewHint {
	now := s.now().UTC()
	rating := fsrs.Again
	if correct {
		rating = fsrs.Good
	}
	card := fsrs.Card{Due: now, State: fsrs.New}
	info := s.params.Repeat(card, now)[rating]
	return models.ReviewHint{
		Term:          term,
		Correct:       correct,
		NextReview:    info.Card.Due,
		ScheduledDays: int(info.Card.ScheduledDays),
	}
}

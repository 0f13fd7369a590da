package models

import (
	"strings"
	"time"
)

// Flashcard is a single term/definition pair. Cards are replaced, never edited.
type Flashcard struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Key is the case-insensitive identity used for deduplication.
func (c Flashcard) Key() string {
	return TermKey(c.Term)
}

// TermKey lower-cases a term for dedup lookups.
func TermKey(term string) string {
	return strings.ToLower(term)
}

// SavedDeck is a named snapshot persisted in the deck store. Timestamp is the
// creation instant in Unix milliseconds and doubles as the deck id.
type SavedDeck struct {
	Name      string      `json:"name"`
	Topic     string      `json:"topic"`
	Timestamp int64       `json:"timestamp"`
	Cards     []Flashcard `json:"cards"`
}

// SavedAt converts the millisecond timestamp into a time.
func (d SavedDeck) SavedAt() time.Time {
	return time.UnixMilli(d.Timestamp)
}

// QuizQuestion carries the card plus four shuffled options, exactly one of
// which is the card's definition.
type QuizQuestion struct {
	Flashcard
	Options []string `json:"options"`
}

// Grade is the result of a finished quiz.
type Grade struct {
	Percentage float64 `json:"percentage"`
	Letter     string  `json:"letter"`
}

// ReviewHint suggests when to look at a quizzed card again.
type ReviewHint struct {
	Term          string    `json:"term"`
	Correct       bool      `json:"correct"`
	NextReview    time.Time `json:"nextReview"`
	ScheduledDays int       `json:"scheduledDays"`
}

package services

import (
	"math/rand/v2"
	"strings"
	"sync"

	"flashdeck/internal/models"
)

// Deck is the ordered working set of cards together with its term set. Every
// mutation updates both under one lock so the term set always equals the
// lower-cased terms of the cards.
type Deck struct {
	mu    sync.RWMutex
	cards []models.Flashcard
	terms *TermSet
}

func NewDeck() *Deck {
	return &Deck{terms: NewTermSet()}
}

// Cards returns a copy in display order.
func (d *Deck) Cards() []models.Flashcard {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Flashcard, len(d.cards))
	copy(out, d.cards)
	return out
}

func (d *Deck) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cards)
}

func (d *Deck) Contains(term string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.terms.Contains(term)
}

// Add appends a trimmed card. Empty fields and known terms are rejected.
func (d *Deck) Add(card models.Flashcard) error {
	card.Term = strings.TrimSpace(card.Term)
	card.Definition = strings.TrimSpace(card.Definition)
	if card.Term == "" || card.Definition == "" {
		return invalidInput("Both term and definition are required for manual entry.")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terms.Contains(card.Term) {
		return newError(CodeInvalidInput, ErrDuplicateTerm, "The term %q already exists. Please enter a unique term.", card.Term)
	}
	d.cards = append(d.cards, card)
	d.terms.Add(card.Term)
	return nil
}

// tryAccept appends card only while the deck is below target and the term is
// unknown.
func (d *Deck) tryAccept(card models.Flashcard, target int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.cards) >= target || d.terms.Contains(card.Term) {
		return false
	}
	d.cards = append(d.cards, card)
	d.terms.Add(card.Term)
	return true
}

// RemoveAt deletes the card at index. The term must match the card there so
// a request built from an older render cannot delete the wrong card.
func (d *Deck) RemoveAt(index int, term string) (models.Flashcard, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.cards) {
		return models.Flashcard{}, newError(CodeNotFound, ErrStaleCard, "Flashcard %d does not exist.", index)
	}
	card := d.cards[index]
	if term != "" && card.Term != term {
		return models.Flashcard{}, newError(CodeNotFound, ErrStaleCard, "Flashcard %d is no longer %q.", index, term)
	}
	d.cards = append(d.cards[:index:index], d.cards[index+1:]...)
	d.terms.Remove(card.Term)
	return card, nil
}

func (d *Deck) Reset() {
	d.Replace(nil)
}

// Replace swaps in a copy of cards and rebuilds the term set from it.
func (d *Deck) Replace(cards []models.Flashcard) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cards = append([]models.Flashcard(nil), cards...)
	d.terms.Rebuild(d.cards)
}

// Terms returns the lower-cased known terms.
func (d *Deck) Terms() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.terms.Keys()
}

// SampleTerms picks up to n known terms uniformly at random.
func (d *Deck) SampleTerms(rng *rand.Rand, n int) []string {
	terms := d.Terms()
	rng.Shuffle(len(terms), func(i, j int) { terms[i], terms[j] = terms[j], terms[i] })
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

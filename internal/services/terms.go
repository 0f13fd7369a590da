package services

import "flashdeck/internal/models"

// TermSet is a case-insensitive registry of accepted terms.
type TermSet struct {
	terms map[string]struct{}
}

func NewTermSet() *TermSet {
	return &TermSet{terms: make(map[string]struct{})}
}

// Add records term and reports whether it was new.
func (s *TermSet) Add(term string) bool {
	key := models.TermKey(term)
	if _, ok := s.terms[key]; ok {
		return false
	}
	s.terms[key] = struct{}{}
	return true
}

func (s *TermSet) Remove(term string) {
	delete(s.terms, models.TermKey(term))
}

func (s *TermSet) Contains(term string) bool {
	_, ok := s.terms[models.TermKey(term)]
	return ok
}

func (s *TermSet) Len() int {
	return len(s.terms)
}

// Rebuild replaces the contents with the terms of cards.
func (s *TermSet) Rebuild(cards []models.Flashcard) {
	s.terms = make(map[string]struct{}, len(cards))
	for _, c := range cards {
		s.terms[c.Key()] = struct{}{}
	}
}

// Keys returns the lower-cased terms in no particular order.
func (s *TermSet) Keys() []string {
	keys := make([]string, 0, len(s.terms))
	for k := range s.terms {
		keys = append(keys, k)
	}
	return keys
}

package services

import (
	"strings"

	"flashdeck/internal/models"
)

// ParseFlashcards turns "Term: Definition" lines into cards. Lines without a
// colon, with an empty term, or with an empty definition are skipped. Colons
// after the first one belong to the definition.
func ParseFlashcards(text string) []models.Flashcard {
	if text == "" {
		return nil
	}
	var cards []models.Flashcard
	for _, line := range strings.Split(text, "\n") {
		card, ok := parseLine(line)
		if ok {
			cards = append(cards, card)
		}
	}
	return cards
}

func parseLine(line string) (models.Flashcard, bool) {
	before, after, found := strings.Cut(line, ":")
	if !found {
		return models.Flashcard{}, false
	}
	term := strings.TrimSpace(before)
	definition := strings.TrimSpace(after)
	if term == "" || definition == "" {
		return models.Flashcard{}, false
	}
	return models.Flashcard{Term: term, Definition: definition}, true
}

// FormatFlashcards writes cards back into canonical "Term: Definition" lines.
func FormatFlashcards(cards []models.Flashcard) string {
	var b strings.Builder
	for _, c := range cards {
		b.WriteString(c.Term)
		b.WriteString(": ")
		b.WriteString(c.Definition)
		b.WriteString("\n")
	}
	return b.String()
}

// parsesCompletely reports whether every non-blank line of text is a card,
// which is how pasted decks are told apart from topics.
func parsesCompletely(text string) ([]models.Flashcard, bool) {
	var cards []models.Flashcard
	lines := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines++
		card, ok := parseLine(line)
		if !ok {
			return nil, false
		}
		cards = append(cards, card)
	}
	return cards, lines > 0
}

package services

import (
	"fmt"
	"strings"

	"flashdeck/internal/models"
)

const (
	maxPromptTerms         = 30
	maxPromptTermLength    = 120
	escalationContextChars = 2000
)

func termList(terms []string) string {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		if s := sanitizeForPrompt(t, maxPromptTermLength); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return `["` + strings.Join(cleaned, `", "`) + `"]`
}

func buildTopicPrompt(topic string, count int, known []string) string {
	return fmt.Sprintf(`Generate %d flashcards on the topic of "%s".
These flashcards must introduce **distinctly new terms and concepts** that are different from the following already generated terms: %s.
Do not provide slight variations or rephrasing of the existing terms. Focus on covering different aspects or sub-topics of "%s" that have not yet been touched upon.
Format each flashcard as "Term: Definition" on a new line. Each term and definition must be concise and clearly separated by a single colon.
Example of desired output format:
New Term1: New Definition1 for New Term1
New Term2: New Definition2 for New Term2`, count, topic, termList(known), topic)
}

func buildDocumentPrompt(documentText string, count int, known []string) string {
	return fmt.Sprintf(`Based on the following document content, generate %d flashcards.
Focus on key terms, concepts, and their definitions found within the text.
Each flashcard must introduce a **distinctly new term/concept** not already covered by these existing terms: %s.
Format each flashcard as "Term: Definition" on a new line. Each term and definition must be concise and clearly separated by a single colon.
Document Content:
---
%s
---
Example of desired output format:
New Term1: New Definition1 for New Term1
New Term2: New Definition2 for New Term2`, count, termList(known), documentText)
}

func buildEscalationPrompt(topic string, deleted models.Flashcard, known []string, documentText string) string {
	prompt := fmt.Sprintf(`The user is studying based on "%s".
They just deleted a flashcard: Term: "%s", Definition: "%s".
Generate **one new flashcard** that is related to "%s" but is **more complex, advanced, or represents a logical next step in learning** compared to the deleted flashcard.
The new flashcard must introduce a new concept or term. Do NOT generate a flashcard for "%s" again.
Avoid simple rephrasing or direct synonyms of "%s".
Also, avoid generating any of these already existing terms: %s.
Format the output as "Term: Definition" on a single new line.
Example of desired output format:
More Advanced Term: Definition for this more advanced term.`,
		topic, deleted.Term, deleted.Definition, topic, deleted.Term, deleted.Term, termList(known))

	if documentText != "" {
		prompt += "\n\nContextual Document Text (for reference, focus on generating a new, more complex card related to deleted one but can be inspired by this text):\n" +
			truncateRunes(documentText, escalationContextChars) + "..."
	}
	return prompt
}

func buildDistractorPrompt(card models.Flashcard, topic string) string {
	return fmt.Sprintf(`Given the topic "%s", for the term "%s" whose correct definition is "%s", please generate 3 distinct, plausible but incorrect definitions. These incorrect definitions should be relevant to the topic but clearly not the right answer for the given term. Do not include the correct definition or slight variations of it in your list of incorrect definitions.
Return your response ONLY as a JSON array of 3 strings.
Example: ["Incorrect definition A for %s", "Incorrect definition B for %s", "Incorrect definition C for %s"]`,
		topic, card.Term, card.Definition, card.Term, card.Term, card.Term)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

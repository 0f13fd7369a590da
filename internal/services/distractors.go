package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"flashdeck/internal/models"
)

const distractorCount = 3

// ErrInvalidDistractors is returned when the reply is not a JSON array of
// exactly three strings.
var ErrInvalidDistractors = errors.New("invalid distractor response")

// DistractorSynthesizer asks the model for wrong-but-plausible definitions.
type DistractorSynthesizer struct {
	completer Completer
	logger    *zap.Logger
}

func NewDistractorSynthesizer(completer Completer, logger *zap.Logger) *DistractorSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistractorSynthesizer{completer: completer, logger: logger}
}

// Synthesize returns exactly three distractors for card.
func (s *DistractorSynthesizer) Synthesize(ctx context.Context, card models.Flashcard, topic string) ([]string, error) {
	text, err := s.completer.Complete(ctx, buildDistractorPrompt(card, topic), CompletionOptions{JSONMode: true})
	if err != nil {
		return nil, fmt.Errorf("request distractors for %q: %w", card.Term, err)
	}
	distractors, err := parseDistractors(text)
	if err != nil {
		s.logger.Debug("rejecting distractor reply", zap.String("term", card.Term), zap.String("raw", text))
		return nil, fmt.Errorf("distractors for %q: %w", card.Term, err)
	}
	return distractors, nil
}

func parseDistractors(text string) ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDistractors, err)
	}
	if len(raw) != distractorCount {
		return nil, fmt.Errorf("%w: got %d elements", ErrInvalidDistractors, len(raw))
	}
	out := make([]string, 0, distractorCount)
	for i, r := range raw {
		var s string
		// null decodes into a string without error.
		if len(r) == 0 || r[0] != '"' {
			return nil, fmt.Errorf("%w: element %d is not a string", ErrInvalidDistractors, i)
		}
		if err := json.Unmarshal(r, &s); err != nil {
			return nil, fmt.Errorf("%w: element %d is not a string", ErrInvalidDistractors, i)
		}
		out = append(out, s)
	}
	return out, nil
}

package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"flashdeck/internal/models"
)

const (
	MaxModelCalls       = 25
	MaxConsecutiveEmpty = 3
	MaxBatchSize        = 20
)

// Source selects how prompts are built for a generation run. Exactly one of
// Topic or DocumentText is the primary content; EscalateFrom overlays a
// single "more advanced" replacement request on top of it.
type Source struct {
	Topic          string
	DocumentText   string
	SourceFileName string
	EscalateFrom   *models.Flashcard
}

// BaseTopic is the human-readable subject used in prompts and messages.
func (s Source) BaseTopic() string {
	switch {
	case s.Topic != "":
		return s.Topic
	case s.SourceFileName != "":
		return "content from " + s.SourceFileName
	default:
		return "the provided text"
	}
}

// Result summarizes a finished run.
type Result struct {
	Target    int    `json:"target"`
	DeckSize  int    `json:"deckSize"`
	Added     int    `json:"added"`
	Calls     int    `json:"calls"`
	Escalated bool   `json:"escalated"`
	Message   string `json:"message"`
}

// Reached reports whether the deck hit the target.
func (r Result) Reached() bool {
	return r.DeckSize >= r.Target
}

// Generator drives repeated completion calls until a deck reaches its target
// size or one of the call bounds trips. One run at a time.
type Generator struct {
	completer Completer
	logger    *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
	busy  atomic.Bool
}

func NewGenerator(completer Completer, logger *zap.Logger, rng *rand.Rand) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{completer: completer, logger: logger, rng: rng}
}

// Busy reports whether a run is in progress.
func (g *Generator) Busy() bool {
	return g.busy.Load()
}

func (g *Generator) acquire() (func(), error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { g.busy.Store(false) }, nil
}

func (g *Generator) sampleTerms(deck *Deck) []string {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return deck.SampleTerms(g.rng, maxPromptTerms)
}

// Generate adds cards to deck until it holds target cards. It never removes
// cards, and a deck already at or above target is left untouched. A
// completion error aborts the run immediately and keeps what was accepted.
func (g *Generator) Generate(ctx context.Context, target int, src Source, deck *Deck, sink ProgressSink) (Result, error) {
	if sink == nil {
		sink = NopSink
	}
	release, err := g.acquire()
	if err != nil {
		return Result{}, err
	}
	defer release()

	sink.ControlsChanged()
	defer sink.ControlsChanged()

	baseTopic := src.BaseTopic()
	res := Result{Target: target}
	consecutiveEmpty := 0
	escalated := false
	log := g.logger.With(zap.String("topic", baseTopic), zap.Int("target", target))

	for deck.Len() < target && res.Calls < MaxModelCalls && consecutiveEmpty < MaxConsecutiveEmpty {
		if err := ctx.Err(); err != nil {
			return g.abort(res, deck, sink, log, err)
		}

		res.Calls++
		size := deck.Len()
		want := min(MaxBatchSize, target-size)
		known := g.sampleTerms(deck)
		escalation := src.EscalateFrom != nil && !escalated

		var prompt string
		switch {
		case escalation:
			want = 1
			prompt = buildEscalationPrompt(baseTopic, *src.EscalateFrom, known, src.DocumentText)
			sink.Report(fmt.Sprintf("Generating 1 more complex card for %q to replace %q... (API call %d)", baseTopic, src.EscalateFrom.Term, res.Calls))
		case src.DocumentText != "":
			prompt = buildDocumentPrompt(src.DocumentText, want, known)
			sink.Report(fmt.Sprintf("Generating flashcards from document... (%d of %d generated, API call %d)", size, target, res.Calls))
		default:
			prompt = buildTopicPrompt(baseTopic, want, known)
			sink.Report(fmt.Sprintf("Generating flashcards for %q... (%d of %d generated, API call %d)", baseTopic, size, target, res.Calls))
		}

		log.Debug("requesting flashcards",
			zap.Int("call", res.Calls),
			zap.Int("requested", want),
			zap.Bool("escalation", escalation),
			zap.Int("excluded_terms", len(known)),
		)

		text, err := g.completer.Complete(ctx, prompt, CompletionOptions{})
		if err != nil {
			return g.abort(res, deck, sink, log, err)
		}

		accepted := 0
		for _, card := range ParseFlashcards(text) {
			if deck.tryAccept(card, target) {
				accepted++
			}
			if deck.Len() >= target {
				break
			}
		}
		res.Added += accepted

		if escalation {
			escalated = true
			res.Escalated = true
		}
		if accepted == 0 {
			// A blank first reply is treated as transient.
			if strings.TrimSpace(text) != "" || res.Calls > 1 {
				consecutiveEmpty++
			}
		} else {
			consecutiveEmpty = 0
		}

		size = deck.Len()
		switch {
		case escalation && accepted > 0:
			sink.Report(fmt.Sprintf("Generated more complex card. Now at %d of %d.", size, target))
		case escalation:
			sink.Report(fmt.Sprintf("Could not generate more complex card. Now at %d of %d.", size, target))
		case src.DocumentText != "":
			sink.Report(fmt.Sprintf("Generating flashcards from document... (%d of %d generated, API call %d)", size, target, res.Calls))
		default:
			sink.Report(fmt.Sprintf("Generating flashcards for %q... (%d of %d generated, API call %d)", baseTopic, size, target, res.Calls))
		}
		sink.Render(deck.Cards())
	}

	res.DeckSize = deck.Len()
	switch {
	case res.DeckSize > 0 && res.DeckSize < target:
		res.Message = fmt.Sprintf("Generated %d of %d flashcards. Could not generate more unique cards for %q.", res.DeckSize, target, baseTopic)
	case res.DeckSize > 0:
		res.Message = fmt.Sprintf("Successfully generated %d flashcards for %q!", res.DeckSize, baseTopic)
	case res.Calls > 0:
		res.Message = fmt.Sprintf("No flashcards could be generated for %q. Please try a different source or adjust the number.", baseTopic)
	}
	if res.Message != "" {
		sink.Report(res.Message)
	}
	sink.Render(deck.Cards())

	log.Info("generation finished",
		zap.Int("calls", res.Calls),
		zap.Int("added", res.Added),
		zap.Int("deck_size", res.DeckSize),
	)
	return res, nil
}

func (g *Generator) abort(res Result, deck *Deck, sink ProgressSink, log *zap.Logger, cause error) (Result, error) {
	res.DeckSize = deck.Len()
	res.Message = fmt.Sprintf("An error occurred while generating: %s.", cause.Error())
	sink.Report(res.Message)
	sink.Render(deck.Cards())
	log.Error("generation aborted", zap.Int("calls", res.Calls), zap.Int("deck_size", res.DeckSize), zap.Error(cause))
	return res, newError(CodeLLMService, cause, "%s", res.Message)
}

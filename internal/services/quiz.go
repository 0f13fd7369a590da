package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"flashdeck/internal/models"
)

// QuizState is the position of the quiz session state machine.
type QuizState string

const (
	QuizIdle       QuizState = "idle"
	QuizPreparing  QuizState = "preparing"
	QuizInQuestion QuizState = "question"
	QuizFeedback   QuizState = "feedback"
	QuizSummary    QuizState = "summary"
)

const defaultQuizTopic = "General Knowledge"

// QuizHost is what the quiz engine needs from the application hosting it.
// The engine never calls the host while holding its own lock.
type QuizHost interface {
	Cards() []models.Flashcard
	Topic() string
	Notify(message string)
	Render(cards []models.Flashcard)
	SetQuizVisible(visible bool)
}

// QuizOption is one answer button. Correct and Incorrect are only set once
// the question has been answered.
type QuizOption struct {
	Text      string `json:"text"`
	Correct   bool   `json:"correct,omitempty"`
	Incorrect bool   `json:"incorrect,omitempty"`
}

// QuizView is a read-only snapshot of the session for rendering.
type QuizView struct {
	State              QuizState           `json:"state"`
	PreparationMessage string              `json:"preparationMessage,omitempty"`
	Index              int                 `json:"index"`
	Total              int                 `json:"total"`
	Score              int                 `json:"score"`
	Progress           string              `json:"progress,omitempty"`
	Term               string              `json:"term,omitempty"`
	Options            []QuizOption        `json:"options,omitempty"`
	Feedback           string              `json:"feedback,omitempty"`
	AnsweredCorrectly  *bool               `json:"answeredCorrectly,omitempty"`
	AdvanceLabel       string              `json:"advanceLabel,omitempty"`
	Summary            string              `json:"summary,omitempty"`
	Grade              *models.Grade       `json:"grade,omitempty"`
	Reviews            []models.ReviewHint `json:"reviews,omitempty"`
}

// CalculateGrade maps a score to a percentage and letter. An empty quiz has
// no grade.
func CalculateGrade(score, total int) models.Grade {
	if total == 0 {
		return models.Grade{Percentage: 0, Letter: "N/A"}
	}
	pct := float64(score) / float64(total) * 100
	letter := "F"
	switch {
	case pct >= 90:
		letter = "A"
	case pct >= 80:
		letter = "B"
	case pct >= 70:
		letter = "C"
	case pct >= 60:
		letter = "D"
	}
	return models.Grade{Percentage: pct, Letter: letter}
}

// QuizEngine owns the quiz session. All transitions go through its methods.
type QuizEngine struct {
	host    QuizHost
	synth   *DistractorSynthesizer
	reviews *ReviewScheduler
	logger  *zap.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	state     QuizState
	prepMsg   string
	questions []models.QuizQuestion
	index     int
	score     int
	selected  int
	answers   []bool
	hints     []models.ReviewHint
}

func NewQuizEngine(host QuizHost, synth *DistractorSynthesizer, reviews *ReviewScheduler, logger *zap.Logger, rng *rand.Rand) *QuizEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if reviews == nil {
		reviews = NewReviewScheduler(nil)
	}
	return &QuizEngine{
		host:     host,
		synth:    synth,
		reviews:  reviews,
		logger:   logger,
		rng:      rng,
		state:    QuizIdle,
		selected: -1,
	}
}

func (q *QuizEngine) State() QuizState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Active reports whether the quiz owns the screen.
func (q *QuizEngine) Active() bool {
	return q.State() != QuizIdle
}

// QuizPreparation is a started session waiting for its distractor calls.
type QuizPreparation struct {
	engine *QuizEngine
	cards  []models.Flashcard
	topic  string
	ran    atomic.Bool
}

// Cards are the selected cards in quiz order.
func (p *QuizPreparation) Cards() []models.Flashcard {
	return append([]models.Flashcard(nil), p.cards...)
}

func (p *QuizPreparation) Topic() string {
	return p.topic
}

// Start moves Idle to Preparing and selects min(count, deck size) cards from
// a shuffled copy of the deck. count <= 0 means the whole deck.
func (q *QuizEngine) Start(count int) (*QuizPreparation, error) {
	cards := q.host.Cards()
	if len(cards) == 0 {
		msg := "Please generate or load flashcards before starting a quiz."
		q.host.Notify(msg)
		return nil, newError(CodeQuizState, ErrEmptyDeck, "%s", msg)
	}
	topic := q.host.Topic()
	if topic == "" {
		topic = defaultQuizTopic
	}

	q.mu.Lock()
	if q.state != QuizIdle {
		q.mu.Unlock()
		return nil, newError(CodeBusy, ErrInvalidQuizState, "A quiz is already in progress.")
	}
	if count <= 0 || count > len(cards) {
		count = len(cards)
	}
	q.rng.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	selected := cards[:count]

	q.state = QuizPreparing
	q.prepMsg = "Preparing your quiz... please wait."
	q.questions = nil
	q.answers = nil
	q.hints = nil
	q.index, q.score, q.selected = 0, 0, -1
	q.mu.Unlock()

	q.host.SetQuizVisible(true)
	q.host.Notify("")
	return &QuizPreparation{engine: q, cards: selected, topic: topic}, nil
}

// Run synthesizes distractors one card at a time. Cards whose synthesis
// fails are dropped. With nothing left the session returns to Idle.
func (p *QuizPreparation) Run(ctx context.Context) (int, error) {
	if !p.ran.CompareAndSwap(false, true) {
		return 0, ErrInvalidQuizState
	}
	q := p.engine
	total := len(p.cards)
	questions := make([]models.QuizQuestion, 0, total)

	for i, card := range p.cards {
		q.setPreparationMessage(fmt.Sprintf("Preparing quiz... (Generating options for question %d of %d)", i+1, total))
		if ctx.Err() != nil {
			q.logger.Warn("quiz preparation cancelled", zap.Int("prepared", len(questions)), zap.Error(ctx.Err()))
			break
		}

		distractors, err := q.synth.Synthesize(ctx, card, p.topic)
		if err != nil {
			q.logger.Warn("dropping quiz card", zap.String("term", card.Term), zap.Error(err))
			continue
		}

		options := append([]string{card.Definition}, distractors...)
		q.shuffle(options)
		questions = append(questions, models.QuizQuestion{Flashcard: card, Options: options})
	}

	if len(questions) == 0 {
		q.mu.Lock()
		q.state = QuizIdle
		q.prepMsg = ""
		q.mu.Unlock()

		msg := "Could not prepare any questions for the quiz. Try a different deck, ensure topic is set, or check the server logs for errors."
		q.host.SetQuizVisible(false)
		q.host.Render(q.host.Cards())
		q.host.Notify(msg)
		return 0, newError(CodeQuizState, ErrNoQuestions, "%s", msg)
	}

	q.mu.Lock()
	q.questions = questions
	q.answers = make([]bool, len(questions))
	q.index, q.score, q.selected = 0, 0, -1
	q.prepMsg = ""
	q.state = QuizInQuestion
	q.mu.Unlock()

	q.logger.Info("quiz ready", zap.Int("requested", total), zap.Int("questions", len(questions)))
	return len(questions), nil
}

func (q *QuizEngine) setPreparationMessage(msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prepMsg = msg
}

func (q *QuizEngine) shuffle(options []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rng.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
}

// Answer selects an option of the current question. Correctness is exact
// string equality with the card's definition.
func (q *QuizEngine) Answer(option int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != QuizInQuestion {
		return false, q.stateError("answer")
	}
	question := q.questions[q.index]
	if option < 0 || option >= len(question.Options) {
		return false, invalidInput("Option %d does not exist.", option)
	}

	correct := question.Options[option] == question.Definition
	if correct {
		q.score++
	}
	q.answers[q.index] = correct
	q.selected = option
	q.state = QuizFeedback
	return correct, nil
}

// Next advances from Feedback to the next question, or to the summary after
// the last one.
func (q *QuizEngine) Next() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != QuizFeedback {
		return q.stateError("advance")
	}
	q.index++
	q.selected = -1
	if q.index < len(q.questions) {
		q.state = QuizInQuestion
		return nil
	}
	q.state = QuizSummary
	q.hints = make([]models.ReviewHint, 0, len(q.questions))
	for i, question := range q.questions {
		q.hints = append(q.hints, q.reviews.Hint(question.Term, q.answers[i]))
	}
	return nil
}

// Retry replays the prepared questions from the start. Options keep the
// order they were shuffled into during preparation.
func (q *QuizEngine) Retry() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != QuizSummary {
		return q.stateError("retry")
	}
	q.index, q.score, q.selected = 0, 0, -1
	q.answers = make([]bool, len(q.questions))
	q.hints = nil
	q.state = QuizInQuestion
	return nil
}

// Exit ends the session from a question, feedback or the summary and hands
// the screen back to the host.
func (q *QuizEngine) Exit() error {
	q.mu.Lock()
	switch q.state {
	case QuizInQuestion, QuizFeedback, QuizSummary:
	default:
		err := q.stateError("exit")
		q.mu.Unlock()
		return err
	}
	q.state = QuizIdle
	q.questions = nil
	q.answers = nil
	q.hints = nil
	q.index, q.score, q.selected = 0, 0, -1
	q.mu.Unlock()

	q.host.SetQuizVisible(false)
	cards := q.host.Cards()
	if len(cards) > 0 {
		q.host.Notify(fmt.Sprintf("%d flashcards in current deck.", len(cards)))
	} else {
		q.host.Notify("No flashcards loaded. Generate some!")
	}
	q.host.Render(cards)
	return nil
}

func (q *QuizEngine) stateError(action string) error {
	return newError(CodeQuizState, ErrInvalidQuizState, "Cannot %s while the quiz is %s.", action, q.state)
}

// Questions returns a copy of the prepared questions.
func (q *QuizEngine) Questions() []models.QuizQuestion {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.QuizQuestion, len(q.questions))
	for i, question := range q.questions {
		question.Options = append([]string(nil), question.Options...)
		out[i] = question
	}
	return out
}

func (q *QuizEngine) View() QuizView {
	q.mu.Lock()
	defer q.mu.Unlock()

	view := QuizView{
		State: q.state,
		Index: q.index,
		Total: len(q.questions),
		Score: q.score,
	}

	switch q.state {
	case QuizPreparing:
		view.PreparationMessage = q.prepMsg
	case QuizInQuestion, QuizFeedback:
		question := q.questions[q.index]
		view.Progress = fmt.Sprintf("Question %d of %d | Score: %d", q.index+1, len(q.questions), q.score)
		view.Term = question.Term
		view.Options = make([]QuizOption, len(question.Options))
		for i, text := range question.Options {
			view.Options[i] = QuizOption{Text: text}
		}
		if q.state == QuizFeedback {
			correct := q.answers[q.index]
			view.AnsweredCorrectly = &correct
			for i := range view.Options {
				view.Options[i].Correct = view.Options[i].Text == question.Definition
				view.Options[i].Incorrect = i == q.selected && !correct
			}
			if correct {
				view.Feedback = "Correct!"
			} else {
				view.Feedback = "Incorrect. The correct answer was: " + question.Definition
			}
			view.AdvanceLabel = "Next Question"
			if q.index == len(q.questions)-1 {
				view.AdvanceLabel = "Finish Quiz"
			}
		}
	case QuizSummary:
		grade := CalculateGrade(q.score, len(q.questions))
		view.Grade = &grade
		view.Summary = fmt.Sprintf("You scored %d out of %d!\nPercentage: %.1f%%\nGrade: %s", q.score, len(q.questions), grade.Percentage, grade.Letter)
		view.Reviews = append([]models.ReviewHint(nil), q.hints...)
	}
	return view
}

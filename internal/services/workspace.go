package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"flashdeck/internal/models"
)

const (
	MinCardCount     = 1
	MaxCardCount     = 500
	defaultCardCount = 10
	untitledDeck     = "Untitled Deck"
)

// WorkspaceConfig wires the collaborators of a Workspace.
type WorkspaceConfig struct {
	Completer Completer
	Decks     *DeckStore
	Extractor *TextExtractor
	Reviews   *ReviewScheduler
	Logger    *zap.Logger
	// Seed makes card sampling and quiz shuffling reproducible. Zero picks a
	// random seed.
	Seed uint64
	Now  func() time.Time
}

// Workspace is the single-user host application: the working deck, the
// inputs that produced it, and the quiz. Long operations hand back a Run that
// keeps the workspace busy until it finishes.
type Workspace struct {
	deck      *Deck
	generator *Generator
	quiz      *QuizEngine
	decks     *DeckStore
	extractor *TextExtractor
	logger    *zap.Logger
	now       func() time.Time

	mu           sync.RWMutex
	topic        string
	desiredCount int
	escalate     bool
	selectedFile string
	message      string
	busy         bool
	quizVisible  bool
}

func NewWorkspace(cfg WorkspaceConfig) *Workspace {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	extractor := cfg.Extractor
	if extractor == nil {
		extractor = NewTextExtractor()
	}

	w := &Workspace{
		deck:         NewDeck(),
		generator:    NewGenerator(cfg.Completer, logger.Named("generator"), rand.New(rand.NewPCG(seed, 1))),
		decks:        cfg.Decks,
		extractor:    extractor,
		logger:       logger,
		now:          now,
		desiredCount: defaultCardCount,
		message:      "Enter a topic or upload a file to start.",
	}
	synth := NewDistractorSynthesizer(cfg.Completer, logger.Named("distractors"))
	w.quiz = NewQuizEngine(w, synth, cfg.Reviews, logger.Named("quiz"), rand.New(rand.NewPCG(seed, 2)))
	return w
}

// RunKind names what a Run does.
type RunKind string

const (
	RunTopic      RunKind = "topic"
	RunDocument   RunKind = "document"
	RunRegenerate RunKind = "regenerate"
	RunQuiz       RunKind = "quiz"
)

// Run is a prepared long operation. The workspace stays busy until Execute
// returns or Discard is called.
type Run struct {
	Kind RunKind

	ws      *Workspace
	exec    func(ctx context.Context, sink ProgressSink) error
	release sync.Once
}

// Execute performs the run. Notifications go to the workspace and to sink.
func (r *Run) Execute(ctx context.Context, sink ProgressSink) error {
	defer r.Discard()
	var out ProgressSink = r.ws
	if sink != nil {
		out = multiSink{r.ws, sink}
	}
	return r.exec(ctx, out)
}

// Discard releases the busy guard without running.
func (r *Run) Discard() {
	r.release.Do(r.ws.releaseBusy)
}

func (w *Workspace) newRun(kind RunKind, exec func(ctx context.Context, sink ProgressSink) error) *Run {
	return &Run{Kind: kind, ws: w, exec: exec}
}

// acquireLocked marks the workspace busy. Callers hold w.mu.
func (w *Workspace) acquireLocked() error {
	if w.busy || w.quiz.Active() {
		return ErrBusy
	}
	w.busy = true
	return nil
}

func (w *Workspace) releaseBusy() {
	w.mu.Lock()
	w.busy = false
	w.mu.Unlock()
}

func (w *Workspace) setMessage(msg string) {
	w.mu.Lock()
	w.message = msg
	w.mu.Unlock()
}

func validCount(count int) error {
	if count < MinCardCount || count > MaxCardCount {
		return invalidInput("Please enter a valid number of flashcards (%d-%d).", MinCardCount, MaxCardCount)
	}
	return nil
}

// rejectInput records the user-facing message of err and returns it.
func (w *Workspace) rejectInput(err error) error {
	w.setMessage(UserMessage(err))
	return err
}

// GenerateFromTopic starts a topic run. Text in which every non-blank line
// is a "Term: Definition" pair becomes the deck directly, and no Run is
// returned.
func (w *Workspace) GenerateFromTopic(topic string, count int) (*Run, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, w.rejectInput(invalidInput("Please enter a topic or paste \"Term: Definition\" pairs."))
	}
	if err := validCount(count); err != nil {
		return nil, w.rejectInput(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.acquireLocked(); err != nil {
		return nil, err
	}

	w.deck.Reset()
	w.selectedFile = ""
	w.desiredCount = count

	if pasted, ok := parsesCompletely(topic); ok {
		for _, card := range pasted {
			if err := w.deck.Add(card); err != nil {
				w.logger.Debug("pasted card skipped", zap.String("term", card.Term), zap.Error(err))
			}
		}
		w.topic = ""
		w.message = fmt.Sprintf("Pasted %d cards.", w.deck.Len())
		w.busy = false
		return nil, nil
	}

	w.topic = topic
	w.message = fmt.Sprintf("Generating %d flashcards for %q... (0 of %d generated)", count, topic, count)
	src := Source{Topic: topic}
	return w.newRun(RunTopic, func(ctx context.Context, sink ProgressSink) error {
		_, err := w.generator.Generate(ctx, count, src, w.deck, sink)
		return err
	}), nil
}

// GenerateFromFile extracts the text of an upload and starts a document run.
// Nothing changes when the file is rejected.
func (w *Workspace) GenerateFromFile(fileName, mimeType string, data []byte, count int) (*Run, error) {
	if fileName == "" && len(data) == 0 {
		return nil, w.rejectInput(invalidInput("Please select a file first."))
	}
	if err := validCount(count); err != nil {
		return nil, w.rejectInput(err)
	}

	w.mu.RLock()
	busy := w.busy || w.quiz.Active()
	w.mu.RUnlock()
	if busy {
		return nil, ErrBusy
	}

	text, err := w.extractor.Extract(fileName, mimeType, data)
	if err != nil {
		w.logger.Info("file rejected", zap.String("file", fileName), zap.String("mime", mimeType), zap.Error(err))
		return nil, w.rejectInput(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.acquireLocked(); err != nil {
		return nil, err
	}
	w.deck.Reset()
	w.topic = ""
	w.selectedFile = fileName
	w.desiredCount = count
	w.message = fmt.Sprintf("Generating flashcards from %s... (0 of %d generated)", fileName, count)

	src := Source{DocumentText: text, SourceFileName: fileName}
	return w.newRun(RunDocument, func(ctx context.Context, sink ProgressSink) error {
		_, err := w.generator.Generate(ctx, count, src, w.deck, sink)
		return err
	}), nil
}

// AddCard appends a manual card.
func (w *Workspace) AddCard(term, definition string) (models.Flashcard, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy || w.quiz.Active() {
		return models.Flashcard{}, ErrBusy
	}
	card := models.Flashcard{Term: strings.TrimSpace(term), Definition: strings.TrimSpace(definition)}
	if err := w.deck.Add(card); err != nil {
		w.message = UserMessage(err)
		return models.Flashcard{}, err
	}
	w.message = fmt.Sprintf("Manually added card: %q.", card.Term)
	return card, nil
}

// DeleteCard removes the card at index, which must still hold term. A deck
// generated from a topic that falls below the desired size is topped up by
// the returned Run; otherwise the Run is nil.
func (w *Workspace) DeleteCard(index int, term string) (*Run, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.acquireLocked(); err != nil {
		return nil, err
	}

	deleted, err := w.deck.RemoveAt(index, term)
	if err != nil {
		w.busy = false
		return nil, err
	}

	remaining := w.deck.Len()
	if w.topic == "" || w.selectedFile != "" || w.desiredCount <= 0 || remaining >= w.desiredCount {
		w.busy = false
		if remaining > 0 {
			w.message = fmt.Sprintf("%d flashcards remaining.", remaining)
		} else {
			w.message = "All flashcards deleted. Generate new ones or add manually?"
		}
		return nil, nil
	}

	missing := w.desiredCount - remaining
	src := Source{Topic: w.topic}
	if w.escalate {
		src.EscalateFrom = &deleted
		w.message = fmt.Sprintf("Escalating difficulty. Generating 1 more complex card for %q to replace %q...", w.topic, deleted.Term)
		if missing > 1 {
			w.message += fmt.Sprintf(" and %d other new card(s).", missing-1)
		}
	} else {
		w.message = fmt.Sprintf("Attempting to generate %d more card(s) for %q...", missing, w.topic)
	}

	target := w.desiredCount
	return w.newRun(RunRegenerate, func(ctx context.Context, sink ProgressSink) error {
		_, err := w.generator.Generate(ctx, target, src, w.deck, sink)
		return err
	}), nil
}

func (w *Workspace) SetEscalate(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.escalate = enabled
}

// DefaultDeckName suggests a save name: the topic, or today's date.
func (w *Workspace) DefaultDeckName() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.defaultDeckNameLocked()
}

func (w *Workspace) defaultDeckNameLocked() string {
	if w.topic != "" {
		return w.topic
	}
	return "Deck Saved on " + w.now().Format("1/2/2006")
}

func (w *Workspace) SaveDeck(ctx context.Context, name string) (models.SavedDeck, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.SavedDeck{}, w.rejectInput(invalidInput("Deck name cannot be empty."))
	}

	w.mu.Lock()
	if w.busy || w.quiz.Active() {
		w.mu.Unlock()
		return models.SavedDeck{}, ErrBusy
	}
	cards := w.deck.Cards()
	topic := w.topic
	w.mu.Unlock()

	if len(cards) == 0 {
		return models.SavedDeck{}, w.rejectInput(invalidInput("No flashcards to save."))
	}
	if topic == "" {
		topic = untitledDeck
	}

	saved, err := w.decks.Save(ctx, models.SavedDeck{Name: name, Topic: topic, Cards: cards})
	if err != nil {
		w.logger.Error("save deck", zap.String("name", name), zap.Error(err))
		w.setMessage(UserMessage(err))
		return models.SavedDeck{}, err
	}
	w.setMessage(fmt.Sprintf("Deck %q saved successfully!", saved.Name))
	return saved, nil
}

// ListDecks returns saved decks newest first. A corrupt store yields an
// empty list and the corruption error.
func (w *Workspace) ListDecks(ctx context.Context) ([]models.SavedDeck, error) {
	decks, err := w.decks.List(ctx)
	if err != nil {
		w.setMessage(UserMessage(err))
	}
	return decks, err
}

func (w *Workspace) LoadDeck(ctx context.Context, timestamp int64) (models.SavedDeck, error) {
	w.mu.RLock()
	busy := w.busy || w.quiz.Active()
	w.mu.RUnlock()
	if busy {
		return models.SavedDeck{}, ErrBusy
	}

	saved, err := w.decks.Get(ctx, timestamp)
	if err != nil {
		w.setMessage(UserMessage(err))
		return models.SavedDeck{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy || w.quiz.Active() {
		return models.SavedDeck{}, ErrBusy
	}
	w.deck.Replace(saved.Cards)
	w.topic = saved.Topic
	w.desiredCount = len(saved.Cards)
	w.selectedFile = ""
	w.message = fmt.Sprintf("Loaded deck: %q with %d cards.", saved.Name, len(saved.Cards))
	return saved, nil
}

func (w *Workspace) DeleteDeck(ctx context.Context, timestamp int64) error {
	w.mu.RLock()
	busy := w.busy || w.quiz.Active()
	w.mu.RUnlock()
	if busy {
		return ErrBusy
	}

	if err := w.decks.Delete(ctx, timestamp); err != nil {
		w.setMessage(UserMessage(err))
		return err
	}
	w.setMessage("Deck deleted successfully.")
	return nil
}

// StartQuiz selects the quiz cards and returns the Run that prepares their
// options. count <= 0 quizzes the whole deck.
func (w *Workspace) StartQuiz(count int) (*Run, error) {
	w.mu.Lock()
	err := w.acquireLocked()
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// The quiz engine calls back into the workspace, so w.mu must not be held.
	prep, err := w.quiz.Start(count)
	if err != nil {
		w.releaseBusy()
		return nil, err
	}
	return w.newRun(RunQuiz, func(ctx context.Context, sink ProgressSink) error {
		n, err := prep.Run(ctx)
		if err != nil {
			return err
		}
		sink.Report(fmt.Sprintf("Quiz ready with %d questions.", n))
		return nil
	}), nil
}

func (w *Workspace) AnswerQuiz(option int) (bool, error) {
	return w.quiz.Answer(option)
}

func (w *Workspace) NextQuestion() error {
	return w.quiz.Next()
}

func (w *Workspace) RetryQuiz() error {
	return w.quiz.Retry()
}

func (w *Workspace) ExitQuiz() error {
	return w.quiz.Exit()
}

func (w *Workspace) QuizView() QuizView {
	return w.quiz.View()
}

// Snapshot is what the presentation layer renders. Control flags are
// derived from state, never from the message text.
type Snapshot struct {
	Cards           []models.Flashcard `json:"cards"`
	Topic           string             `json:"topic"`
	DesiredCount    int                `json:"desiredCount"`
	Escalate        bool               `json:"escalate"`
	SelectedFile    string             `json:"selectedFile,omitempty"`
	DefaultDeckName string             `json:"defaultDeckName"`
	Message         string             `json:"message"`
	Busy            bool               `json:"busy"`
	QuizActive      bool               `json:"quizActive"`
	QuizVisible     bool               `json:"quizVisible"`
	CanGenerate     bool               `json:"canGenerate"`
	CanSave         bool               `json:"canSave"`
	CanStartQuiz    bool               `json:"canStartQuiz"`
	CanAddManual    bool               `json:"canAddManual"`
	CanViewDecks    bool               `json:"canViewDecks"`
}

func (w *Workspace) Snapshot() Snapshot {
	quizActive := w.quiz.Active()
	cards := w.deck.Cards()

	w.mu.RLock()
	defer w.mu.RUnlock()
	idle := !w.busy && !quizActive
	return Snapshot{
		Cards:           cards,
		Topic:           w.topic,
		DesiredCount:    w.desiredCount,
		Escalate:        w.escalate,
		SelectedFile:    w.selectedFile,
		DefaultDeckName: w.defaultDeckNameLocked(),
		Message:         w.message,
		Busy:            w.busy,
		QuizActive:      quizActive,
		QuizVisible:     w.quizVisible,
		CanGenerate:     idle,
		CanSave:         idle && len(cards) > 0,
		CanStartQuiz:    idle && len(cards) > 0,
		CanAddManual:    idle,
		CanViewDecks:    idle,
	}
}

// Busy reports whether a run holds the workspace.
func (w *Workspace) Busy() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.busy
}

// QuizHost

func (w *Workspace) Cards() []models.Flashcard {
	return w.deck.Cards()
}

func (w *Workspace) Topic() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.topic
}

func (w *Workspace) Notify(message string) {
	w.setMessage(message)
}

// Render is a no-op; clients poll Snapshot for the deck.
func (w *Workspace) Render([]models.Flashcard) {}

func (w *Workspace) SetQuizVisible(visible bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.quizVisible = visible
}

// ProgressSink

func (w *Workspace) Report(message string) {
	w.setMessage(message)
}

func (w *Workspace) ControlsChanged() {}

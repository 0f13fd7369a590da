package services

import (
	"sync"

	"flashdeck/internal/models"
)

// ProgressSink receives fire-and-forget notifications from the engines.
type ProgressSink interface {
	Report(message string)
	Render(cards []models.Flashcard)
	ControlsChanged()
}

type nopSink struct{}

func (nopSink) Report(string) {}
func (nopSink) Render([]models.Flashcard) {}
func (nopSink) ControlsChanged() {}

// NopSink discards every notification.
var NopSink ProgressSink = nopSink{}

// RecordingSink keeps every message and the last rendered card count. It is
// what the API attaches to a job.
type RecordingSink struct {
	mu       sync.Mutex
	messages []string
	rendered int
	renders  int
	controls int
	onReport func(string)
}

func NewRecordingSink(onReport func(string)) *RecordingSink {
	return &RecordingSink{onReport: onReport}
}

func (s *RecordingSink) Report(message string) {
	s.mu.Lock()
	s.messages = append(s.messages, message)
	fn := s.onReport
	s.mu.Unlock()
	if fn != nil {
		fn(message)
	}
}

func (s *RecordingSink) Render(cards []models.Flashcard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendered = len(cards)
	s.renders++
}

func (s *RecordingSink) ControlsChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls++
}

func (s *RecordingSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// Last returns the most recent message or "".
func (s *RecordingSink) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

func (s *RecordingSink) Renders() (count, lastSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders, s.rendered
}

func (s *RecordingSink) ControlChanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controls
}

// multiSink fans a notification out to several sinks.
type multiSink []ProgressSink

func (m multiSink) Report(message string) {
	for _, s := range m {
		s.Report(message)
	}
}

func (m multiSink) Render(cards []models.Flashcard) {
	for _, s := range m {
		s.Render(cards)
	}
}

func (m multiSink) ControlsChanged() {
	for _, s := range m {
		s.ControlsChanged()
	}
}

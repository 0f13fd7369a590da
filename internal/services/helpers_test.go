package services

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/stretchr/testify/mock"
)

// scriptedCompleter returns canned replies in order, then "".
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	errs    map[int]error
	prompts []string
	opts    []CompletionOptions
}

func newScripted(replies ...string) *scriptedCompleter {
	return &scriptedCompleter{replies: replies, errs: map[int]error{}}
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string, opts CompletionOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.opts = append(s.opts, opts)
	if err, ok := s.errs[call]; ok {
		return "", err
	}
	if call < len(s.replies) {
		return s.replies[call], nil
	}
	return "", nil
}

func (s *scriptedCompleter) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// funcCompleter adapts a function to Completer.
type funcCompleter func(ctx context.Context, prompt string, opts CompletionOptions) (string, error)

func (f funcCompleter) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	return f(ctx, prompt, opts)
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	args := m.Called(ctx, prompt, opts)
	return args.String(0), args.Error(1)
}

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 1024))
}

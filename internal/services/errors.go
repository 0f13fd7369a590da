package services

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a user-facing failure.
type ErrorCode string

const (
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeBusy            ErrorCode = "BUSY"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeUnsupportedFile ErrorCode = "UNSUPPORTED_FILE"
	CodeEmptyExtraction ErrorCode = "EMPTY_EXTRACTION"
	CodeStorageFull     ErrorCode = "STORAGE_FULL"
	CodeStorageCorrupt  ErrorCode = "STORAGE_CORRUPT"
	CodeLLMService      ErrorCode = "LLM_SERVICE_ERROR"
	CodeQuizState       ErrorCode = "QUIZ_STATE"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
)

var (
	// ErrInvalidInput marks rejected user input; nothing was mutated.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBusy is returned while another run owns the shared deck state.
	ErrBusy = errors.New("another operation is in progress")
	// ErrDuplicateTerm is returned when a term is already in the deck.
	ErrDuplicateTerm = errors.New("duplicate term")
	// ErrStaleCard is returned when a delete request no longer matches the deck.
	ErrStaleCard = errors.New("card index does not match deck")
	// ErrUnsupportedFileType is returned for anything other than PDF or DOCX.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrEmptyExtraction is returned when a file yields no text.
	ErrEmptyExtraction = errors.New("no text extracted")
	// ErrDeckNotFound is returned when no saved deck has the timestamp.
	ErrDeckNotFound = errors.New("deck not found")
	// ErrStorageFull is returned when the deck blob no longer fits in the store.
	ErrStorageFull = errors.New("deck storage is full")
	// ErrStorageCorrupt is returned when the stored deck blob cannot be decoded.
	ErrStorageCorrupt = errors.New("saved deck data is corrupted")
	// ErrEmptyDeck is returned when a quiz is requested without cards.
	ErrEmptyDeck = errors.New("deck is empty")
	// ErrNoQuestions is returned when quiz preparation produced nothing.
	ErrNoQuestions = errors.New("no quiz questions could be prepared")
	// ErrInvalidQuizState is returned for quiz commands that do not apply to the current state.
	ErrInvalidQuizState = errors.New("command not valid in current quiz state")
)

// Error pairs a sentinel with the message shown to the user.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func invalidInput(format string, args ...any) *Error {
	return newError(CodeInvalidInput, ErrInvalidInput, format, args...)
}

// UserMessage extracts the user-facing text from err.
func UserMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// CodeOf returns the error code carried by err, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, ErrAIUnavailable):
		return CodeLLMService
	case errors.Is(err, ErrInvalidQuizState), errors.Is(err, ErrEmptyDeck), errors.Is(err, ErrNoQuestions):
		return CodeQuizState
	}
	return CodeInternal
}

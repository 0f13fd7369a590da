package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"flashdeck/internal/kv"
	"flashdeck/internal/models"
)

// SavedDecksKey is the single key holding every saved deck as one JSON array.
const SavedDecksKey = "flashcardApp_savedDecks"

// DeckStore persists named deck snapshots. There is no update; changes are
// saved as a new deck.
type DeckStore struct {
	store  kv.Store
	logger *zap.Logger
	now    func() time.Time

	// mu serializes read-modify-write cycles on the blob.
	mu sync.Mutex
}

func NewDeckStore(store kv.Store, logger *zap.Logger, now func() time.Time) *DeckStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &DeckStore{store: store, logger: logger, now: now}
}

// List returns the saved decks, newest first. An unreadable or corrupt blob
// yields an empty list together with ErrStorageCorrupt.
func (s *DeckStore) List(ctx context.Context) ([]models.SavedDeck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	decks, err := s.load(ctx)
	if err != nil {
		return []models.SavedDeck{}, err
	}
	sort.SliceStable(decks, func(i, j int) bool { return decks[i].Timestamp > decks[j].Timestamp })
	return decks, nil
}

// Get finds a deck by its timestamp.
func (s *DeckStore) Get(ctx context.Context, timestamp int64) (models.SavedDeck, error) {
	decks, err := s.List(ctx)
	if err != nil {
		return models.SavedDeck{}, err
	}
	for _, d := range decks {
		if d.Timestamp == timestamp {
			return d, nil
		}
	}
	return models.SavedDeck{}, newError(CodeNotFound, ErrDeckNotFound, "Deck not found.")
}

// Save appends deck. A zero timestamp is set to now, and a timestamp already
// in use is moved forward until it is unique.
func (s *DeckStore) Save(ctx context.Context, deck models.SavedDeck) (models.SavedDeck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	decks, err := s.load(ctx)
	if err != nil {
		if !errors.Is(err, ErrStorageCorrupt) {
			return models.SavedDeck{}, err
		}
		s.logger.Warn("overwriting corrupt saved decks", zap.Error(err))
		decks = nil
	}

	if deck.Timestamp == 0 {
		deck.Timestamp = s.now().UnixMilli()
	}
	used := make(map[int64]bool, len(decks))
	for _, d := range decks {
		used[d.Timestamp] = true
	}
	for used[deck.Timestamp] {
		deck.Timestamp++
	}
	deck.Cards = append([]models.Flashcard(nil), deck.Cards...)

	if err := s.write(ctx, append(decks, deck)); err != nil {
		return models.SavedDeck{}, err
	}
	return deck, nil
}

// Delete removes the deck with timestamp.
func (s *DeckStore) Delete(ctx context.Context, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	decks, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := decks[:0]
	for _, d := range decks {
		if d.Timestamp != timestamp {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(decks) {
		return newError(CodeNotFound, ErrDeckNotFound, "Deck not found for deletion.")
	}
	return s.write(ctx, kept)
}

func (s *DeckStore) load(ctx context.Context) ([]models.SavedDeck, error) {
	raw, ok, err := s.store.Get(ctx, SavedDecksKey)
	if err != nil {
		s.logger.Error("read saved decks", zap.Error(err))
		return nil, newError(CodeStorageCorrupt, ErrStorageCorrupt, "Could not read saved decks. Data might be corrupted.")
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var decks []models.SavedDeck
	if err := json.Unmarshal([]byte(raw), &decks); err != nil {
		s.logger.Error("decode saved decks", zap.Error(err))
		return nil, newError(CodeStorageCorrupt, fmt.Errorf("%w: %v", ErrStorageCorrupt, err), "Could not read saved decks. Data might be corrupted.")
	}
	return decks, nil
}

func (s *DeckStore) write(ctx context.Context, decks []models.SavedDeck) error {
	if decks == nil {
		decks = []models.SavedDeck{}
	}
	raw, err := json.Marshal(decks)
	if err != nil {
		return fmt.Errorf("encode saved decks: %w", err)
	}
	if err := s.store.Set(ctx, SavedDecksKey, string(raw)); err != nil {
		if errors.Is(err, kv.ErrQuotaExceeded) {
			return newError(CodeStorageFull, fmt.Errorf("%w: %v", ErrStorageFull, err), "Could not save deck. Storage might be full or disabled.")
		}
		s.logger.Error("write saved decks", zap.Error(err))
		return newError(CodeInternal, err, "Could not save deck. Storage might be full or disabled.")
	}
	return nil
}

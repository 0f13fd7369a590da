package services

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashdeck/internal/models"
)

// assertTermsMatch checks the term set mirrors the cards exactly.
func assertTermsMatch(t *testing.T, d *Deck) {
	t.Helper()
	var want []string
	for _, c := range d.Cards() {
		want = append(want, models.TermKey(c.Term))
	}
	got := d.Terms()
	sort.Strings(want)
	sort.Strings(got)
	if len(want) == 0 {
		assert.Empty(t, got)
		return
	}
	assert.Equal(t, want, got)
}

func TestTermSet(t *testing.T) {
	s := NewTermSet()
	assert.True(t, s.Add("Photosynthesis"))
	assert.False(t, s.Add("PHOTOSYNTHESIS"))
	assert.True(t, s.Contains("photosynthesis"))
	assert.Equal(t, 1, s.Len())

	s.Remove("photoSynthesis")
	assert.False(t, s.Contains("Photosynthesis"))

	s.Rebuild([]models.Flashcard{{Term: "A", Definition: "a"}, {Term: "b", Definition: "b"}})
	assert.ElementsMatch(t, []string{"a", "b"}, s.Keys())
}

func TestDeckAdd(t *testing.T) {
	d := NewDeck()
	require.NoError(t, d.Add(models.Flashcard{Term: "  Cell ", Definition: " unit of life "}))
	assert.Equal(t, []models.Flashcard{{Term: "Cell", Definition: "unit of life"}}, d.Cards())

	err := d.Add(models.Flashcard{Term: "cell", Definition: "other"})
	assert.ErrorIs(t, err, ErrDuplicateTerm)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))

	err = d.Add(models.Flashcard{Term: "x", Definition: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 1, d.Len())
	assertTermsMatch(t, d)
}

func TestDeckRemoveAt(t *testing.T) {
	d := NewDeck()
	d.Replace([]models.Flashcard{{Term: "A", Definition: "a"}, {Term: "B", Definition: "b"}, {Term: "C", Definition: "c"}})

	_, err := d.RemoveAt(1, "C")
	assert.ErrorIs(t, err, ErrStaleCard)
	_, err = d.RemoveAt(5, "")
	assert.ErrorIs(t, err, ErrStaleCard)

	card, err := d.RemoveAt(1, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", card.Term)
	assert.Equal(t, []models.Flashcard{{Term: "A", Definition: "a"}, {Term: "C", Definition: "c"}}, d.Cards())
	assert.False(t, d.Contains("b"))
	assertTermsMatch(t, d)
}

func TestDeckTryAccept(t *testing.T) {
	d := NewDeck()
	assert.True(t, d.tryAccept(models.Flashcard{Term: "A", Definition: "a"}, 2))
	assert.False(t, d.tryAccept(models.Flashcard{Term: "a", Definition: "dup"}, 2))
	assert.True(t, d.tryAccept(models.Flashcard{Term: "B", Definition: "b"}, 2))
	assert.False(t, d.tryAccept(models.Flashcard{Term: "C", Definition: "c"}, 2), "target reached")
	assertTermsMatch(t, d)
}

func TestDeckTermsStayInLockstep(t *testing.T) {
	d := NewDeck()
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		switch rng.IntN(4) {
		case 0, 1:
			term := string(rune('a' + rng.IntN(10)))
			if rng.IntN(2) == 0 {
				term = string(rune('A' + rng.IntN(10)))
			}
			_ = d.Add(models.Flashcard{Term: term, Definition: "d"})
		case 2:
			if n := d.Len(); n > 0 {
				idx := rng.IntN(n)
				_, err := d.RemoveAt(idx, d.Cards()[idx].Term)
				require.NoError(t, err)
			}
		case 3:
			d.tryAccept(models.Flashcard{Term: string(rune('a' + rng.IntN(10))), Definition: "g"}, 8)
		}
		assertTermsMatch(t, d)
	}
	d.Reset()
	assert.Zero(t, d.Len())
	assertTermsMatch(t, d)
}

func TestDeckSampleTerms(t *testing.T) {
	d := NewDeck()
	var cards []models.Flashcard
	for i := 0; i < 50; i++ {
		cards = append(cards, models.Flashcard{Term: string(rune('A'+i%26)) + string(rune('a'+i/26)), Definition: "d"})
	}
	d.Replace(cards)

	rng := rand.New(rand.NewPCG(1, 2))
	sample := d.SampleTerms(rng, 30)
	assert.Len(t, sample, 30)
	seen := map[string]bool{}
	for _, s := range sample {
		assert.True(t, d.Contains(s))
		assert.False(t, seen[s])
		seen[s] = true
	}

	small := NewDeck()
	small.Replace(cards[:3])
	assert.Len(t, small.SampleTerms(rng, 30), 3)
}

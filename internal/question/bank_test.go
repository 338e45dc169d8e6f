package question_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/question"
)

func TestSample(t *testing.T) {
	pool := question.Default()
	before := question.Clone(pool)

	got, err := question.Sample(rand.New(rand.NewSource(42)), pool, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)

	seen := make(map[string]bool)
	for _, q := range got {
		assert.False(t, seen[q.Text], "question %q drawn twice", q.Text)
		seen[q.Text] = true
		assert.Contains(t, pool, q)
	}

	assert.Equal(t, before, pool, "pool should not be modified")
}

func TestSample_DoesNotAliasPool(t *testing.T) {
	pool := []domain.Question{{Text: "q1", Answers: []string{"a1"}}}

	got, err := question.Sample(rand.New(rand.NewSource(1)), pool, 1)
	require.NoError(t, err)

	got[0].Answers[0] = "mutated"
	assert.Equal(t, "a1", pool[0].Answers[0])
}

func TestSample_Deterministic(t *testing.T) {
	pool := question.Default()

	a, err := question.Sample(rand.New(rand.NewSource(7)), pool, len(pool))
	require.NoError(t, err)
	b, err := question.Sample(rand.New(rand.NewSource(7)), pool, len(pool))
	require.NoError(t, err)

	assert.Equal(t, a, b, "same seed should give the same order")
	assert.ElementsMatch(t, pool, a, "sampling the whole pool is a permutation")
}

func TestSample_Errors(t *testing.T) {
	pool := question.Default()

	_, err := question.Sample(rand.New(rand.NewSource(1)), pool, len(pool)+1)
	require.ErrorIs(t, err, question.ErrInsufficientQuestions)

	_, err = question.Sample(rand.New(rand.NewSource(1)), pool, -1)
	require.Error(t, err)

	got, err := question.Sample(rand.New(rand.NewSource(1)), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "questions.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
questions:
  - text: Where do the orcs originate from?
    answers: [Draenor]
  - text: Who was Medivh's apprentice?
    answers: [Khadgar]
`), 0o600))

	qs, err := question.LoadFile(valid)
	require.NoError(t, err)
	assert.Equal(t, []domain.Question{
		{Text: "Where do the orcs originate from?", Answers: []string{"Draenor"}},
		{Text: "Who was Medivh's apprentice?", Answers: []string{"Khadgar"}},
	}, qs)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte(`
questions:
  - text: No answers here
`), 0o600))

	_, err = question.LoadFile(invalid)
	require.Error(t, err)
}

package question

import (
	"fmt"
	"math/rand"

	"github.com/spf13/viper"

	"github.com/victornm/chotrivia/internal/domain"
	"github.com/victornm/chotrivia/internal/errors"
)

// ErrInsufficientQuestions is returned when more questions are requested than the pool holds.
var ErrInsufficientQuestions = errors.New(errors.CodeInvalidArgument,
	errors.WithMessagef("question: not enough questions in pool"))

// Sample draws count distinct questions from pool in random order. The pool is never
// modified; the returned questions are deep copies.
func Sample(rng *rand.Rand, pool []domain.Question, count int) ([]domain.Question, error) {
	if count < 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question: negative sample size %d", count))
	}

	if count > len(pool) {
		return nil, fmt.Errorf("sample %d of %d: %w", count, len(pool), ErrInsufficientQuestions)
	}

	cloned := Clone(pool)
	rng.Shuffle(len(cloned), func(i, j int) {
		cloned[i], cloned[j] = cloned[j], cloned[i]
	})

	return cloned[:count], nil
}

// Clone deep copies a list of questions.
func Clone(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		out[i] = domain.Question{
			Text:    q.Text,
			Answers: append([]string(nil), q.Answers...),
		}
	}

	return out
}

// LoadFile reads a question pool from a YAML, JSON or TOML file with a top level
// "questions" list.
func LoadFile(file string) ([]domain.Question, error) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read questions from file %s: %v", file, err)
	}

	var f struct {
		Questions []domain.Question `mapstructure:"questions"`
	}
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %v", err)
	}

	for i, q := range f.Questions {
		if q.Text == "" || len(q.Answers) == 0 {
			return nil, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("question %d in %s needs a text and at least one answer", i, file))
		}
	}

	return f.Questions, nil
}

// Package grading scores quiz submissions. It is completely stateless:
// persistence of passing results belongs to the quiz service, and failing
// attempts are never recorded anywhere.
package grading

import (
	"errors"

	"github.com/courseloop/courseloop-backend/internal/cms"
)

// ErrNoQuestions marks a quiz with zero questions. That is malformed
// content, not a passing score, and must be rejected before any division
// happens.
var ErrNoQuestions = errors.New("grading: quiz has no questions")

// NoCorrectAnswer is the sentinel correct-index for a question whose CMS
// content declares no correct answer. No submitted index can ever match
// it, so such questions are always scored wrong rather than silently
// inflating scores. That is a content-quality problem worth fixing
// upstream, but the grader tolerates it.
const NoCorrectAnswer = -1

type Result struct {
	Score   int  `json:"score"`
	Passed  bool `json:"passed"`
	Correct int  `json:"correct"`
	Total   int  `json:"total"`
}

// CorrectIndices extracts the per-question correct answer index from CMS
// quiz content, by question position. A question with no answer flagged
// correct yields NoCorrectAnswer.
func CorrectIndices(quiz *cms.Quiz) []int {
	if quiz == nil {
		return nil
	}
	out := make([]int, len(quiz.Questions))
	for qi, q := range quiz.Questions {
		out[qi] = NoCorrectAnswer
		for ai, a := range q.Answers {
			if a.IsCorrect {
				out[qi] = ai
				break
			}
		}
	}
	return out
}

// Grade compares submitted answer indices against the correct indices,
// position by position. A missing or out-of-range submission is wrong.
// The score is the ceiling of the match percentage, so a single correct
// answer out of three scores 34, and passing means score >= the quiz's
// threshold.
func Grade(correct []int, submitted []int, passingScorePercent int) (Result, error) {
	total := len(correct)
	if total == 0 {
		return Result{}, ErrNoQuestions
	}

	matches := 0
	for i, want := range correct {
		if want == NoCorrectAnswer {
			continue
		}
		if i < len(submitted) && submitted[i] == want {
			matches++
		}
	}

	score := (matches*100 + total - 1) / total
	return Result{
		Score:   score,
		Passed:  score >= passingScorePercent,
		Correct: matches,
		Total:   total,
	}, nil
}

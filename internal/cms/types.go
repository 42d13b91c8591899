package cms

import (
	"github.com/google/uuid"
)

// CourseLayout is the CMS's read-only view of a course: ordered sections,
// each holding ordered lessons and at most one trailing quiz.
type CourseLayout struct {
	ID       uuid.UUID `json:"id"`
	Slug     string    `json:"slug"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

type Section struct {
	ID      uuid.UUID    `json:"id"`
	Title   string       `json:"title"`
	Lessons []Lesson     `json:"lessons"`
	Quiz    *QuizSummary `json:"quiz,omitempty"`
}

type Lesson struct {
	ID       uuid.UUID `json:"id"`
	Slug     string    `json:"slug"`
	Title    string    `json:"title"`
	HasVideo bool      `json:"has_video"`
	// The CMS sends null, 0 or a positive number here; null and 0 both
	// mean untimed and are normalized through Timing().
	RequiredDurationInSeconds int            `json:"required_duration_in_seconds"`
	Blocks                    []ContentBlock `json:"blocks,omitempty"`
}

// Timing returns the lesson's normalized timing variant so callers never
// have to re-check nil/zero conflation themselves.
func (l Lesson) Timing() Timing {
	return TimingFromSeconds(l.RequiredDurationInSeconds)
}

// QuizSummary is the layout-level view of a section quiz; correct answers
// are only available through GetQuizWithAnswers.
type QuizSummary struct {
	ID                  uuid.UUID `json:"id"`
	Title               string    `json:"title"`
	QuestionCount       int       `json:"question_count"`
	PassingScorePercent int       `json:"passing_score_percent"`
}

type Quiz struct {
	ID                  uuid.UUID      `json:"id"`
	Title               string         `json:"title"`
	PassingScorePercent int            `json:"passing_score_percent"`
	Questions           []QuizQuestion `json:"questions"`
}

type QuizQuestion struct {
	QuestionText string       `json:"question_text"`
	Answers      []QuizAnswer `json:"answers"`
}

type QuizAnswer struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Timing is the single normalized form of "how long must this lesson be
// watched". The CMS's null/undefined/0 all collapse into the untimed case
// at decode time, so downstream code checks one thing only.
type Timing struct {
	timed   bool
	seconds int
}

func TimingFromSeconds(secs int) Timing {
	if secs <= 0 {
		return Timing{}
	}
	return Timing{timed: true, seconds: secs}
}

func (t Timing) Timed() bool { return t.timed }

// Seconds returns the required duration, 0 for untimed lessons.
func (t Timing) Seconds() int {
	if !t.timed {
		return 0
	}
	return t.seconds
}

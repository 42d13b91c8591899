package progression

import (
	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/cms"
)

// QuizState is the progress-store snapshot for one quiz. Rows only exist
// for passed quizzes, but the evaluator does not rely on that: it checks
// IsCompleted explicitly.
type QuizState struct {
	Score       int
	IsCompleted bool
}

const (
	UpNextNone   = "none"
	UpNextLesson = "lesson"
	UpNextQuiz   = "quiz"
)

type UpNext struct {
	Kind        string    `json:"kind"`
	LessonIndex int       `json:"lesson_index,omitempty"`
	QuizID      uuid.UUID `json:"quiz_id,omitempty"`
}

// ProgressBar carries the dual-mode progress values. When any lesson in
// the course is timed, Value/Total are summed seconds; for a fully
// untimed course they degrade to a unitless items-done count over lessons
// plus quizzes, because a duration sum would be meaningless there.
type ProgressBar struct {
	Timed bool `json:"timed"`
	Value int  `json:"value"`
	Total int  `json:"total"`
}

type Evaluation struct {
	NextLessonIndex          int                `json:"next_lesson_index"`
	LastCompletedLessonIndex int                `json:"last_completed_lesson_index"`
	LessonLocked             []bool             `json:"lesson_locked"`
	QuizLocked               map[uuid.UUID]bool `json:"quiz_locked"`
	ContentComplete          bool               `json:"content_complete"`
	UpNext                   UpNext             `json:"up_next"`
	Progress                 ProgressBar        `json:"progress"`
}

// Evaluate computes lock states, the up-next pointer, content completion
// and the progress bar for one learner. hasAccess is the enrollment's
// access flag; without it everything is locked.
//
// A lesson at position i is locked when ANY of:
//   - the user lacks course access
//   - i > 0 and the immediately preceding lesson is not completed
//   - the quiz of the section before the lesson's own section exists and
//     has not been passed
//   - the course content is not complete and i is more than one position
//     past the last completed lesson
//
// A section's quiz is locked when the user lacks access or any lesson of
// that same section is incomplete.
func Evaluate(layout *cms.CourseLayout, lessons []LessonInOrder, quizzes map[uuid.UUID]QuizState, hasAccess bool) Evaluation {
	eval := Evaluation{
		NextLessonIndex: -1,
		QuizLocked:      map[uuid.UUID]bool{},
	}
	if layout == nil {
		return eval
	}

	for i := range lessons {
		if !lessons[i].IsCompleted {
			eval.NextLessonIndex = i
			break
		}
	}
	// Defaults to the first lesson so a fresh enrollment always has a
	// visible start point, and stays there when everything is done.
	eval.LastCompletedLessonIndex = 0
	if eval.NextLessonIndex > 0 {
		eval.LastCompletedLessonIndex = eval.NextLessonIndex - 1
	}

	sectionPos := make(map[uuid.UUID]int, len(layout.Sections))
	for i, s := range layout.Sections {
		sectionPos[s.ID] = i
	}

	eval.ContentComplete = contentComplete(layout, lessons, quizzes)

	eval.LessonLocked = make([]bool, len(lessons))
	for i := range lessons {
		eval.LessonLocked[i] = lessonLocked(layout, lessons, quizzes, sectionPos, i, eval, hasAccess)
	}

	for _, section := range layout.Sections {
		if section.Quiz == nil {
			continue
		}
		eval.QuizLocked[section.Quiz.ID] = quizLocked(section, lessons, hasAccess)
	}

	eval.UpNext = upNext(layout, lessons, quizzes, sectionPos, eval)
	eval.Progress = progressBar(layout, lessons, quizzes)
	return eval
}

func lessonLocked(layout *cms.CourseLayout, lessons []LessonInOrder, quizzes map[uuid.UUID]QuizState, sectionPos map[uuid.UUID]int, i int, eval Evaluation, hasAccess bool) bool {
	if !hasAccess {
		return true
	}
	if i > 0 && !lessons[i-1].IsCompleted {
		return true
	}
	if pos, ok := sectionPos[lessons[i].SectionID]; ok && pos > 0 {
		prev := layout.Sections[pos-1]
		if prev.Quiz != nil && !quizzes[prev.Quiz.ID].IsCompleted {
			return true
		}
	}
	if !eval.ContentComplete && i > eval.LastCompletedLessonIndex+1 {
		return true
	}
	return false
}

func quizLocked(section cms.Section, lessons []LessonInOrder, hasAccess bool) bool {
	if !hasAccess {
		return true
	}
	for i := range lessons {
		if lessons[i].SectionID == section.ID && !lessons[i].IsCompleted {
			return true
		}
	}
	return false
}

func contentComplete(layout *cms.CourseLayout, lessons []LessonInOrder, quizzes map[uuid.UUID]QuizState) bool {
	for i := range lessons {
		if !lessons[i].IsCompleted {
			return false
		}
	}
	for _, section := range layout.Sections {
		if section.Quiz != nil && !quizzes[section.Quiz.ID].IsCompleted {
			return false
		}
	}
	return true
}

// upNext picks the learner's next step. Once at least one lesson is done,
// a pending quiz in the last-completed lesson's section takes priority
// over the next lesson; with every lesson done any remaining quiz is next;
// a fresh enrollment points at the first lesson.
func upNext(layout *cms.CourseLayout, lessons []LessonInOrder, quizzes map[uuid.UUID]QuizState, sectionPos map[uuid.UUID]int, eval Evaluation) UpNext {
	if len(lessons) == 0 {
		return UpNext{Kind: UpNextNone}
	}

	if eval.NextLessonIndex == -1 {
		for _, section := range layout.Sections {
			if section.Quiz != nil && !quizzes[section.Quiz.ID].IsCompleted {
				return UpNext{Kind: UpNextQuiz, QuizID: section.Quiz.ID}
			}
		}
		return UpNext{Kind: UpNextNone}
	}

	if eval.NextLessonIndex > 0 {
		lastSection := lessons[eval.NextLessonIndex-1].SectionID
		if pos, ok := sectionPos[lastSection]; ok {
			section := layout.Sections[pos]
			if section.Quiz != nil && !quizzes[section.Quiz.ID].IsCompleted {
				return UpNext{Kind: UpNextQuiz, QuizID: section.Quiz.ID}
			}
		}
	}

	return UpNext{Kind: UpNextLesson, LessonIndex: eval.NextLessonIndex}
}

func progressBar(layout *cms.CourseLayout, lessons []LessonInOrder, quizzes map[uuid.UUID]QuizState) ProgressBar {
	anyTimed := false
	for i := range lessons {
		if lessons[i].Timing.Timed() {
			anyTimed = true
			break
		}
	}

	if anyTimed {
		bar := ProgressBar{Timed: true}
		for i := range lessons {
			bar.Value += lessons[i].ProgressDuration
			bar.Total += lessons[i].Timing.Seconds()
		}
		return bar
	}

	bar := ProgressBar{}
	for i := range lessons {
		bar.Total++
		if lessons[i].IsCompleted {
			bar.Value++
		}
	}
	for _, section := range layout.Sections {
		if section.Quiz == nil {
			continue
		}
		bar.Total++
		if quizzes[section.Quiz.ID].IsCompleted {
			bar.Value++
		}
	}
	return bar
}

// Package progression derives everything the UI needs to know about a
// learner's position in a course: the flattened lesson order, lock states,
// the "up next" pointer and the progress bar. Every function here is a
// pure derivation over the CMS layout and a progress snapshot; nothing is
// persisted or cached, and the whole thing is recomputed on each request.
package progression

import (
	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/cms"
)

// LessonInOrder is one lesson in the course-wide flattened sequence,
// annotated with the learner's progress. It is derived on every read and
// never stored.
type LessonInOrder struct {
	ID               uuid.UUID  `json:"id"`
	Slug             string     `json:"slug"`
	Title            string     `json:"title"`
	SectionID        uuid.UUID  `json:"section_id"`
	SectionTitle     string     `json:"section_title"`
	HasVideo         bool       `json:"has_video"`
	Timing           cms.Timing `json:"-"`
	IsTimed          bool       `json:"is_timed"`
	RequiredDuration int        `json:"required_duration_in_seconds"`
	IsCompleted      bool       `json:"is_completed"`
	ProgressDuration int        `json:"progress_duration"`
}

// LessonState is the progress-store snapshot for a single lesson.
type LessonState struct {
	DurationInSeconds int
	IsCompleted       bool
}

// BuildLessonsInOrder flattens the course hierarchy into the canonical
// ordered lesson sequence: sections in declared order, lessons within each
// section in declared order. Quizzes are not part of this list; they are
// addressed per section by the evaluator. A lesson with no progress row is
// simply not completed.
func BuildLessonsInOrder(layout *cms.CourseLayout, progress map[uuid.UUID]LessonState) []LessonInOrder {
	if layout == nil {
		return nil
	}

	out := make([]LessonInOrder, 0, totalLessons(layout))
	for _, section := range layout.Sections {
		for _, lesson := range section.Lessons {
			timing := lesson.Timing()
			row := LessonInOrder{
				ID:               lesson.ID,
				Slug:             lesson.Slug,
				Title:            lesson.Title,
				SectionID:        section.ID,
				SectionTitle:     section.Title,
				HasVideo:         lesson.HasVideo,
				Timing:           timing,
				IsTimed:          timing.Timed(),
				RequiredDuration: timing.Seconds(),
			}
			if state, ok := progress[lesson.ID]; ok {
				row.IsCompleted = state.IsCompleted
				row.ProgressDuration = state.DurationInSeconds
			}
			out = append(out, row)
		}
	}
	return out
}

func totalLessons(layout *cms.CourseLayout) int {
	n := 0
	for _, s := range layout.Sections {
		n += len(s.Lessons)
	}
	return n
}

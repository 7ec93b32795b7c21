package scheduler

import (
	"github.com/noah-isme/timetable-api/internal/models"
)

// repairSweeps bounds the top-up passes per class and level.
const repairSweeps = 3

// scheduleLectures places lectures in phases so every subject reaches k
// lectures before any reaches k+1, then tops up shortfalls once per level.
func scheduleLectures(s *state, target int, repairLevels []Level) {
	for _, class := range s.cat.classes {
		subjects := shuffled(s.rng, s.cat.lectureSubjects(class))
		for k := 1; k <= target; k++ {
			for _, subject := range subjects {
				if s.lectures(class.ID, subject.ID) >= k {
					continue
				}
				if placeLecture(s, class, subject, target, LevelStrict, true) {
					continue
				}
				placeLecture(s, class, subject, target, LevelStrict, false)
			}
		}
	}
	for _, level := range repairLevels {
		repairLectures(s, target, level)
	}
}

// repairLectures retries every mandatory subject below target.
func repairLectures(s *state, target int, level Level) {
	for _, class := range s.cat.classes {
		for sweep := 0; sweep < repairSweeps; sweep++ {
			short := false
			for _, subject := range s.cat.lectureSubjects(class) {
				if subject.IsOptional() {
					continue
				}
				for s.lectures(class.ID, subject.ID) < target {
					if !placeLecture(s, class, subject, target, level, false) {
						short = true
						break
					}
				}
			}
			if !short {
				break
			}
		}
	}
}

// placeLecture books one lecture of subject for class. With spread set only
// days without a lecture of the subject are tried.
func placeLecture(s *state, class models.ClassGroup, subject *models.Subject, target int, level Level, spread bool) bool {
	if s.lectures(class.ID, subject.ID) >= target {
		return false
	}
	for _, day := range shuffled(s.rng, Days) {
		if spread && s.subjectTaughtOn(class.ID, subject.ID, day) {
			continue
		}
		for _, slot := range shuffled(s.rng, teachingSlots()) {
			if s.classBooked(class.ID, day, slot, models.WholeClass) {
				continue
			}
			for _, faculty := range shuffled(s.rng, s.cat.qualified[subject.ID]) {
				if faculty.IsHOD() && IsFirstSlot(slot) {
					continue
				}
				if !s.facultyAvailable(faculty, day, slot, level) {
					continue
				}
				if s.facultyBooked(faculty.ID, day, slot) {
					continue
				}
				s.add(models.ScheduleEntry{
					Day:        day,
					Interval:   slot,
					SubjectID:  subject.ID,
					FacultyID:  faculty.ID,
					ResourceID: s.pickResource(models.ResourceKindClassroom, day, slot),
					ClassID:    class.ID,
					Batch:      models.WholeClass,
				})
				return true
			}
		}
	}
	return false
}

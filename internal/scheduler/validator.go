package scheduler

import (
	"fmt"

	"github.com/noah-isme/timetable-api/internal/models"
)

// ViolationKind classifies a broken scheduling rule.
type ViolationKind string

const (
	ViolationLectureCount        ViolationKind = "LECTURE_COUNT"
	ViolationHODFirstSlot        ViolationKind = "HOD_FIRST_SLOT"
	ViolationFacultyOverload     ViolationKind = "FACULTY_OVERLOAD"
	ViolationLabAttendance       ViolationKind = "LAB_ATTENDANCE"
	ViolationFacultyDoubleBooked ViolationKind = "FACULTY_DOUBLE_BOOKED"
	ViolationAttemptFailed       ViolationKind = "ATTEMPT_FAILED"
)

// Violation describes one broken rule in a candidate timetable.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	ClassID   string        `json:"class_id,omitempty"`
	SubjectID string        `json:"subject_id,omitempty"`
	FacultyID string        `json:"faculty_id,omitempty"`
	Batch     string        `json:"batch,omitempty"`
	Day       models.Day    `json:"day,omitempty"`
	Message   string        `json:"message"`
}

func (v Violation) String() string {
	return v.Message
}

// Messages flattens violations into their human-readable descriptions.
func Messages(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Message)
	}
	return out
}

// Validate recomputes every counter from entries and reports each broken
// rule. Output order is deterministic for a given entry order. It never fails.
func Validate(in Input, entries []models.ScheduleEntry, lecturesPerSubject int) []Violation {
	if lecturesPerSubject <= 0 {
		lecturesPerSubject = DefaultLecturesPerSubject
	}
	cat := newCatalog(in)

	lectures := make(map[pairKey]int)
	labs := make(map[labKey]int)
	for _, entry := range entries {
		if entry.IsLab() {
			labs[labKey{classID: entry.ClassID, subjectID: entry.SubjectID, batch: entry.Batch}]++
			continue
		}
		lectures[pairKey{classID: entry.ClassID, subjectID: entry.SubjectID}]++
	}

	var violations []Violation
	for _, class := range cat.classes {
		for _, subject := range cat.curriculum(class) {
			if subject.IsOptional() {
				continue
			}
			count := lectures[pairKey{classID: class.ID, subjectID: subject.ID}]
			if count == lecturesPerSubject {
				continue
			}
			violations = append(violations, Violation{
				Kind:      ViolationLectureCount,
				ClassID:   class.ID,
				SubjectID: subject.ID,
				Message: fmt.Sprintf("class %s has %d lectures of subject %s (%s), expected %d",
					class.ID, count, subject.ID, subject.Name, lecturesPerSubject),
			})
		}
	}

	for _, entry := range entries {
		faculty, ok := cat.faculty[entry.FacultyID]
		if !ok || !faculty.IsHOD() || !IsFirstSlot(entry.Interval) {
			continue
		}
		violations = append(violations, Violation{
			Kind:      ViolationHODFirstSlot,
			ClassID:   entry.ClassID,
			SubjectID: entry.SubjectID,
			FacultyID: faculty.ID,
			Day:       entry.Day,
			Message: fmt.Sprintf("head of department %s teaches %s to class %s in the first slot on %s",
				faculty.ID, entry.SubjectID, entry.ClassID, entry.Day),
		})
	}

	perDay := make(map[dayKey]int)
	var order []dayKey
	for _, entry := range entries {
		if entry.IsLab() {
			continue
		}
		key := dayKey{day: entry.Day, id: entry.FacultyID}
		if perDay[key] == 0 {
			order = append(order, key)
		}
		perDay[key]++
	}
	for _, key := range order {
		if perDay[key] <= 1 {
			continue
		}
		violations = append(violations, Violation{
			Kind:      ViolationFacultyOverload,
			FacultyID: key.id,
			Day:       key.day,
			Message:   fmt.Sprintf("faculty %s has %d lectures on %s", key.id, perDay[key], key.day),
		})
	}

	for _, class := range cat.classes {
		for _, subject := range cat.labSubjects(class) {
			for _, label := range class.BatchLabels() {
				batch := models.LabBatch(label)
				count := labs[labKey{classID: class.ID, subjectID: subject.ID, batch: batch}]
				if count == 1 {
					continue
				}
				violations = append(violations, Violation{
					Kind:      ViolationLabAttendance,
					ClassID:   class.ID,
					SubjectID: subject.ID,
					Batch:     label,
					Message: fmt.Sprintf("batch %s of class %s has %d lab sessions of subject %s (%s), expected 1",
						label, class.ID, count, subject.ID, subject.Name),
				})
			}
		}
	}

	return append(violations, doubleBookings(entries)...)
}

func doubleBookings(entries []models.ScheduleEntry) []Violation {
	byFaculty := make(map[dayKey][]int)
	var order []dayKey
	for i, entry := range entries {
		key := dayKey{day: entry.Day, id: entry.FacultyID}
		if _, ok := byFaculty[key]; !ok {
			order = append(order, key)
		}
		byFaculty[key] = append(byFaculty[key], i)
	}

	var violations []Violation
	for _, key := range order {
		indexes := byFaculty[key]
		for a := 0; a < len(indexes); a++ {
			for b := a + 1; b < len(indexes); b++ {
				first, second := entries[indexes[a]], entries[indexes[b]]
				if !first.Interval.Overlaps(second.Interval) {
					continue
				}
				violations = append(violations, Violation{
					Kind:      ViolationFacultyDoubleBooked,
					FacultyID: key.id,
					Day:       key.day,
					Message: fmt.Sprintf("faculty %s is double booked on %s at %s and %s",
						key.id, key.day, first.Interval, second.Interval),
				})
			}
		}
	}
	return violations
}

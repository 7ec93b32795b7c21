package scheduler

import (
	"github.com/noah-isme/timetable-api/internal/models"
)

// maxPlanningRounds bounds the lab planning loop for one class.
const maxPlanningRounds = 20

type labAssignment struct {
	subject *models.Subject
	faculty *models.Faculty
}

// labCell is one (day, lab slot) of a class planning grid.
type labCell struct {
	day      models.Day
	slot     models.TimeInterval
	assigned map[string]labAssignment
}

func (c *labCell) subjectUsed(subjectID string) bool {
	for _, a := range c.assigned {
		if a.subject.ID == subjectID {
			return true
		}
	}
	return false
}

func (c *labCell) facultyUsed(facultyID string) bool {
	for _, a := range c.assigned {
		if a.faculty.ID == facultyID {
			return true
		}
	}
	return false
}

// scheduleLabs plans, books and repairs lab sessions for every class so each
// batch attends each mandatory lab subject once. Repair runs once per level.
func scheduleLabs(s *state, repairLevels []Level) {
	for _, class := range s.cat.classes {
		subjects := s.cat.labSubjects(class)
		if len(subjects) == 0 {
			continue
		}
		batches := class.BatchLabels()
		cells := planLabs(s, class, subjects, batches)
		materializeLabs(s, class, batches, cells)
		for _, level := range repairLevels {
			repairLabs(s, class, subjects, batches, level)
		}
	}
}

// planLabs fills a day x slot x batch grid without booking anything. A cell
// is committed only when enough batches share it.
func planLabs(s *state, class models.ClassGroup, subjects []*models.Subject, batches []string) []*labCell {
	threshold := 2
	if len(batches) < threshold {
		threshold = len(batches)
	}

	grid := make(map[dayKey]*labCell)
	var cells []*labCell
	planned := make(map[labKey]bool)

	needs := func(batch string, subject *models.Subject) bool {
		key := labKey{classID: class.ID, subjectID: subject.ID, batch: models.LabBatch(batch)}
		return !planned[key] && s.labsTaught[key] == 0
	}

	for round := 0; round < maxPlanningRounds; round++ {
		progress := false
		for _, day := range shuffled(s.rng, Days) {
			for _, slot := range LabSlots {
				key := dayKey{day: day, id: slot.String()}
				cell, ok := grid[key]
				if !ok {
					cell = &labCell{day: day, slot: slot, assigned: make(map[string]labAssignment)}
					grid[key] = cell
					cells = append(cells, cell)
				}
				if len(cell.assigned) == len(batches) {
					continue
				}

				tentative := &labCell{day: day, slot: slot, assigned: make(map[string]labAssignment)}
				for b, a := range cell.assigned {
					tentative.assigned[b] = a
				}
				var added []string
				for _, batch := range batches {
					if _, taken := tentative.assigned[batch]; taken {
						continue
					}
					if s.classBooked(class.ID, day, slot, models.LabBatch(batch)) {
						continue
					}
					for _, subject := range shuffled(s.rng, subjects) {
						if !needs(batch, subject) || tentative.subjectUsed(subject.ID) {
							continue
						}
						faculty := pickLabFaculty(s, tentative, subject, LevelStrict)
						if faculty == nil {
							continue
						}
						tentative.assigned[batch] = labAssignment{subject: subject, faculty: faculty}
						added = append(added, batch)
						break
					}
				}
				// Batches committed in earlier rounds count toward the threshold.
				if len(added) == 0 || len(tentative.assigned) < threshold {
					continue
				}
				for _, batch := range added {
					a := tentative.assigned[batch]
					cell.assigned[batch] = a
					planned[labKey{classID: class.ID, subjectID: a.subject.ID, batch: models.LabBatch(batch)}] = true
				}
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	return cells
}

func pickLabFaculty(s *state, cell *labCell, subject *models.Subject, level Level) *models.Faculty {
	for _, faculty := range shuffled(s.rng, s.cat.qualified[subject.ID]) {
		if cell.facultyUsed(faculty.ID) {
			continue
		}
		if faculty.IsHOD() && IsFirstSlot(cell.slot) {
			continue
		}
		if !s.facultyAvailable(faculty, cell.day, cell.slot, level) {
			continue
		}
		if s.facultyBooked(faculty.ID, cell.day, cell.slot) {
			continue
		}
		return faculty
	}
	return nil
}

// materializeLabs books every planned cell through the shared booking checks.
func materializeLabs(s *state, class models.ClassGroup, batches []string, cells []*labCell) {
	for _, cell := range cells {
		for _, batch := range batches {
			a, ok := cell.assigned[batch]
			if !ok {
				continue
			}
			tryBookLab(s, class, a.subject, a.faculty, models.LabBatch(batch), cell.day, cell.slot)
		}
	}
}

// repairLabs linearly scans the week for every (batch, subject) still missing
// and books the first placement that fits. Unplaceable pairs are left for
// the validator.
func repairLabs(s *state, class models.ClassGroup, subjects []*models.Subject, batches []string, level Level) {
	for _, label := range batches {
		batch := models.LabBatch(label)
		for _, subject := range subjects {
			if s.labs(class.ID, subject.ID, batch) > 0 {
				continue
			}
			placeLab(s, class, subject, batch, level)
		}
	}
}

func placeLab(s *state, class models.ClassGroup, subject *models.Subject, batch models.Batch, level Level) bool {
	for _, day := range Days {
		for _, slot := range LabSlots {
			if s.classBooked(class.ID, day, slot, batch) {
				continue
			}
			for _, faculty := range s.cat.qualified[subject.ID] {
				if faculty.IsHOD() && IsFirstSlot(slot) {
					continue
				}
				if !s.facultyAvailable(faculty, day, slot, level) {
					continue
				}
				if tryBookLab(s, class, subject, faculty, batch, day, slot) {
					return true
				}
			}
		}
	}
	return false
}

func tryBookLab(s *state, class models.ClassGroup, subject *models.Subject, faculty *models.Faculty, batch models.Batch, day models.Day, slot models.TimeInterval) bool {
	if s.facultyBooked(faculty.ID, day, slot) || s.classBooked(class.ID, day, slot, batch) {
		return false
	}
	if s.labs(class.ID, subject.ID, batch) > 0 {
		return false
	}
	s.add(models.ScheduleEntry{
		Day:        day,
		Interval:   slot,
		SubjectID:  subject.ID,
		FacultyID:  faculty.ID,
		ResourceID: s.pickResource(models.ResourceKindLab, day, slot),
		ClassID:    class.ID,
		Batch:      batch,
	})
	return true
}

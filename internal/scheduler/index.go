package scheduler

import (
	"github.com/noah-isme/timetable-api/internal/models"
)

// Level controls which soft rules a placement may ignore. Booking conflicts
// and the head-of-department rule hold at every level.
type Level int

const (
	// LevelStrict enforces every rule.
	LevelStrict Level = iota
	// LevelRelaxed ignores the one-lecture-per-day faculty cap.
	LevelRelaxed
	// LevelBestEffort also ignores faculty availability windows.
	LevelBestEffort
)

func (l Level) String() string {
	switch l {
	case LevelStrict:
		return "strict"
	case LevelRelaxed:
		return "relaxed"
	case LevelBestEffort:
		return "best-effort"
	}
	return "unknown"
}

// catalog holds read-only lookups derived from one Input.
type catalog struct {
	classes   []models.ClassGroup
	subjects  map[string]*models.Subject
	faculty   map[string]*models.Faculty
	qualified map[string][]*models.Faculty
	resources []models.Resource
}

func newCatalog(in Input) *catalog {
	c := &catalog{
		classes:   in.Classes,
		subjects:  make(map[string]*models.Subject, len(in.Subjects)),
		faculty:   make(map[string]*models.Faculty, len(in.Faculty)),
		qualified: make(map[string][]*models.Faculty),
		resources: in.Resources,
	}
	for i := range in.Subjects {
		c.subjects[in.Subjects[i].ID] = &in.Subjects[i]
	}
	for i := range in.Faculty {
		f := &in.Faculty[i]
		c.faculty[f.ID] = f
		seen := make(map[string]bool, len(f.SubjectIDs))
		for _, subjectID := range f.SubjectIDs {
			if seen[subjectID] {
				continue
			}
			seen[subjectID] = true
			c.qualified[subjectID] = append(c.qualified[subjectID], f)
		}
	}
	return c
}

// curriculum returns the class subjects in declared order without duplicates
// or unknown ids.
func (c *catalog) curriculum(class models.ClassGroup) []*models.Subject {
	seen := make(map[string]bool, len(class.SubjectIDs))
	out := make([]*models.Subject, 0, len(class.SubjectIDs))
	for _, id := range class.SubjectIDs {
		subject, ok := c.subjects[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, subject)
	}
	return out
}

// labSubjects are the mandatory lab subjects of a class.
func (c *catalog) labSubjects(class models.ClassGroup) []*models.Subject {
	var out []*models.Subject
	for _, subject := range c.curriculum(class) {
		if subject.IsLab && !subject.IsOptional() {
			out = append(out, subject)
		}
	}
	return out
}

// lectureSubjects are every curriculum subject except optional labs.
func (c *catalog) lectureSubjects(class models.ClassGroup) []*models.Subject {
	var out []*models.Subject
	for _, subject := range c.curriculum(class) {
		if subject.IsLab && subject.IsOptional() {
			continue
		}
		out = append(out, subject)
	}
	return out
}

// --- Per-attempt booking state ---

type dayKey struct {
	day models.Day
	id  string
}

type pairKey struct {
	classID   string
	subjectID string
}

type labKey struct {
	classID   string
	subjectID string
	batch     models.Batch
}

// state is the conflict index for one attempt. It is built fresh for every
// attempt and never shared.
type state struct {
	cat     *catalog
	rng     Rand
	entries []models.ScheduleEntry

	byFaculty  map[dayKey][]int
	byClass    map[dayKey][]int
	byResource map[dayKey][]int

	lecturesTaught       map[pairKey]int
	labsTaught           map[labKey]int
	facultyLecturesOnDay map[dayKey]int
}

func newState(cat *catalog, rng Rand) *state {
	return &state{
		cat:                  cat,
		rng:                  rng,
		byFaculty:            make(map[dayKey][]int),
		byClass:              make(map[dayKey][]int),
		byResource:           make(map[dayKey][]int),
		lecturesTaught:       make(map[pairKey]int),
		labsTaught:           make(map[labKey]int),
		facultyLecturesOnDay: make(map[dayKey]int),
	}
}

// facultyAvailable reports whether the faculty may teach at interval. At
// LevelStrict a faculty with a lecture that day is unavailable; below
// LevelBestEffort declared windows must contain the interval.
func (s *state) facultyAvailable(f *models.Faculty, day models.Day, interval models.TimeInterval, level Level) bool {
	if level < LevelRelaxed && s.facultyLecturesOnDay[dayKey{day: day, id: f.ID}] >= 1 {
		return false
	}
	if level >= LevelBestEffort {
		return true
	}
	windows, ok := f.Availability[day]
	if !ok {
		return true
	}
	for _, window := range windows {
		if window.Contains(interval) {
			return true
		}
	}
	return false
}

// facultyBooked reports whether any entry of the faculty on day overlaps interval.
func (s *state) facultyBooked(facultyID string, day models.Day, interval models.TimeInterval) bool {
	for _, i := range s.byFaculty[dayKey{day: day, id: facultyID}] {
		if s.entries[i].Interval.Overlaps(interval) {
			return true
		}
	}
	return false
}

// classBooked reports whether the class (or one batch of it) is busy. A
// whole-class entry blocks every batch; a batch entry blocks only its own
// batch and any whole-class query.
func (s *state) classBooked(classID string, day models.Day, interval models.TimeInterval, batch models.Batch) bool {
	for _, i := range s.byClass[dayKey{day: day, id: classID}] {
		entry := s.entries[i]
		if !entry.Interval.Overlaps(interval) {
			continue
		}
		if batch.IsWholeClass() || entry.Batch.IsWholeClass() || entry.Batch == batch {
			return true
		}
	}
	return false
}

func (s *state) resourceBooked(resourceID string, day models.Day, interval models.TimeInterval) bool {
	for _, i := range s.byResource[dayKey{day: day, id: resourceID}] {
		if s.entries[i].Interval.Overlaps(interval) {
			return true
		}
	}
	return false
}

// subjectTaughtOn reports whether the class already has a lecture of subjectID on day.
func (s *state) subjectTaughtOn(classID, subjectID string, day models.Day) bool {
	for _, i := range s.byClass[dayKey{day: day, id: classID}] {
		entry := s.entries[i]
		if entry.SubjectID == subjectID && !entry.IsLab() {
			return true
		}
	}
	return false
}

func (s *state) lectures(classID, subjectID string) int {
	return s.lecturesTaught[pairKey{classID: classID, subjectID: subjectID}]
}

func (s *state) labs(classID, subjectID string, batch models.Batch) int {
	return s.labsTaught[labKey{classID: classID, subjectID: subjectID, batch: batch}]
}

// pickResource prefers a free room of the wanted kind, then any room of that
// kind, then any room at all. An empty id means no resource exists.
func (s *state) pickResource(kind models.ResourceKind, day models.Day, interval models.TimeInterval) string {
	var free, matching []string
	for _, resource := range s.cat.resources {
		if resource.Kind != kind {
			continue
		}
		matching = append(matching, resource.ID)
		if !s.resourceBooked(resource.ID, day, interval) {
			free = append(free, resource.ID)
		}
	}
	switch {
	case len(free) > 0:
		return free[s.rng.Intn(len(free))]
	case len(matching) > 0:
		return matching[s.rng.Intn(len(matching))]
	case len(s.cat.resources) > 0:
		return s.cat.resources[s.rng.Intn(len(s.cat.resources))].ID
	}
	return ""
}

// add books entry and updates every index and counter.
func (s *state) add(entry models.ScheduleEntry) {
	idx := len(s.entries)
	s.entries = append(s.entries, entry)

	facultyKey := dayKey{day: entry.Day, id: entry.FacultyID}
	s.byFaculty[facultyKey] = append(s.byFaculty[facultyKey], idx)
	classKey := dayKey{day: entry.Day, id: entry.ClassID}
	s.byClass[classKey] = append(s.byClass[classKey], idx)
	if entry.ResourceID != "" {
		resourceKey := dayKey{day: entry.Day, id: entry.ResourceID}
		s.byResource[resourceKey] = append(s.byResource[resourceKey], idx)
	}

	if entry.IsLab() {
		s.labsTaught[labKey{classID: entry.ClassID, subjectID: entry.SubjectID, batch: entry.Batch}]++
		return
	}
	s.lecturesTaught[pairKey{classID: entry.ClassID, subjectID: entry.SubjectID}]++
	s.facultyLecturesOnDay[facultyKey]++
}

package scheduler

import "github.com/noah-isme/timetable-api/internal/models"

// Days is the teaching week in calendar order.
var Days = []models.Day{
	models.Monday,
	models.Tuesday,
	models.Wednesday,
	models.Thursday,
	models.Friday,
}

// LectureSlots lists the daily lecture periods. The fourth period is
// shortened so that it ends when lunch starts.
var LectureSlots = []models.TimeInterval{
	models.MustInterval("09:15", "10:15"),
	models.MustInterval("10:15", "11:15"),
	models.MustInterval("11:15", "12:15"),
	models.MustInterval("12:15", "13:05"),
	models.MustInterval("13:35", "14:35"),
	models.MustInterval("14:35", "15:35"),
}

// LunchBreak is never used for teaching.
var LunchBreak = models.MustInterval("13:05", "13:35")

// LabSlots are the two-hour morning and afternoon lab periods.
var LabSlots = []models.TimeInterval{
	models.MustInterval("09:15", "11:15"),
	models.MustInterval("13:35", "15:35"),
}

// DayStart is when the first lecture and the first lab period begin.
var DayStart = LectureSlots[0].Start

// IsFirstSlot reports whether interval opens the teaching day. Heads of
// department may not teach such an interval.
func IsFirstSlot(interval models.TimeInterval) bool {
	return interval.Start == DayStart || interval.Start == LabSlots[0].Start
}

// teachingSlots returns the lecture periods that do not touch the lunch gap.
func teachingSlots() []models.TimeInterval {
	slots := make([]models.TimeInterval, 0, len(LectureSlots))
	for _, slot := range LectureSlots {
		if slot.Overlaps(LunchBreak) {
			continue
		}
		slots = append(slots, slot)
	}
	return slots
}

func dayIndex(day models.Day) int {
	for i, d := range Days {
		if d == day {
			return i
		}
	}
	return len(Days)
}

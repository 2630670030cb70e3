// Package calendarexport renders an assembled solution as a read-only,
// one-way iCalendar feed: engine to calendar, never the reverse. Export
// never feeds data back into the domain model — the Calendar slot and
// Leave inputs stay the sole source of availability truth.
package calendarexport

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-ical"

	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
)

// ProductID identifies the calendar producer in every exported VCALENDAR.
const ProductID = "-//hybridsched//planner//EN"

// BuildCalendar renders every assignment belonging to resourceID as a
// VEVENT, merging contiguous assigned hours on the same day into a
// single event rather than emitting one VEVENT per hour. model supplies
// the task -> resource mapping the Solution itself does not carry.
func BuildCalendar(model *domain.Model, resourceID int, solution services.Solution) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")

	for _, block := range contiguousBlocks(resourceAssignments(model, resourceID, solution)) {
		cal.Children = append(cal.Children, newEvent(resourceID, block))
	}
	return cal
}

// resourceAssignments filters the solution's by-task assignment groups
// down to the tasks belonging to resourceID.
func resourceAssignments(model *domain.Model, resourceID int, solution services.Solution) []taskAssignment {
	var out []taskAssignment
	for taskID, units := range solution.ByTask() {
		task, ok := model.Task(taskID)
		if !ok || task.ResourceID != resourceID {
			continue
		}
		for _, u := range units {
			out = append(out, taskAssignment{TaskID: taskID, SlotUnit: u})
		}
	}
	return out
}

type taskAssignment struct {
	TaskID int
	domain.SlotUnit
}

// contiguousBlocks merges consecutive hours on the same date for the same
// task into single blocks, so a task worked 9-12 on one day produces one
// VEVENT instead of three.
func contiguousBlocks(assignments []taskAssignment) []eventBlock {
	byTaskDate := make(map[string][]taskAssignment)
	var order []string
	for _, a := range assignments {
		key := fmt.Sprintf("%d|%s", a.TaskID, a.Date.String())
		if _, seen := byTaskDate[key]; !seen {
			order = append(order, key)
		}
		byTaskDate[key] = append(byTaskDate[key], a)
	}

	var blocks []eventBlock
	for _, key := range order {
		group := byTaskDate[key]
		group = sortByHour(group)
		start := 0
		for i := 1; i <= len(group); i++ {
			if i == len(group) || group[i].Hour != group[i-1].Hour+1 {
				blocks = append(blocks, eventBlock{
					TaskID: group[start].TaskID,
					Date: group[start].Date,
					HourFrom: group[start].Hour,
					HourTo: group[i-1].Hour + 1,
				})
				start = i
			}
		}
	}
	return blocks
}

func sortByHour(group []taskAssignment) []taskAssignment {
	out := append([]taskAssignment(nil), group...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Hour < out[j-1].Hour; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

type eventBlock struct {
	TaskID int
	Date domain.DateOnly
	HourFrom int
	HourTo int
}

// ResourceIDs returns the distinct resource IDs present in model, in
// first-seen order, so a caller can export one feed per resource.
func ResourceIDs(model *domain.Model) []int {
	seen := make(map[int]bool)
	var out []int
	for _, t := range model.Tasks() {
		if !seen[t.ResourceID] {
			seen[t.ResourceID] = true
			out = append(out, t.ResourceID)
		}
	}
	return out
}

// WriteDir writes one resource-<id>.ics file per calendar into dir,
// overwriting any file left by a previous planning call. dir must already
// exist.
func WriteDir(dir string, calendars map[int]*ical.Calendar) error {
	for resourceID, cal := range calendars {
		path := filepath.Join(dir, fmt.Sprintf("resource-%d.ics", resourceID))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("scheduling: creating %s: %w", path, err)
		}
		err = ical.NewEncoder(f).Encode(cal)
		closeErr := f.Close()
		if err != nil {
			return fmt.Errorf("scheduling: encoding %s: %w", path, err)
		}
		if closeErr != nil {
			return fmt.Errorf("scheduling: closing %s: %w", path, closeErr)
		}
	}
	return nil
}

func newEvent(resourceID int, block eventBlock) *ical.Component {
	event := ical.NewEvent()
	start := time.Date(block.Date.Time().Year(), block.Date.Time().Month(), block.Date.Time().Day(), block.HourFrom, 0, 0, 0, time.UTC)
	end := time.Date(block.Date.Time().Year(), block.Date.Time().Month(), block.Date.Time().Day(), block.HourTo, 0, 0, 0, time.UTC)

	event.Props.SetText(ical.PropUID, fmt.Sprintf("resource-%d-task-%d-%s@hybridsched", resourceID, block.TaskID, block.Date.String()))
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, end)
	event.Props.SetText(ical.PropSummary, fmt.Sprintf("Task %d", block.TaskID))
	return event.Component
}

package domain

import (
	"fmt"
	"sort"
)

// Model is the domain model & availability index: normalized
// tasks, calendars, and leaves for one planning call, plus the derived
// candidate index C(t) and reverse index R(resource, date, hour). It is
// read-only for the duration of one planning call and rebuilt
// whenever the horizon is extended.
type Model struct {
	StartDate DateOnly
	HorizonDays int

	tasks map[int]Task
	taskOrder []int // insertion order, for deterministic iteration
	calendars map[int][]CalendarSlot
	leaves map[int][]Leave

	candidates map[int][]SlotUnit // C(t)
	reverse map[resourceHourKey][]int // R(resource,date,hour) -> task_ids
	infeasible map[int]bool // tasks with empty C(t)
}

// BuildModel validates raw input rows and constructs the
// candidate index. Tasks with remaining_hours = 0 are dropped
// before the index is built.
func BuildModel(tasks []Task, calendarSlots []CalendarSlot, leaves []Leave, startDate DateOnly, horizonDays int) (*Model, error) {
	var causes []error

	taskByID := make(map[int]Task, len(tasks))
	order := make([]int, 0, len(tasks))
	for _, t := range tasks {
		if t.PriorityScore == 0 {
			t.PriorityScore = DefaultPriorityScore
		}
		causes = append(causes, t.Validate()...)
		if t.IsZeroHours() {
			continue
		}
		if _, dup := taskByID[t.TaskID]; dup {
			causes = append(causes, fmt.Errorf("%w: duplicate task_id=%d", ErrMissingColumn, t.TaskID))
			continue
		}
		taskByID[t.TaskID] = t
		order = append(order, t.TaskID)
	}

	calendarsByTask := make(map[int][]CalendarSlot)
	for _, c := range calendarSlots {
		causes = append(causes, c.Validate()...)
		if _, ok := taskByID[c.TaskID]; !ok {
			continue // references a dropped or unknown task; ignored, not fatal
		}
		calendarsByTask[c.TaskID] = append(calendarsByTask[c.TaskID], c)
	}

	leavesByTask := make(map[int][]Leave)
	for _, l := range leaves {
		causes = append(causes, l.Validate()...)
		if _, ok := taskByID[l.TaskID]; !ok {
			continue
		}
		leavesByTask[l.TaskID] = append(leavesByTask[l.TaskID], l)
	}

	if horizonDays <= 0 {
		causes = append(causes, fmt.Errorf("scheduling: horizon_days must be positive, got %d", horizonDays))
	}

	if err := NewInvalidInputError(causes); err != nil {
		return nil, err
	}

	m := &Model{
		StartDate: startDate,
		HorizonDays: horizonDays,
		tasks: taskByID,
		taskOrder: order,
		calendars: calendarsByTask,
		leaves: leavesByTask,
	}
	m.buildIndex()
	return m, nil
}

// buildIndex implements the algorithm: for each task, iterate date
// from start_date for horizon_days, skip leave-covered dates, and for each
// matching calendar slot emit every hour in [hour_from, hour_to).
func (m *Model) buildIndex() {
	m.candidates = make(map[int][]SlotUnit, len(m.tasks))
	m.reverse = make(map[resourceHourKey][]int)
	m.infeasible = make(map[int]bool)

	for _, taskID := range m.taskOrder {
		task := m.tasks[taskID]
		slots := m.calendars[taskID]
		taskLeaves := m.leaves[taskID]

		seen := make(map[SlotUnit]bool)
		var cands []SlotUnit
		for dayOffset := 0; dayOffset < m.HorizonDays; dayOffset++ {
			date := m.StartDate.AddDays(dayOffset)
			if leaveCovers(taskLeaves, date) {
				continue
			}
			weekday := date.Weekday()
			for _, slot := range slots {
				if slot.DayOfWeek != weekday {
					continue
				}
				for hour := slot.HourFrom; hour < slot.HourTo; hour++ {
					su := SlotUnit{TaskID: taskID, Date: date, Hour: hour}
					if seen[su] {
						continue // dedup overlapping windows
					}
					seen[su] = true
					cands = append(cands, su)
				}
			}
		}
		sort.Slice(cands, func(i, j int) bool { return cands[i].Less(cands[j]) })
		m.candidates[taskID] = cands
		if len(cands) == 0 {
			m.infeasible[taskID] = true
		}
		for _, su := range cands {
			key := newResourceHourKey(task.ResourceID, su.Date, su.Hour)
			m.reverse[key] = append(m.reverse[key], taskID)
		}
	}
}

func leaveCovers(leaves []Leave, date DateOnly) bool {
	for _, l := range leaves {
		if l.Covers(date) {
			return true
		}
	}
	return false
}

// Tasks returns all tasks in the model in stable insertion order.
func (m *Model) Tasks() []Task {
	out := make([]Task, 0, len(m.taskOrder))
	for _, id := range m.taskOrder {
		out = append(out, m.tasks[id])
	}
	return out
}

// Task looks up a task by ID.
func (m *Model) Task(taskID int) (Task, bool) {
	t, ok := m.tasks[taskID]
	return t, ok
}

// Candidates returns C(t): the ordered candidate slot units for a task.
func (m *Model) Candidates(taskID int) []SlotUnit {
	return m.candidates[taskID]
}

// CompetingTasks returns R(resource, date, hour): every task_id competing
// for that resource-hour.
func (m *Model) CompetingTasks(resourceID int, date DateOnly, hour int) []int {
	return m.reverse[newResourceHourKey(resourceID, date, hour)]
}

// StructurallyInfeasible returns the task_ids with an empty candidate list
// at this horizon.
func (m *Model) StructurallyInfeasible() []int {
	out := make([]int, 0, len(m.infeasible))
	for _, id := range m.taskOrder {
		if m.infeasible[id] {
			out = append(out, id)
		}
	}
	return out
}

// IsStructurallyFeasible reports whether task has at least one candidate.
func (m *Model) IsStructurallyFeasible(taskID int) bool {
	return !m.infeasible[taskID]
}

// OverrideRemainingHours derives a new Model from m whose tasks named in
// hours (keyed by task_id) have RemainingHours replaced by the given value;
// tasks not named keep their original RemainingHours. Candidate and reverse
// indexes depend only on calendars/leaves, never on RemainingHours, so they
// are shared by reference from m rather than rebuilt. Used by the hybrid
// orchestrator to solve a CP-SAT reconciliation pass against the exact
// residual hour count the greedy pass still needs, not each task's original
// remaining_hours.
func OverrideRemainingHours(m *Model, hours map[int]int) *Model {
	tasks := make(map[int]Task, len(m.tasks))
	for id, t := range m.tasks {
		if h, ok := hours[id]; ok {
			t.RemainingHours = h
		}
		tasks[id] = t
	}
	return &Model{
		StartDate: m.StartDate,
		HorizonDays: m.HorizonDays,
		tasks: tasks,
		taskOrder: m.taskOrder,
		calendars: m.calendars,
		leaves: m.leaves,
		candidates: m.candidates,
		reverse: m.reverse,
		infeasible: m.infeasible,
	}
}

// FilterCandidates derives a new Model from m whose candidate index and
// reverse index are restricted to slot units for which keep returns true.
// Used by the hybrid orchestrator to exclude resource-hours already
// consumed by a prior greedy pass without mutating the original model,
// which must stay read-only for the duration of one planning call.
func FilterCandidates(m *Model, keep func(SlotUnit) bool) *Model {
	out := &Model{
		StartDate: m.StartDate,
		HorizonDays: m.HorizonDays,
		tasks: m.tasks,
		taskOrder: m.taskOrder,
		calendars: m.calendars,
		leaves: m.leaves,
		candidates: make(map[int][]SlotUnit, len(m.candidates)),
		reverse: make(map[resourceHourKey][]int),
		infeasible: make(map[int]bool, len(m.infeasible)),
	}
	for _, taskID := range m.taskOrder {
		task := m.tasks[taskID]
		var filtered []SlotUnit
		for _, su := range m.candidates[taskID] {
			if keep(su) {
				filtered = append(filtered, su)
			}
		}
		out.candidates[taskID] = filtered
		if len(filtered) == 0 {
			out.infeasible[taskID] = true
		}
		for _, su := range filtered {
			key := newResourceHourKey(task.ResourceID, su.Date, su.Hour)
			out.reverse[key] = append(out.reverse[key], taskID)
		}
	}
	return out
}

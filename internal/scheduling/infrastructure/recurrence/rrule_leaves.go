// Package recurrence expands recurring-absence rules into the concrete
// Leave rows the scheduling domain model expects. It is a pure
// input-adaptation layer: the domain never learns an absence was
// recurring, only the expanded date ranges.
package recurrence

import (
	"fmt"

	"github.com/teambition/rrule-go"

	"github.com/hybridsched/planner/internal/scheduling/domain"
)

// RecurringLeave describes one recurring absence for a task, expressed as
// an RFC 5545 RRULE string ("FREQ=WEEKLY;BYDAY=FR") anchored at DTStart.
// Each occurrence produces a Leave spanning DurationDays starting on the
// occurrence date; DurationDays <= 0 is treated as a single day.
type RecurringLeave struct {
	TaskID       int
	RRule        string
	DTStart      domain.DateOnly
	DurationDays int
}

// Expand generates the concrete Leave rows produced by rl's occurrences
// falling within [windowStart, windowEnd] inclusive. An invalid RRULE
// string is reported as an error rather than silently dropped.
func Expand(rl RecurringLeave, windowStart, windowEnd domain.DateOnly) ([]domain.Leave, error) {
	opt, err := rrule.StrToROption(rl.RRule)
	if err != nil {
		return nil, fmt.Errorf("scheduling: task_id=%d invalid recurrence rule %q: %w", rl.TaskID, rl.RRule, err)
	}
	opt.Dtstart = rl.DTStart.Time()

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("scheduling: task_id=%d invalid recurrence rule %q: %w", rl.TaskID, rl.RRule, err)
	}

	duration := rl.DurationDays
	if duration <= 0 {
		duration = 1
	}

	occurrences := rule.Between(windowStart.Time(), windowEnd.Time(), true)
	leaves := make([]domain.Leave, 0, len(occurrences))
	for _, occ := range occurrences {
		from := domain.NewDateOnly(occ)
		leaves = append(leaves, domain.Leave{
			TaskID:   rl.TaskID,
			DateFrom: from,
			DateTo:   from.AddDays(duration - 1),
		})
	}
	return leaves, nil
}

// ExpandAll expands every recurring leave and concatenates the results,
// stopping at the first invalid rule.
func ExpandAll(rls []RecurringLeave, windowStart, windowEnd domain.DateOnly) ([]domain.Leave, error) {
	var out []domain.Leave
	for _, rl := range rls {
		expanded, err := Expand(rl, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

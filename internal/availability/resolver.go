// Package availability computes bookable slots from a host's recurring
// availability rules, date overrides, and already-scheduled meetings.
//
// Rules are stored as minutes since host-local midnight; expansion uses the
// tz-database offset valid at each instant, so windows straddling a DST
// transition keep their wall-clock boundaries.
package availability

import (
	"time"
	_ "time/tzdata"

	"github.com/meetsync/meetsync/internal/model"
)

// Interval is a half-open [Start, End) span. Start and End are UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Input is everything the resolver needs. It is a pure function of this
// data: resolving twice with the same input yields the same slots.
type Input struct {
	Rules    []model.AvailabilityRule
	Location *time.Location // host timezone
	Duration time.Duration  // event type duration; also the slot step
	Busy     []Interval     // scheduled meetings, UTC
	From     time.Time      // range start, UTC
	To       time.Time      // range end, UTC
	Now      time.Time      // slots starting before Now are excluded
}

// Slots expands the rules over every host-local day touching [From, To),
// subtracts busy intervals, and returns bookable slot intervals in
// chronological order.
func Slots(in Input) []Interval {
	if in.Duration <= 0 || !in.To.After(in.From) || in.Location == nil {
		return nil
	}

	var out []Interval
	for _, win := range Windows(in.Rules, in.Location, in.From, in.To) {
		end := win.End
		if end.After(in.To) {
			end = in.To
		}
		// Always step from the window start so the grid stays anchored to
		// the rule, no matter where the requested range begins. A range
		// starting mid-window must see the same slots booking accepts.
		for t := win.Start; !t.Add(in.Duration).After(end); t = t.Add(in.Duration) {
			if t.Before(in.From) || t.Before(in.Now) {
				continue
			}
			slot := Interval{Start: t, End: t.Add(in.Duration)}
			if overlapsAny(slot, in.Busy) {
				continue
			}
			out = append(out, slot)
		}
	}
	return out
}

// Windows expands rules into concrete UTC availability windows for every
// host-local day touching [from, to). Date overrides replace the weekly
// template for their date; a blocking override removes the day entirely.
func Windows(rules []model.AvailabilityRule, loc *time.Location, from, to time.Time) []Interval {
	weekly := make(map[time.Weekday][]model.AvailabilityRule)
	overrides := make(map[string][]model.AvailabilityRule)
	for _, rule := range rules {
		if rule.IsOverride() {
			key := rule.Date.Format("2006-01-02")
			overrides[key] = append(overrides[key], rule)
			continue
		}
		if rule.Weekday >= 0 && rule.Weekday <= 6 {
			wd := time.Weekday(rule.Weekday)
			weekly[wd] = append(weekly[wd], rule)
		}
	}

	var out []Interval
	localFrom := from.In(loc)
	day := time.Date(localFrom.Year(), localFrom.Month(), localFrom.Day(), 0, 0, 0, 0, loc)
	for day.Before(to) {
		dayRules, blocked := rulesForDay(day, weekly, overrides)
		if !blocked {
			for _, rule := range dayRules {
				win := windowOnDay(day, rule, loc)
				if win.End.After(from) && win.Start.Before(to) {
					out = append(out, win)
				}
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}
	return out
}

func rulesForDay(day time.Time, weekly map[time.Weekday][]model.AvailabilityRule, overrides map[string][]model.AvailabilityRule) ([]model.AvailabilityRule, bool) {
	if dayOverrides, ok := overrides[day.Format("2006-01-02")]; ok {
		for _, rule := range dayOverrides {
			if rule.BlocksDay() {
				return nil, true
			}
		}
		return dayOverrides, false
	}
	return weekly[day.Weekday()], false
}

// windowOnDay anchors a rule's wall-clock minutes on a concrete local day.
// time.Date resolves the UTC offset in effect at that wall-clock instant,
// which is what keeps 09:00 meaning 09:00 on both sides of a DST change.
func windowOnDay(day time.Time, rule model.AvailabilityRule, loc *time.Location) Interval {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, rule.StartMinute, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), 0, rule.EndMinute, 0, 0, loc)
	return Interval{Start: start.UTC(), End: end.UTC()}
}

func overlapsAny(slot Interval, busy []Interval) bool {
	for _, b := range busy {
		if slot.overlaps(b) {
			return true
		}
	}
	return false
}

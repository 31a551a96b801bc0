package availability

import (
	"testing"
	"time"

	"github.com/meetsync/meetsync/internal/model"
)

func weeklyRule(weekday, startMin, endMin int) model.AvailabilityRule {
	return model.AvailabilityRule{Weekday: weekday, StartMinute: startMin, EndMinute: endMin}
}

func overrideRule(date time.Time, startMin, endMin int) model.AvailabilityRule {
	d := date
	return model.AvailabilityRule{Weekday: -1, Date: &d, StartMinute: startMin, EndMinute: endMin}
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%s): %v", name, err)
	}
	return loc
}

func TestSlots_FullWorkday(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	// 2026-02-02 is a Monday.
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, loc).UTC()
	to := time.Date(2026, 2, 3, 0, 0, 0, 0, loc).UTC()

	slots := Slots(Input{
		Rules:    []model.AvailabilityRule{weeklyRule(1, 9*60, 17*60)},
		Location: loc,
		Duration: 30 * time.Minute,
		From:     from,
		To:       to,
		Now:      from.Add(-24 * time.Hour),
	})

	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	first := slots[0].Start.In(loc)
	if first.Hour() != 9 || first.Minute() != 0 {
		t.Fatalf("expected first slot 09:00 local, got %s", first.Format("15:04"))
	}
	last := slots[15].End.In(loc)
	if last.Hour() != 17 || last.Minute() != 0 {
		t.Fatalf("expected last slot to end 17:00 local, got %s", last.Format("15:04"))
	}
}

func TestSlots_SubtractsScheduledMeetings(t *testing.T) {
	loc := time.UTC
	// 2026-02-02 is a Monday.
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	busyStart := time.Date(2026, 2, 2, 9, 30, 0, 0, time.UTC)

	slots := Slots(Input{
		Rules:    []model.AvailabilityRule{weeklyRule(1, 9*60, 11*60)},
		Location: loc,
		Duration: 30 * time.Minute,
		Busy:     []Interval{{Start: busyStart, End: busyStart.Add(30 * time.Minute)}},
		From:     from,
		To:       to,
		Now:      from.Add(-time.Hour),
	})

	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Equal(busyStart) {
			t.Fatalf("booked slot %s should not be offered", s.Start)
		}
	}
}

func TestSlots_SkipsPastSlots(t *testing.T) {
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	now := time.Date(2026, 2, 2, 10, 1, 0, 0, time.UTC)

	slots := Slots(Input{
		Rules:    []model.AvailabilityRule{weeklyRule(1, 9*60, 11*60)},
		Location: time.UTC,
		Duration: 30 * time.Minute,
		From:     from,
		To:       to,
		Now:      now,
	})

	// 09:00, 09:30, 10:00 have started; 10:30 remains.
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Start.Equal(time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected 10:30 slot, got %s", slots[0].Start)
	}
}

func TestSlots_MidWindowRangeKeepsGrid(t *testing.T) {
	// A range starting mid-window must return the same slot starts as a
	// full-day range, minus the ones it cuts off. Booking re-resolves from
	// the window start, so an off-grid slot here would never be bookable.
	rules := []model.AvailabilityRule{weeklyRule(1, 9*60, 17*60)}
	dayStart := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	now := dayStart.Add(-time.Hour)

	full := Slots(Input{
		Rules:    rules,
		Location: time.UTC,
		Duration: 30 * time.Minute,
		From:     dayStart,
		To:       dayEnd,
		Now:      now,
	})
	partial := Slots(Input{
		Rules:    rules,
		Location: time.UTC,
		Duration: 30 * time.Minute,
		From:     time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC),
		To:       dayEnd,
		Now:      now,
	})

	if len(partial) != len(full)-1 {
		t.Fatalf("expected %d slots after 09:15, got %d", len(full)-1, len(partial))
	}
	if !partial[0].Start.Equal(time.Date(2026, 2, 2, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected first slot 09:30, got %s", partial[0].Start)
	}
	onGrid := make(map[time.Time]bool, len(full))
	for _, s := range full {
		onGrid[s.Start] = true
	}
	for _, s := range partial {
		if !onGrid[s.Start] {
			t.Fatalf("slot %s is off the window grid", s.Start)
		}
	}
}

func TestSlots_DSTSpringForward(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	// 2026-03-08: clocks jump 02:00 -> 03:00 EST->EDT.
	saturday := time.Date(2026, 3, 7, 0, 0, 0, 0, loc)
	sunday := time.Date(2026, 3, 8, 0, 0, 0, 0, loc)

	wins := Windows(
		[]model.AvailabilityRule{weeklyRule(6, 9*60, 17*60), weeklyRule(0, 9*60, 17*60)},
		loc,
		saturday.UTC(),
		sunday.AddDate(0, 0, 1).UTC(),
	)
	if len(wins) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(wins))
	}

	for i, win := range wins {
		localStart := win.Start.In(loc)
		localEnd := win.End.In(loc)
		if localStart.Hour() != 9 || localEnd.Hour() != 17 {
			t.Fatalf("window %d wall clock wrong: %s - %s", i, localStart, localEnd)
		}
	}

	// Saturday is EST (UTC-5), Sunday is EDT (UTC-4): same wall clock,
	// different UTC instants.
	_, satOffset := wins[0].Start.In(loc).Zone()
	_, sunOffset := wins[1].Start.In(loc).Zone()
	if satOffset != -5*3600 || sunOffset != -4*3600 {
		t.Fatalf("expected offsets -5h/-4h, got %d/%d", satOffset, sunOffset)
	}
	if got := wins[1].Start.Sub(wins[0].Start); got != 23*time.Hour {
		t.Fatalf("expected window starts 23h apart across spring-forward, got %s", got)
	}
}

func TestSlots_DateOverrideReplacesWeekly(t *testing.T) {
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	slots := Slots(Input{
		Rules: []model.AvailabilityRule{
			weeklyRule(1, 9*60, 17*60),
			overrideRule(from, 13*60, 15*60),
		},
		Location: time.UTC,
		Duration: 60 * time.Minute,
		From:     from,
		To:       to,
		Now:      from.Add(-time.Hour),
	})

	if len(slots) != 2 {
		t.Fatalf("expected override to yield 2 slots, got %d", len(slots))
	}
	if slots[0].Start.Hour() != 13 {
		t.Fatalf("expected first slot at 13:00, got %s", slots[0].Start)
	}
}

func TestSlots_BlockingOverrideRemovesDay(t *testing.T) {
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	slots := Slots(Input{
		Rules: []model.AvailabilityRule{
			weeklyRule(1, 9*60, 17*60),
			overrideRule(from, 0, 0),
		},
		Location: time.UTC,
		Duration: 30 * time.Minute,
		From:     from,
		To:       to,
		Now:      from.Add(-time.Hour),
	})

	if len(slots) != 0 {
		t.Fatalf("expected no slots on blocked day, got %d", len(slots))
	}
}

func TestSlots_MultiDayRange(t *testing.T) {
	// Monday + Tuesday, one hour each day.
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 2)

	slots := Slots(Input{
		Rules: []model.AvailabilityRule{
			weeklyRule(1, 9*60, 10*60),
			weeklyRule(2, 9*60, 10*60),
		},
		Location: time.UTC,
		Duration: 30 * time.Minute,
		From:     from,
		To:       to,
		Now:      from.Add(-time.Hour),
	})

	if len(slots) != 4 {
		t.Fatalf("expected 4 slots over two days, got %d", len(slots))
	}
	if slots[2].Start.Day() != 3 {
		t.Fatalf("expected third slot on Tuesday, got %s", slots[2].Start)
	}
}

func TestSlots_RestartablePureFunction(t *testing.T) {
	in := Input{
		Rules:    []model.AvailabilityRule{weeklyRule(1, 9*60, 12*60)},
		Location: time.UTC,
		Duration: 45 * time.Minute,
		From:     time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
		Now:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	first := Slots(in)
	second := Slots(in)
	if len(first) != len(second) {
		t.Fatalf("resolver not deterministic: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Start.Equal(second[i].Start) || !first[i].End.Equal(second[i].End) {
			t.Fatalf("slot %d differs between runs", i)
		}
	}
}

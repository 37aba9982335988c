package domain

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "10:30", want: 630},
		{in: "23:59", want: 1439},
		{in: "24:00", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseClock(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClock(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
		if got.String() != tt.in {
			t.Fatalf("String() = %q, want %q", got.String(), tt.in)
		}
	}
}

func TestAnySlotCovers_InclusiveBoundaries(t *testing.T) {
	// 2026-01-04 is a Sunday.
	sunday := func(h, m int) time.Time { return time.Date(2026, 1, 4, h, m, 0, 0, time.UTC) }
	slots := []AvailabilitySlot{
		{ListingID: "l1", DayOfWeek: int16(time.Sunday), StartTime: 600, EndTime: 720},
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "start boundary", at: sunday(10, 0), want: true},
		{name: "inside", at: sunday(11, 0), want: true},
		{name: "end boundary", at: sunday(12, 0), want: true},
		{name: "one minute before start", at: sunday(9, 59), want: false},
		{name: "one minute after end", at: sunday(12, 1), want: false},
		{name: "after end", at: sunday(13, 0), want: false},
		{name: "same time other day", at: sunday(11, 0).AddDate(0, 0, 1), want: false},
		{name: "same weekday next week", at: sunday(11, 0).AddDate(0, 0, 7), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AnySlotCovers(slots, tt.at); got != tt.want {
				t.Fatalf("AnySlotCovers(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestAnySlotCovers_NoSlots(t *testing.T) {
	if AnySlotCovers(nil, time.Date(2026, 1, 4, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected nothing to be bookable without slots")
	}
}

func TestAnySlotCovers_UsesLocationOfTime(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	slots := []AvailabilitySlot{{DayOfWeek: int16(time.Monday), StartTime: 0, EndTime: 60}}

	// Sunday 21:30 UTC is Monday 00:30 at UTC+3.
	at := time.Date(2026, 1, 4, 21, 30, 0, 0, time.UTC)
	if AnySlotCovers(slots, at) {
		t.Fatalf("UTC evaluation should not match a Monday slot")
	}
	if !AnySlotCovers(slots, at.In(loc)) {
		t.Fatalf("UTC+3 evaluation should match the Monday slot")
	}
}

func TestAnySlotCovers_ZeroLengthSlot(t *testing.T) {
	slots := []AvailabilitySlot{{DayOfWeek: int16(time.Sunday), StartTime: 600, EndTime: 600}}
	if !AnySlotCovers(slots, time.Date(2026, 1, 4, 10, 0, 45, 0, time.UTC)) {
		t.Fatalf("expected 10:00 to be bookable in a 10:00-10:00 slot")
	}
}

func TestNormalizeSlots(t *testing.T) {
	in := []AvailabilitySlot{
		{ListingID: "other", DayOfWeek: 3, StartTime: 600, EndTime: 660},
		{DayOfWeek: 0, StartTime: 600, EndTime: 720},
		{DayOfWeek: 3, StartTime: 600, EndTime: 660},
		{DayOfWeek: 0, StartTime: 540, EndTime: 560},
	}
	out, err := NormalizeSlots("l1", in)
	if err != nil {
		t.Fatalf("NormalizeSlots error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	for _, s := range out {
		if s.ListingID != "l1" {
			t.Fatalf("listing id = %q, want %q", s.ListingID, "l1")
		}
	}
	if out[0].DayOfWeek != 0 || out[0].StartTime != 540 {
		t.Fatalf("unexpected order: %+v", out)
	}
	if out[2].DayOfWeek != 3 {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestNormalizeSlots_Validation(t *testing.T) {
	tests := []struct {
		name string
		slot AvailabilitySlot
	}{
		{name: "negative day", slot: AvailabilitySlot{DayOfWeek: -1, StartTime: 0, EndTime: 10}},
		{name: "day seven", slot: AvailabilitySlot{DayOfWeek: 7, StartTime: 0, EndTime: 10}},
		{name: "end before start", slot: AvailabilitySlot{DayOfWeek: 1, StartTime: 600, EndTime: 599}},
		{name: "past midnight", slot: AvailabilitySlot{DayOfWeek: 1, StartTime: 600, EndTime: 1440}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NormalizeSlots("l1", []AvailabilitySlot{tt.slot}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNormalizeSlots_EmptyIsAllowed(t *testing.T) {
	out, err := NormalizeSlots("l1", nil)
	if err != nil {
		t.Fatalf("NormalizeSlots error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("len(out) = %d, want 0", len(out))
	}
}

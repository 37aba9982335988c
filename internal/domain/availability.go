package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Clock is a minute of the day, 0 (00:00) through 1439 (23:59).
type Clock int16

const lastMinute Clock = 24*60 - 1

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

type AvailabilitySlot struct {
	bun.BaseModel `bun:"table:availability_slots"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	ListingID string    `bun:"listing_id,notnull"`
	DayOfWeek int16     `bun:"day_of_week,notnull"`
	StartTime Clock     `bun:"start_minute,notnull"`
	EndTime   Clock     `bun:"end_minute,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (s *AvailabilitySlot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if s.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		s.ID = id
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (s AvailabilitySlot) Validate() error {
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return errors.New("day_of_week must be between 0 and 6")
	}
	if s.StartTime < 0 || s.StartTime > lastMinute || s.EndTime < 0 || s.EndTime > lastMinute {
		return errors.New("slot times must be within the day")
	}
	if s.EndTime < s.StartTime {
		return errors.New("end_time must not be before start_time")
	}
	return nil
}

// Covers reports whether at falls inside the slot. Both ends are inclusive and the
// comparison is at minute granularity in at's location.
func (s AvailabilitySlot) Covers(at time.Time) bool {
	if int16(at.Weekday()) != s.DayOfWeek {
		return false
	}
	m := ClockOf(at)
	return s.StartTime <= m && m <= s.EndTime
}

func AnySlotCovers(slots []AvailabilitySlot, at time.Time) bool {
	for _, s := range slots {
		if s.Covers(at) {
			return true
		}
	}
	return false
}

// NormalizeSlots validates slots, stamps them with listingID, drops exact duplicates
// and orders them by day then start.
func NormalizeSlots(listingID string, slots []AvailabilitySlot) ([]AvailabilitySlot, error) {
	type key struct {
		day        int16
		start, end Clock
	}
	seen := make(map[key]struct{}, len(slots))
	out := make([]AvailabilitySlot, 0, len(slots))
	for _, s := range slots {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		k := key{s.DayOfWeek, s.StartTime, s.EndTime}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, AvailabilitySlot{
			ListingID: listingID,
			DayOfWeek: s.DayOfWeek,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].EndTime < out[j].EndTime
	})
	return out, nil
}

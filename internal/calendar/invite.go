package calendar

import (
	"errors"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

const (
	ContentType     = "text/calendar; charset=utf-8; method=REQUEST"
	DefaultDuration = time.Hour
	productID       = "-//viewings//scheduling//EN"
)

type Party struct {
	Name  string
	Email string
}

type Invite struct {
	UID         string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Organizer   *Party
	Attendees   []Party
}

// UID is stable for an appointment so every invite for it updates the same event.
func UID(appointmentID uuid.UUID) string {
	return appointmentID.String() + "@viewings"
}

// BuildInvite renders inv as an iCalendar REQUEST. A zero End means Start plus one hour.
func BuildInvite(inv Invite) ([]byte, error) {
	if strings.TrimSpace(inv.UID) == "" {
		return nil, errors.New("invite uid is required")
	}
	if inv.Start.IsZero() {
		return nil, errors.New("invite start is required")
	}
	start := inv.Start.UTC()
	end := inv.End.UTC()
	if inv.End.IsZero() {
		end = start.Add(DefaultDuration)
	}
	if !end.After(start) {
		return nil, errors.New("invite end must be after start")
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId(productID)

	ev := cal.AddEvent(inv.UID)
	ev.SetDtStampTime(time.Now().UTC())
	ev.SetStartAt(start)
	ev.SetEndAt(end)
	ev.SetSummary(inv.Title)
	if inv.Description != "" {
		ev.SetDescription(inv.Description)
	}
	if inv.Location != "" {
		ev.SetLocation(inv.Location)
	}
	if inv.Organizer != nil && inv.Organizer.Email != "" {
		ev.SetOrganizer("mailto:"+inv.Organizer.Email, ics.WithCN(inv.Organizer.Name))
	}
	for _, a := range inv.Attendees {
		if a.Email == "" {
			continue
		}
		ev.AddAttendee("mailto:"+a.Email, ics.WithCN(a.Name), ics.WithRSVP(true))
	}

	return []byte(cal.Serialize()), nil
}

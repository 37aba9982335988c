package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"viewings/backend/internal/calendar"
	"viewings/backend/internal/domain"
	"viewings/backend/internal/notify"
)

// Notifier accepts messages for delivery without waiting for them to be sent.
type Notifier interface {
	Enqueue(ctx context.Context, msg notify.Message)
}

const timeLayout = "Mon, 02 Jan 2006 15:04 MST"

func (s *Service) formatTime(t time.Time) string {
	return t.In(s.avail.Location()).Format(timeLayout)
}

func (s *Service) notifyRequestReceived(ctx context.Context, appt domain.Appointment, listing domain.Listing) {
	owner, ok := s.user(ctx, appt, appt.OwnerID)
	if !ok {
		return
	}
	data := notify.Data{
		RecipientName: owner.Name,
		ListingTitle:  listingTitle(listing),
		ScheduledAt:   s.formatTime(appt.ScheduledAt),
		Note:          appt.Note,
	}
	if requester, ok := s.user(ctx, appt, appt.RequesterID); ok {
		data.RequesterName = requester.Name
	}
	s.send(ctx, appt, owner.Email, notify.TemplateRequestReceived, data, nil)
}

func (s *Service) notifyApproved(ctx context.Context, appt domain.Appointment) {
	listing := s.listingForNotice(ctx, appt)
	requester, ok := s.user(ctx, appt, appt.RequesterID)
	if !ok {
		return
	}
	owner, _ := s.user(ctx, appt, appt.OwnerID)

	data := notify.Data{
		RecipientName:  requester.Name,
		ListingTitle:   listingTitle(listing),
		ListingAddress: listing.Address,
		ScheduledAt:    s.formatTime(appt.ScheduledAt),
		ContactName:    owner.Name,
		ContactEmail:   owner.Email,
		ContactPhone:   owner.Phone,
	}
	s.send(ctx, appt, requester.Email, notify.TemplateApproved, data, s.invite(ctx, appt, listing, owner, requester))
}

func (s *Service) notifyRequester(ctx context.Context, appt domain.Appointment, tpl notify.Template, reason string) {
	listing := s.listingForNotice(ctx, appt)
	requester, ok := s.user(ctx, appt, appt.RequesterID)
	if !ok {
		return
	}
	data := notify.Data{
		RecipientName: requester.Name,
		ListingTitle:  listingTitle(listing),
		ScheduledAt:   s.formatTime(appt.ScheduledAt),
		Reason:        reason,
	}
	if appt.ProposedAt != nil {
		data.ProposedAt = s.formatTime(*appt.ProposedAt)
	}
	s.send(ctx, appt, requester.Email, tpl, data, nil)
}

func (s *Service) notifyRescheduleConfirmed(ctx context.Context, appt domain.Appointment) {
	listing := s.listingForNotice(ctx, appt)
	owner, ok := s.user(ctx, appt, appt.OwnerID)
	if !ok {
		return
	}
	requester, _ := s.user(ctx, appt, appt.RequesterID)
	data := notify.Data{
		RecipientName:  owner.Name,
		ListingTitle:   listingTitle(listing),
		ListingAddress: listing.Address,
		ScheduledAt:    s.formatTime(appt.ScheduledAt),
		RequesterName:  requester.Name,
	}
	s.send(ctx, appt, owner.Email, notify.TemplateRescheduleConfirmed, data, s.invite(ctx, appt, listing, owner, requester))
}

func (s *Service) notifyCancelled(ctx context.Context, appt domain.Appointment) {
	listing := s.listingForNotice(ctx, appt)
	owner, ok := s.user(ctx, appt, appt.OwnerID)
	if !ok {
		return
	}
	requester, _ := s.user(ctx, appt, appt.RequesterID)
	data := notify.Data{
		RecipientName: owner.Name,
		ListingTitle:  listingTitle(listing),
		ScheduledAt:   s.formatTime(appt.ScheduledAt),
		RequesterName: requester.Name,
	}
	s.send(ctx, appt, owner.Email, notify.TemplateCancelled, data, nil)
}

func (s *Service) invite(ctx context.Context, appt domain.Appointment, listing domain.Listing, owner, requester domain.User) []notify.Attachment {
	inv := calendar.Invite{
		UID:         calendar.UID(appt.ID),
		Title:       "Property viewing: " + listingTitle(listing),
		Description: "Viewing of " + listingTitle(listing),
		Location:    listing.Address,
		Start:       appt.ScheduledAt,
		End:         appt.ScheduledAt.Add(s.cfg.InviteDuration),
	}
	if owner.Email != "" {
		inv.Organizer = &calendar.Party{Name: owner.Name, Email: owner.Email}
	}
	if requester.Email != "" {
		inv.Attendees = []calendar.Party{{Name: requester.Name, Email: requester.Email}}
	}

	b, err := calendar.BuildInvite(inv)
	if err != nil {
		s.logger.WarnContext(ctx, "calendar invite not built", "appointment_id", appt.ID.String(), "err", err)
		return nil
	}
	return []notify.Attachment{{Filename: "invite.ics", ContentType: calendar.ContentType, Data: b}}
}

func (s *Service) send(ctx context.Context, appt domain.Appointment, to string, tpl notify.Template, data notify.Data, attachments []notify.Attachment) {
	if to == "" {
		s.logger.WarnContext(ctx, "notification skipped: recipient has no email",
			"appointment_id", appt.ID.String(), "template", string(tpl))
		return
	}
	subject, body, err := notify.Render(tpl, data)
	if err != nil {
		s.logger.ErrorContext(ctx, "notification not rendered",
			"appointment_id", appt.ID.String(), "template", string(tpl), "err", err)
		return
	}
	s.notifier.Enqueue(ctx, notify.Message{
		ID:          uuid.NewString(),
		To:          to,
		Template:    tpl,
		Subject:     subject,
		Body:        body,
		Data:        data,
		Attachments: attachments,
	})
}

func (s *Service) user(ctx context.Context, appt domain.Appointment, userID string) (domain.User, bool) {
	u, err := s.dir.GetUser(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "notification recipient lookup failed",
			"appointment_id", appt.ID.String(), "user_id", userID, "err", err)
		return domain.User{}, false
	}
	return u, true
}

// listingForNotice falls back to the bare listing id when the listing cannot be read.
func (s *Service) listingForNotice(ctx context.Context, appt domain.Appointment) domain.Listing {
	l, err := s.dir.GetListing(ctx, appt.ListingID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "listing lookup for notification failed",
				"appointment_id", appt.ID.String(), "listing_id", appt.ListingID, "err", err)
		}
		return domain.Listing{ID: appt.ListingID, OwnerID: appt.OwnerID}
	}
	return l
}

func listingTitle(l domain.Listing) string {
	if l.Title != "" {
		return l.Title
	}
	return "listing " + l.ID
}

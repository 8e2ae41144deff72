package ics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/agenda-app/agenda/pkg/event"
	"github.com/agenda-app/agenda/pkg/recurrence"
	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

const productId = "-//agenda//Event Export//EN"

// uidNamespace keeps exported UIDs stable across exports of the same event.
var uidNamespace = uuid.MustParse("4b0a8f3e-6f1c-4d7e-9a51-2f6f0c9e7d10")

// UID returns the iCalendar UID of the event with the given id.
func UID(eventId int) string {
	return uuid.NewSHA1(uidNamespace, []byte(strconv.Itoa(eventId))).String() + "@agenda"
}

// Export renders e as a single VEVENT calendar. sequence is the number of times
// the event has been revised, stamp is the DTSTAMP of the export.
func Export(e event.Event, sequence int, stamp time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetProductId(productId)
	cal.SetMethod(ical.MethodPublish)

	vevent := cal.AddEvent(UID(e.Id))
	vevent.SetDtStampTime(stamp)
	vevent.SetCreatedTime(e.CreatedAt)
	vevent.SetSequence(sequence)
	vevent.SetStartAt(e.StartTime)
	vevent.SetEndAt(e.EndTime)
	vevent.SetSummary(e.Title)
	if e.Description != "" {
		vevent.SetDescription(e.Description)
	}
	if e.Location != "" {
		vevent.SetLocation(e.Location)
	}
	if e.IsRecurring && e.RecurrencePattern != "" {
		rule, err := recurrence.RuleValue(e.RecurrencePattern)
		if err != nil {
			return "", fmt.Errorf("failed to export event %d: %w", e.Id, err)
		}
		vevent.AddRrule(rule)
	}
	return cal.Serialize(), nil
}
